package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hydrobot/internal/domain"
	"hydrobot/internal/reminder"
	"hydrobot/internal/transport"
	logx "hydrobot/pkg/logx"
	"hydrobot/pkg/tgui"
)

const (
	scopeRegister  = "reg"
	actionChoose   = "choose"
	listTextRunes  = 1024
	expiredChoice  = "⌛ This choice has expired."
	notOwnerChoice = "This prompt belongs to someone else."
)

// Hydration wires the reminder core to chat commands.
type Hydration struct {
	svc     *reminder.Service
	flows   *reminder.Flows
	adapter transport.Adapter
	log     logx.Logger
}

// NewHydration builds the handlers. The registration prompt is abandoned
// after flowTimeout.
func NewHydration(svc *reminder.Service, adapter transport.Adapter, flowTimeout time.Duration, log logx.Logger) *Hydration {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Hydration{svc: svc, adapter: adapter, log: log}
	h.flows = reminder.NewFlows(flowTimeout, h.onFlowTimeout)
	return h
}

// Close abandons pending registration prompts silently.
func (h *Hydration) Close() { h.flows.Close() }

func (h *Hydration) Commands() []Command {
	return []Command{
		{Name: "start", Description: "introduction", Hidden: true, Handle: h.start},
		{Name: "register", Description: "start receiving water reminders", Usage: "/register", Handle: h.register},
		{Name: "frequency", Description: "change how often you are reminded", Usage: "/frequency", Handle: h.register},
		{Name: "unregister", Aliases: []string{"stop"}, Description: "stop receiving reminders", Usage: "/unregister", Handle: h.unregister},
		{Name: "status", Description: "your cadence and next reminder", Usage: "/status", Handle: h.status},
		{Name: "listmsg", Aliases: []string{"list_msg"}, Description: "list custom reminder texts", Usage: "/listmsg", Handle: h.listMessages},
		{Name: "addmsg", Aliases: []string{"add_msg"}, Description: "set the custom text for a type", Usage: "/addmsg <short|medium|long> <text>", Access: AccessOwnerOnly, Handle: h.addMessage},
		{Name: "removemsg", Aliases: []string{"remove_msg"}, Description: "remove the custom text for a type", Usage: "/removemsg <short|medium|long>", Access: AccessOwnerOnly, Handle: h.removeMessage},
	}
}

func (h *Hydration) Callbacks() []CallbackRoute {
	return []CallbackRoute{
		{Scope: scopeRegister, Action: actionChoose, Handle: h.choose},
	}
}

func (h *Hydration) start(ctx context.Context, req *Request) error {
	text := joinLines([]tgui.H{
		tgui.H("💧 " + tgui.B("Hi! I'm the hydration bot.").String()),
		tgui.Esc("Staying hydrated is easy to forget, so I'll nudge you with a message at the cadence you pick."),
		"",
		tgui.H("Send " + tgui.Code("/register").String() + " to get started or " + tgui.Code("/help").String() + " to see everything I can do."),
	})
	_, err := req.ReplyHTML(ctx, tgui.H(text), nil)
	return err
}

func (h *Hydration) register(ctx context.Context, req *Request) error {
	flow := h.flows.Open(req.FromID, req.FromName)

	kb := tgui.NewInline()
	for _, f := range domain.Frequencies {
		data, err := tgui.Data(scopeRegister, actionChoose, flow.Token+"."+f.Tag())
		if err != nil {
			return err
		}
		kb.Row(tgui.Btn(f.Label()+" "+f.Emoji(), data))
	}

	lines := []tgui.H{
		tgui.H("💧 " + tgui.B("Water reminders").String()),
		tgui.Esc("How often should I remind you to drink water?"),
	}
	if cur, ok := h.svc.Subscriber(req.FromID); ok {
		lines = append(lines, tgui.I("Currently: every "+cur.Frequency.Label()+". Picking again restarts the clock."))
	}

	ref, err := req.ReplyHTML(ctx, tgui.JoinH("\n", lines...), kb)
	if err != nil {
		// Nobody can answer a prompt that was never shown.
		_, _ = h.flows.Resolve(flow.Token, req.FromID)
		return fmt.Errorf("send registration prompt: %w", err)
	}
	h.flows.SetPrompt(flow.Token, ref)
	req.Logger.Debug("registration flow opened", logx.String("token", flow.Token), logx.Int("choices", len(domain.Frequencies)))
	return nil
}

func (h *Hydration) choose(ctx context.Context, req *Request) error {
	i := strings.LastIndexByte(req.Payload, '.')
	if i <= 0 {
		return req.Answer(ctx, expiredChoice)
	}
	token, tag := req.Payload[:i], req.Payload[i+1:]
	f, err := domain.ParseFrequency(tag)
	if err != nil {
		return req.Answer(ctx, expiredChoice)
	}

	flow, err := h.flows.Resolve(token, req.FromID)
	switch {
	case errors.Is(err, reminder.ErrNotFlowOwner):
		return req.Answer(ctx, notOwnerChoice)
	case err != nil:
		return req.Answer(ctx, expiredChoice)
	}

	name := flow.DisplayName
	if name == "" {
		name = req.FromName
	}
	if _, err := h.svc.Register(ctx, req.FromID, name, f); err != nil {
		_ = req.Answer(ctx, "Something went wrong, please try /register again.")
		return err
	}
	_ = req.Answer(ctx, "Saved "+f.Emoji())
	return req.EditHTML(ctx, tgui.JoinH("\n",
		tgui.H("✅ "+tgui.B("You're registered!").String()),
		tgui.H("I'll remind you to drink water every "+tgui.B(f.Label()).String()+" "+f.Emoji()),
		tgui.I("Send /unregister at any time to stop."),
	), nil)
}

func (h *Hydration) onFlowTimeout(f reminder.Flow) {
	if f.Prompt.MessageID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := h.adapter.EditText(ctx, f.Prompt,
		"⌛ This registration request expired. Send /register to try again.",
		&transport.SendOptions{DisablePreview: true})
	if err != nil {
		h.log.Debug("expire registration prompt", logx.Int64("user_id", f.UserID), logx.Err(err))
	}
	h.log.Info("registration flow timed out", logx.Int64("user_id", f.UserID))
}

func (h *Hydration) unregister(ctx context.Context, req *Request) error {
	err := h.svc.Unregister(ctx, req.FromID)
	if errors.Is(err, reminder.ErrNotRegistered) {
		_, err = req.Reply(ctx, "You are not registered.")
		return err
	}
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, "👋 Done. You will no longer receive water reminders.")
	return err
}

func (h *Hydration) status(ctx context.Context, req *Request) error {
	active := h.svc.ActiveSubscriberCount()
	sub, ok := h.svc.Subscriber(req.FromID)
	var lines []tgui.H
	if ok {
		lines = append(lines,
			tgui.H("💧 "+tgui.B("Your reminders").String()),
			tgui.H("Cadence: "+tgui.B(sub.Frequency.Label()).String()+" "+sub.Frequency.Emoji()),
			tgui.H("Next reminder: "+tgui.Code(sub.NextDue().UTC().Format("2006-01-02 15:04")+" UTC").String()),
		)
	} else {
		lines = append(lines, tgui.Esc("You are not registered. Send /register to start."))
	}
	lines = append(lines, tgui.I("Active subscribers: "+strconv.Itoa(active)))
	_, err := req.ReplyHTML(ctx, tgui.JoinH("\n", lines...), nil)
	return err
}

func (h *Hydration) addMessage(ctx context.Context, req *Request) error {
	rawType, text := cutWord(req.Text)
	if rawType == "" {
		_, err := req.Reply(ctx, "❌ Missing message type. Usage: /addmsg <short|medium|long> <text>")
		return err
	}
	m, err := h.svc.AddCustomMessage(ctx, req.FromID, rawType, text)
	switch {
	case errors.Is(err, domain.ErrUnknownMessageType):
		_, err = req.Reply(ctx, "❌ Invalid message type. Valid types: short, medium, long")
		return err
	case errors.Is(err, domain.ErrEmptyMessage):
		_, err = req.Reply(ctx, "❌ Missing message text. Usage: /addmsg <short|medium|long> <text>")
		return err
	case err != nil:
		_, _ = req.Reply(ctx, "❌ Could not save the custom message.")
		return err
	}
	_, err = req.ReplyHTML(ctx, tgui.JoinH("\n",
		tgui.H("✅ "+tgui.B("Custom message saved").String()),
		tgui.H("Type: "+tgui.Code(string(m.Type)).String()),
		tgui.Quote(domain.Truncate(m.Text, listTextRunes)),
	), nil)
	return err
}

func (h *Hydration) removeMessage(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, "❌ Missing message type. Usage: /removemsg <short|medium|long>")
		return err
	}
	mt, ok, err := h.svc.RemoveCustomMessage(ctx, req.Args[0])
	switch {
	case errors.Is(err, domain.ErrUnknownMessageType):
		_, err = req.Reply(ctx, "❌ Invalid message type. Valid types: short, medium, long")
		return err
	case err != nil:
		_, _ = req.Reply(ctx, "❌ Could not remove the custom message.")
		return err
	case !ok:
		_, err = req.Reply(ctx, "No custom message was set for "+string(mt)+".")
		return err
	}
	_, err = req.Reply(ctx, "🗑️ Custom message for "+string(mt)+" removed. Default texts are back.")
	return err
}

func (h *Hydration) listMessages(ctx context.Context, req *Request) error {
	msgs, err := h.svc.ListCustomMessages(ctx)
	if err != nil {
		_, _ = req.Reply(ctx, "❌ Could not load custom messages.")
		return err
	}
	if len(msgs) == 0 {
		_, err = req.ReplyHTML(ctx, tgui.H("📝 "+tgui.B("Custom messages").String()+"\nNo custom message is set."), nil)
		return err
	}
	lines := []tgui.H{tgui.H("📝 " + tgui.B("Custom messages").String())}
	for _, m := range msgs {
		f := m.Type.Frequency()
		lines = append(lines,
			"",
			tgui.H(tgui.B(f.Label()).String()+" "+f.Emoji()+" by "+tgui.Mention(strconv.FormatInt(m.AuthorID, 10), m.AuthorID).String()),
			tgui.Quote(domain.Truncate(m.Text, listTextRunes)),
		)
	}
	_, err = req.ReplyHTML(ctx, tgui.H(joinLines(lines)), nil)
	return err
}
