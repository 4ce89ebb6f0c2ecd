package commands

import (
	"context"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"

	"hydrobot/internal/transport"
)

type sentMsg struct {
	To     transport.ChatTarget
	Text   string
	Markup *tele.ReplyMarkup
}

type editMsg struct {
	Ref  transport.MessageRef
	Text string
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMsg
	edits   []editMsg
	answers map[string]string
	menu    []transport.BotCommand
	nextID  int
	sendErr error
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{answers: map[string]string{}} }

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return transport.MessageRef{}, f.sendErr
	}
	var rm *tele.ReplyMarkup
	if opt != nil {
		rm, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	f.sent = append(f.sent, sentMsg{To: to, Text: text, Markup: rm})
	f.nextID++
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editMsg{Ref: ref, Text: text})
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.answers[id]; !dup {
		f.answers[id] = text
	}
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) last(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) answer(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers[id]
}

func (f *fakeAdapter) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

// dispatch routes up and runs the queued job inline.
func dispatch(m *Manager, up transport.Update) {
	ctx := context.Background()
	m.route(ctx, up)
	select {
	case job := <-m.jobs:
		job()
	default:
	}
}

func text(from int64, s string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: 1, ChatID: from, FromID: from, FromName: "user", Text: s,
	}}
}

func press(id string, from int64, messageID int, data string) transport.Update {
	return transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID: id, FromID: from, FromName: "user", ChatID: from, MessageID: messageID, Data: data,
	}}
}
