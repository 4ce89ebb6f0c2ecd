// Package commands routes chat updates to command and callback handlers.
package commands

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hydrobot/internal/eventbus"
	"hydrobot/internal/runtime/supervisor"
	"hydrobot/internal/transport"
	logx "hydrobot/pkg/logx"
	"hydrobot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Hidden commands are routable but left out of the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

// CallbackRoute handles inline button data "scope:action:payload".
type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Options struct {
	Workers   int
	QueueSize int
	// DefaultTimeout applies to routes without their own Timeout.
	DefaultTimeout time.Duration
}

type Manager struct {
	log     logx.Logger
	adapter transport.Adapter
	bus     eventbus.Bus
	opts    Options

	mu        sync.RWMutex
	cmds      []Command
	byName    map[string]*Command
	callbacks map[string]map[string]CallbackRoute
	owners    []int64

	jobs chan func()
}

func NewManager(log logx.Logger, adapter transport.Adapter, bus eventbus.Bus, owners []int64, opts Options) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	return &Manager{
		log:       log,
		adapter:   adapter,
		bus:       bus,
		opts:      opts,
		byName:    map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		owners:    append([]int64(nil), owners...),
		jobs:      make(chan func(), opts.QueueSize),
	}
}

// SetOwners replaces the owner list; safe during hot reload.
func (m *Manager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *Manager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetRoutes installs commands and callbacks, adding /help. It replaces any
// previous routes.
func (m *Manager) SetRoutes(cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.ReplyHTML(ctx, m.helpText(req.IsOwner), nil)
			return err
		},
	})

	byName := map[string]*Command{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		list = append(list, c)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	for i := range list {
		c := &list[i]
		byName[c.Name] = c
	}
	// Aliases never shadow a real command.
	for i := range list {
		c := &list[i]
		for _, a := range c.Aliases {
			if a = sanitizeCommand(a); a != "" {
				if _, taken := byName[a]; !taken {
					byName[a] = c
				}
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		s, a := strings.TrimSpace(r.Scope), strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = r
	}

	m.mu.Lock()
	m.cmds = list
	m.byName = byName
	m.callbacks = cb
	m.mu.Unlock()
}

// MenuCommands is the public command list for the platform menu.
func (m *Manager) MenuCommands() []transport.BotCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(m.cmds))
	for _, c := range m.cmds {
		if c.Hidden || c.Access == AccessOwnerOnly {
			continue
		}
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// UpdateMenu pushes MenuCommands to adapters that support it.
func (m *Manager) UpdateMenu(ctx context.Context) error {
	up, ok := m.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, m.MenuCommands())
}

// Run dispatches updates to a bounded worker pool until ctx is done or
// updates is closed. In-flight jobs get a short window to drain.
func (m *Manager) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "commands"))),
		supervisor.WithCancelOnError(false),
	)
	m.log.Info("command dispatcher started", logx.Int("workers", m.opts.Workers), logx.Int("queue_cap", cap(m.jobs)))

	for i := 0; i < m.opts.Workers; i++ {
		sup.GoRestart("worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		sup.Cancel()
		if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn("command workers did not drain", logx.Err(err))
		}
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(sup.Context(), up)
		}
	}
}

func (m *Manager) route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		m.routeMessage(ctx, up)
	case transport.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *Manager) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, rest, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, found := m.byName[word]
	m.mu.RUnlock()
	if !found {
		// Commands for other bots in groups are not ours to answer.
		if !msg.IsGroup {
			_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}

	owner := m.isOwner(msg.FromID)
	if cmd.Access == AccessOwnerOnly && !owner {
		_, _ = m.adapter.SendText(ctx, chat, "⛔ This command is reserved for bot owners.", nil)
		return
	}

	req := m.newRequest(up, chat, msg.FromID, msg.DisplayName(), owner, cmd.Name)
	req.Args = strings.Fields(rest)
	req.Text = rest

	if !m.enqueue(ctx, req, cmd.Handle, cmd.Timeout) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, please try again in a moment.", nil)
	}
}

func (m *Manager) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	m.mu.RLock()
	route, found := m.callbacks[scope][action]
	m.mu.RUnlock()
	if !found {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "This button is no longer active.")
		return
	}

	owner := m.isOwner(cb.FromID)
	if route.Access == AccessOwnerOnly && !owner {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	chat := transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := m.newRequest(up, chat, cb.FromID, cb.FromName, owner, "cb:"+scope+":"+action)
	req.CallbackID = cb.ID
	req.Payload = payload
	req.MessageID = cb.MessageID

	if !m.enqueue(ctx, req, route.Handle, route.Timeout) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *Manager) newRequest(up transport.Update, chat transport.ChatTarget, fromID int64, fromName string, owner bool, command string) *Request {
	rid := uuid.NewString()
	return &Request{
		Update:   up,
		Chat:     chat,
		FromID:   fromID,
		FromName: fromName,
		IsOwner:  owner,
		Command:  command,
		ReqID:    rid,
		Adapter:  m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", command),
		),
	}
}

func (m *Manager) enqueue(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = m.opts.DefaultTimeout
	}
	final := Chain(h,
		MWEvents(m.bus),
		MWPanicRecover(),
		MWRequestLog(),
		MWTimeout(timeout),
	)
	job := func() {
		_ = final(ctx, req)
		// Stops the client-side spinner when the handler did not answer.
		_ = req.Answer(ctx, "")
	}
	select {
	case m.jobs <- job:
		return true
	default:
		return false
	}
}
