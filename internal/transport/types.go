// Package transport defines the chat-platform boundary: inbound updates and
// the outbound operations the bot needs from a platform adapter.
package transport

import (
	"context"
	"errors"
)

// ErrRecipientUnreachable marks a send that can never succeed: the user
// blocked the bot, deleted their account, or never opened a chat with it.
// Adapters wrap it so callers can use errors.Is.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
}

// DisplayName is the best human-readable name for the sender.
func (m *Message) DisplayName() string {
	switch {
	case m.FromName != "":
		return m.FromName
	case m.FromUsername != "":
		return "@" + m.FromUsername
	default:
		return ""
	}
}

type Callback struct {
	ID        string
	FromID    int64
	FromName  string
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// LogSink forwards log lines to a chat through an Adapter.
type LogSink struct {
	Adapter Adapter
}

func (s LogSink) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	if s.Adapter == nil {
		return errors.New("log sink: no adapter")
	}
	_, err := s.Adapter.SendText(ctx, ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &SendOptions{DisablePreview: true})
	return err
}
