package commands

import (
	"context"
	"sync/atomic"

	"hydrobot/internal/transport"
	logx "hydrobot/pkg/logx"
	"hydrobot/pkg/tgui"
)

type Request struct {
	Update   transport.Update
	Chat     transport.ChatTarget
	FromID   int64
	FromName string
	IsOwner  bool

	// Command is the canonical command name, or "cb:scope:action".
	Command string
	// Args are the whitespace-separated words after the command.
	Args []string
	// Text is everything after the command word, untouched.
	Text string

	// Callback fields.
	CallbackID string
	Payload    string
	MessageID  int

	ReqID   string
	Adapter transport.Adapter
	Logger  logx.Logger

	answered atomic.Bool
}

func (r *Request) Reply(ctx context.Context, text string) (transport.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true})
}

func (r *Request) ReplyHTML(ctx context.Context, h tgui.H, kb *tgui.Inline) (transport.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, h.String(), tgui.HTML(kb))
}

// EditHTML replaces the message the callback came from.
func (r *Request) EditHTML(ctx context.Context, h tgui.H, kb *tgui.Inline) error {
	ref := transport.MessageRef{ChatID: r.Chat.ChatID, ThreadID: r.Chat.ThreadID, MessageID: r.MessageID}
	return r.Adapter.EditText(ctx, ref, h.String(), tgui.HTML(kb))
}

// Answer acknowledges a callback with an optional toast.
func (r *Request) Answer(ctx context.Context, text string) error {
	if r.CallbackID == "" || !r.answered.CompareAndSwap(false, true) {
		return nil
	}
	return r.Adapter.AnswerCallback(ctx, r.CallbackID, text)
}
