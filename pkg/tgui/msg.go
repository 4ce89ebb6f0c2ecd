package tgui

import "hydrobot/internal/transport"

// HTML returns send options for an HTML message, with kb attached when
// non-nil.
func HTML(kb *Inline) *transport.SendOptions {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkupAdapter = kb.Markup()
	}
	return opt
}
