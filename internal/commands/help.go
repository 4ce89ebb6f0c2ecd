package commands

import (
	"strings"

	"hydrobot/pkg/tgui"
)

// helpText lists the commands the caller may run. Owner-only commands are
// shown to owners, marked with a lock.
func (m *Manager) helpText(owner bool) tgui.H {
	m.mu.RLock()
	cmds := append([]Command(nil), m.cmds...)
	m.mu.RUnlock()

	lines := []tgui.H{
		tgui.H("💧 " + tgui.B("Hydration reminders").String()),
		tgui.Esc("I remind you to drink water at the cadence you choose."),
		"",
	}
	for _, c := range cmds {
		if c.Hidden || (c.Access == AccessOwnerOnly && !owner) {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		line := prefix + tgui.Code(usage).String()
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + tgui.Esc(d).String()
		}
		lines = append(lines, tgui.H(line))
	}
	return tgui.H(joinLines(lines))
}

func joinLines(lines []tgui.H) string {
	ss := make([]string, len(lines))
	for i, l := range lines {
		ss[i] = l.String()
	}
	return strings.TrimSpace(strings.Join(ss, "\n"))
}
