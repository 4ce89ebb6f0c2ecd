package domain

import (
	"strings"
	"time"
)

// Subscriber is a user enrolled to receive reminders.
type Subscriber struct {
	ID             int64
	DisplayName    string
	Frequency      Frequency
	LastNotifiedAt time.Time
	CreatedAt      time.Time
}

// NextDue is the instant from which the subscriber is due.
func (s Subscriber) NextDue() time.Time {
	return s.LastNotifiedAt.Add(s.Frequency.Interval())
}

// DueAt reports whether the subscriber is due at now: due at and after
// LastNotifiedAt + interval.
func (s Subscriber) DueAt(now time.Time) bool {
	return !now.Before(s.NextDue())
}

// CustomMessage overrides the default pool for one message type.
type CustomMessage struct {
	Type      MessageType
	Text      string
	AuthorID  int64
	CreatedAt time.Time
}

// NewCustomMessage validates input coming from the command surface.
func NewCustomMessage(authorID int64, rawType, text string) (CustomMessage, error) {
	mt, err := ParseMessageType(rawType)
	if err != nil {
		return CustomMessage{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return CustomMessage{}, ErrEmptyMessage
	}
	return CustomMessage{Type: mt, Text: text, AuthorID: authorID}, nil
}

// Truncate returns s cut to at most n runes with an ellipsis appended when cut.
func Truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}

// UTCSecond normalizes t to UTC with second precision, the stored resolution.
func UTCSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
