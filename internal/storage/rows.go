package storage

import (
	"sort"
	"strings"
	"time"

	"hydrobot/internal/domain"
	logx "hydrobot/pkg/logx"
)

// timeLayout is the stored timestamp form (UTC, second precision).
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return domain.UTCSecond(t).Format(timeLayout)
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// subscriberRow is the driver-neutral stored form. Fields stay raw strings so
// corrupt values reach decode instead of failing a scan.
type subscriberRow struct {
	UserID         int64  `json:"user_id"`
	DisplayName    string `json:"display_name"`
	Frequency      string `json:"frequency"`
	LastNotifiedAt string `json:"last_notified_at"`
	CreatedAt      string `json:"created_at"`
}

type messageRow struct {
	Type      string `json:"message_type"`
	Text      string `json:"text"`
	AuthorID  int64  `json:"author_id"`
	CreatedAt string `json:"created_at"`
}

func encodeSubscriber(s domain.Subscriber, now time.Time) subscriberRow {
	created := s.CreatedAt
	if created.IsZero() {
		created = now
	}
	return subscriberRow{
		UserID:         s.ID,
		DisplayName:    s.DisplayName,
		Frequency:      s.Frequency.Tag(),
		LastNotifiedAt: formatTime(s.LastNotifiedAt),
		CreatedAt:      formatTime(created),
	}
}

func encodeMessage(m domain.CustomMessage, now time.Time) messageRow {
	created := m.CreatedAt
	if created.IsZero() {
		created = now
	}
	return messageRow{Type: string(m.Type), Text: m.Text, AuthorID: m.AuthorID, CreatedAt: formatTime(created)}
}

func decodeSubscriber(r subscriberRow, now time.Time, log logx.Logger) domain.Subscriber {
	s := domain.Subscriber{ID: r.UserID, DisplayName: r.DisplayName}

	f, err := domain.ParseFrequency(r.Frequency)
	if err != nil {
		log.Warn("stored frequency invalid; defaulting to medium",
			logx.Int64("user_id", r.UserID), logx.String("frequency", r.Frequency))
		f = domain.Medium
	}
	s.Frequency = f

	last, ok := parseTime(r.LastNotifiedAt)
	if !ok {
		log.Warn("stored last_notified_at invalid; defaulting to now",
			logx.Int64("user_id", r.UserID), logx.String("value", r.LastNotifiedAt))
		last = domain.UTCSecond(now)
	}
	s.LastNotifiedAt = last

	if created, ok := parseTime(r.CreatedAt); ok {
		s.CreatedAt = created
	} else {
		s.CreatedAt = last
	}
	return s
}

// decodeMessage returns false for rows whose type cannot be mapped; such a
// row has no safe default key and is skipped.
// canonicalMessageKey maps legacy category keys (thirty_min, one_hour,
// three_hours) onto the canonical type. Unknown keys are returned unchanged.
func canonicalMessageKey(raw string) string {
	mt, err := domain.ParseMessageType(raw)
	if err != nil {
		return raw
	}
	return string(mt)
}

func decodeMessage(r messageRow, log logx.Logger) (domain.CustomMessage, bool) {
	mt, err := domain.ParseMessageType(r.Type)
	if err != nil {
		log.Warn("stored custom message has unknown type; skipped", logx.String("message_type", r.Type))
		return domain.CustomMessage{}, false
	}
	m := domain.CustomMessage{Type: mt, Text: r.Text, AuthorID: r.AuthorID}
	if created, ok := parseTime(r.CreatedAt); ok {
		m.CreatedAt = created
	}
	return m, true
}

func sortMessages(ms []domain.CustomMessage) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Type.Order() < ms[j].Type.Order() })
}

func sortSubscribers(ss []domain.Subscriber) {
	sort.Slice(ss, func(i, j int) bool { return ss[i].ID < ss[j].ID })
}
