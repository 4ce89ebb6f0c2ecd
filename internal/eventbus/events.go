package eventbus

import "time"

// Event types published by the reminder core.
const (
	TypePersistFailed  = "registry.persist_failed"
	TypeSubscribed     = "registry.subscribed"
	TypeUnsubscribed   = "registry.unsubscribed"
	TypeReminderSent   = "reminder.sent"
	TypeReminderFailed = "reminder.failed"
	TypeSweepDone      = "sweep.done"
	TypeCommandHandled = "command.handled"
)

// SubscriberEvent is the payload of registry and reminder events.
type SubscriberEvent struct {
	UserID int64     `json:"user_id"`
	Op     string    `json:"op,omitempty"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}

// SweepEvent is the payload of TypeSweepDone.
type SweepEvent struct {
	Checked  int           `json:"checked"`
	Due      int           `json:"due"`
	Sent     int           `json:"sent"`
	Failed   int           `json:"failed"`
	Deferred int           `json:"deferred"`
	Active   int           `json:"active"`
	Took     time.Duration `json:"took"`
}

// CommandEvent is the payload of TypeCommandHandled.
type CommandEvent struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
}
