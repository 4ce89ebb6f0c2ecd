package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownFrequency   = errors.New("unknown frequency")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrEmptyMessage       = errors.New("message text is empty")
)

// Frequency is one of the three fixed reminder cadences.
type Frequency int

const (
	Short Frequency = iota + 1
	Medium
	Long
)

// Frequencies lists every cadence in display order.
var Frequencies = []Frequency{Short, Medium, Long}

var frequencyTable = map[Frequency]struct {
	tag      string
	interval time.Duration
	label    string
	emoji    string
}{
	Short:  {"short", 30 * time.Minute, "30 min", "💧"},
	Medium: {"medium", time.Hour, "1 hour", "💦"},
	Long:   {"long", 3 * time.Hour, "3 hours", "🌊"},
}

// frequencyAliases maps every accepted spelling to a cadence. It covers the
// canonical tags, the legacy stored tags and message keys, and button labels.
var frequencyAliases = map[string]Frequency{
	"short": Short, "thirtymin": Short, "thirty_min": Short, "30m": Short, "30min": Short,
	"medium": Medium, "onehour": Medium, "one_hour": Medium, "1h": Medium, "60m": Medium,
	"long": Long, "threehours": Long, "three_hours": Long, "3h": Long, "180m": Long,
}

func (f Frequency) Valid() bool {
	_, ok := frequencyTable[f]
	return ok
}

// Interval returns the cadence length, or 0 for an invalid value.
func (f Frequency) Interval() time.Duration { return frequencyTable[f].interval }

// Tag is the canonical persisted form.
func (f Frequency) Tag() string { return frequencyTable[f].tag }

func (f Frequency) Label() string { return frequencyTable[f].label }

func (f Frequency) Emoji() string { return frequencyTable[f].emoji }

func (f Frequency) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
	return f.Tag()
}

// MessageType returns the custom-message category aligned with this cadence.
func (f Frequency) MessageType() MessageType { return MessageType(f.Tag()) }

// ParseFrequency accepts any known spelling, case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	if f, ok := frequencyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
}

// MessageType is the key of a custom message: one of short, medium, long.
type MessageType string

const (
	MessageShort  MessageType = "short"
	MessageMedium MessageType = "medium"
	MessageLong   MessageType = "long"
)

// MessageTypes lists every category in listing order.
var MessageTypes = []MessageType{MessageShort, MessageMedium, MessageLong}

// ParseMessageType normalizes s with the same spellings ParseFrequency accepts.
func ParseMessageType(s string) (MessageType, error) {
	f, ok := frequencyAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q (use short, medium or long)", ErrUnknownMessageType, s)
	}
	return f.MessageType(), nil
}

func (t MessageType) Valid() bool {
	switch t {
	case MessageShort, MessageMedium, MessageLong:
		return true
	}
	return false
}

// Frequency returns the cadence this category belongs to.
func (t MessageType) Frequency() Frequency {
	switch t {
	case MessageShort:
		return Short
	case MessageMedium:
		return Medium
	case MessageLong:
		return Long
	}
	return 0
}

// Order is the listing position, unknown types sort last.
func (t MessageType) Order() int {
	if f := t.Frequency(); f.Valid() {
		return int(f)
	}
	return len(MessageTypes) + 1
}
