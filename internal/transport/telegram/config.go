package telegram

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// UpdateBuffer is advisory; the caller owns the updates channel.
	UpdateBuffer int
}
