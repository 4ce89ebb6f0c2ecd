package storage

import (
	"context"
	"errors"
	"time"

	"hydrobot/internal/domain"
)

var ErrClosed = errors.New("storage closed")

// Store is the persistence API used by the registry, the resolver and the
// command surface.
type Store interface {
	// LoadAll returns every subscriber and custom message. Corrupt fields are
	// replaced by safe defaults, never returned as errors.
	LoadAll(ctx context.Context) ([]domain.Subscriber, []domain.CustomMessage, error)

	UpsertSubscriber(ctx context.Context, s domain.Subscriber) error
	DeleteSubscriber(ctx context.Context, userID int64) error

	UpsertCustomMessage(ctx context.Context, m domain.CustomMessage) error
	// DeleteCustomMessage reports whether a message existed.
	DeleteCustomMessage(ctx context.Context, t domain.MessageType) (bool, error)
	GetCustomMessage(ctx context.Context, t domain.MessageType) (text string, ok bool, err error)
	// ListCustomMessages is ordered by type: short, medium, long.
	ListCustomMessages(ctx context.Context) ([]domain.CustomMessage, error)

	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file with embedded goose migrations (default)
//   - "file": JSON snapshot + JSONL journal next to Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
