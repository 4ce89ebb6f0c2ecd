// Package reminder is the core facade the command surface talks to.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hydrobot/internal/domain"
	"hydrobot/internal/registry"
	logx "hydrobot/pkg/logx"
)

var ErrNotRegistered = errors.New("not registered")

// MessageStore holds the custom message overrides.
type MessageStore interface {
	UpsertCustomMessage(ctx context.Context, m domain.CustomMessage) error
	DeleteCustomMessage(ctx context.Context, t domain.MessageType) (bool, error)
	ListCustomMessages(ctx context.Context) ([]domain.CustomMessage, error)
}

type Service struct {
	reg      *registry.Registry
	messages MessageStore
	log      logx.Logger
	now      func() time.Time
}

func NewService(reg *registry.Registry, messages MessageStore, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{reg: reg, messages: messages, log: log, now: time.Now}
}

// Register enrolls userID, or changes the cadence of an existing subscriber.
// The reminder clock restarts from now either way.
func (s *Service) Register(ctx context.Context, userID int64, displayName string, f domain.Frequency) (domain.Subscriber, error) {
	if !f.Valid() {
		return domain.Subscriber{}, domain.ErrUnknownFrequency
	}
	sub := s.reg.Insert(ctx, userID, displayName, f)
	s.log.Info("subscriber registered", logx.Int64("user_id", userID), logx.String("frequency", f.Tag()))
	return sub, nil
}

func (s *Service) Unregister(ctx context.Context, userID int64) error {
	if !s.reg.Remove(ctx, userID) {
		return ErrNotRegistered
	}
	s.log.Info("subscriber unregistered", logx.Int64("user_id", userID))
	return nil
}

// Subscriber returns the caller's current registration.
func (s *Service) Subscriber(userID int64) (domain.Subscriber, bool) {
	return s.reg.Get(userID)
}

func (s *Service) ActiveSubscriberCount() int { return s.reg.Count() }

// AddCustomMessage validates and stores an override for rawType. Validation
// errors wrap domain.ErrUnknownMessageType or domain.ErrEmptyMessage.
func (s *Service) AddCustomMessage(ctx context.Context, authorID int64, rawType, text string) (domain.CustomMessage, error) {
	m, err := domain.NewCustomMessage(authorID, rawType, text)
	if err != nil {
		return domain.CustomMessage{}, err
	}
	m.CreatedAt = domain.UTCSecond(s.now())
	if err := s.messages.UpsertCustomMessage(ctx, m); err != nil {
		return domain.CustomMessage{}, fmt.Errorf("save custom message: %w", err)
	}
	s.log.Info("custom message set", logx.String("type", string(m.Type)), logx.Int64("author_id", authorID))
	return m, nil
}

// RemoveCustomMessage reports whether an override existed for rawType.
func (s *Service) RemoveCustomMessage(ctx context.Context, rawType string) (domain.MessageType, bool, error) {
	mt, err := domain.ParseMessageType(rawType)
	if err != nil {
		return "", false, err
	}
	ok, err := s.messages.DeleteCustomMessage(ctx, mt)
	if err != nil {
		return mt, false, fmt.Errorf("delete custom message: %w", err)
	}
	if ok {
		s.log.Info("custom message removed", logx.String("type", string(mt)))
	}
	return mt, ok, nil
}

// ListCustomMessages is ordered short, medium, long.
func (s *Service) ListCustomMessages(ctx context.Context) ([]domain.CustomMessage, error) {
	return s.messages.ListCustomMessages(ctx)
}
