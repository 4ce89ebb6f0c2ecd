package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"hydrobot/internal/eventbus"
	"hydrobot/internal/transport"
	logx "hydrobot/pkg/logx"
)

var ErrNoSender = errors.New("notifier: no sender")

// ErrNotAttempted marks a Notify that never reached the sender, e.g. because
// the circuit was open. The recipient is owed a retry.
var ErrNotAttempted = errors.New("notifier: send not attempted")

const historyMax = 300

// Sender is the outbound half of a transport.Adapter.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Service sends reminders synchronously; it is safe for concurrent use.
type Service struct {
	sender  Sender
	log     logx.Logger
	bus     eventbus.Bus
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	cfg = withDefaults(cfg)
	s := &Service{
		sender:  sender,
		log:     log,
		bus:     bus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sleep:   sleepCtx,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram.send",
		MaxRequests: 1,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Breaker.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logx.String("breaker", name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	})
	return s
}

func withDefaults(cfg Config) Config {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = 5
	}
	if cfg.Breaker.OpenTimeout <= 0 {
		cfg.Breaker.OpenTimeout = 30 * time.Second
	}
	return cfg
}

// IsPermanent reports whether err can never be fixed by retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, transport.ErrRecipientUnreachable)
}

// BreakerState is the current circuit state ("closed", "half-open", "open").
func (s *Service) BreakerState() string { return s.breaker.State().String() }

// Notify delivers text to the private chat of userID. It returns the last
// error when every attempt failed; callers log it and move on.
func (s *Service) Notify(ctx context.Context, userID int64, text string) error {
	if s.sender == nil {
		return ErrNoSender
	}
	to := transport.ChatTarget{ChatID: userID}
	maxAttempts := 1 + s.cfg.RetryMax

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		_, err := s.breaker.Execute(func() (interface{}, error) {
			attempts++
			return s.sender.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true})
		})
		if err == nil {
			s.record(userID, attempts, nil)
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderSent, Data: eventbus.SubscriberEvent{UserID: userID, At: time.Now()}})
			return nil
		}
		lastErr = err
		s.log.Debug("reminder send failed", logx.Int64("user_id", userID), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))

		if IsPermanent(err) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt >= maxAttempts {
			break
		}
		if err := s.sleep(ctx, retryDelay(s.cfg, attempt)); err != nil {
			lastErr = err
			break
		}
	}

	if attempts == 0 {
		s.log.Debug("reminder deferred", logx.Int64("user_id", userID), logx.Err(lastErr))
		return fmt.Errorf("notify %d: %w: %w", userID, ErrNotAttempted, lastErr)
	}
	s.record(userID, attempts, lastErr)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFailed, Data: eventbus.SubscriberEvent{UserID: userID, At: time.Now(), Error: lastErr.Error()}})
	return fmt.Errorf("notify %d: %w", userID, lastErr)
}

// Snapshot returns the recent delivery history, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) record(userID int64, attempts int, err error) {
	it := HistoryItem{At: time.Now(), UserID: userID, OK: err == nil, Attempts: attempts}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1) with
// 0.7..1.3 jitter, capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	maxD := cfg.RetryMaxDelay
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
