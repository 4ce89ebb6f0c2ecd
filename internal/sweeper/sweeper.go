// Package sweeper runs the periodic "who is due" cycle.
//
// A sweep holds no state of its own: it snapshots the registry, notifies the
// due subscribers and then stamps every handled subscriber with the sweep's
// own now. A failed delivery still counts as handled so an unreachable user
// is retried one interval later rather than on every tick. A send that was
// never attempted (open circuit, cancelled before sending) is deferred: the
// subscriber keeps its timestamp and is picked up again on the next tick.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"hydrobot/internal/domain"
	"hydrobot/internal/eventbus"
	"hydrobot/internal/notifier"
	logx "hydrobot/pkg/logx"
)

type Registry interface {
	Snapshot() []domain.Subscriber
	UpdateLastNotified(ctx context.Context, id int64, at time.Time)
	Count() int
}

type Resolver interface {
	ResolveFor(ctx context.Context, f domain.Frequency) string
}

// Notifier delivers one reminder. Errors wrapping notifier.ErrNotAttempted
// defer the subscriber instead of counting as a failed delivery.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

type Config struct {
	Interval    time.Duration
	Workers     int
	SendTimeout time.Duration
}

// Report summarizes one sweep.
type Report struct {
	Checked  int
	Due      int
	Sent     int
	Failed   int
	Deferred int
	Took     time.Duration
}

type outcome uint8

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeDeferred
)

type Sweeper struct {
	cfg      Config
	reg      Registry
	resolver Resolver
	notifier Notifier
	log      logx.Logger
	bus      eventbus.Bus
	now      func() time.Time

	// sweepMu keeps RunNow and scheduled ticks from overlapping.
	sweepMu sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Sweeper) { s.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Sweeper) {
		if bus != nil {
			s.bus = bus
		}
	}
}

func New(cfg Config, reg Registry, resolver Resolver, notifier Notifier, opts ...Option) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	s := &Sweeper{
		cfg:      cfg,
		reg:      reg,
		resolver: resolver,
		notifier: notifier,
		bus:      eventbus.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Start schedules a sweep every cfg.Interval. The period never changes
// while running. Start is idempotent.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	base := s.baseCtx
	c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() {
		s.Sweep(base, s.now())
	}))
	c.Start()
	s.cron = c
	s.log.Info("sweeper started", logx.Duration("interval", s.cfg.Interval), logx.Int("workers", s.cfg.Workers))
}

// RunNow performs one sweep immediately on the caller's goroutine.
func (s *Sweeper) RunNow(ctx context.Context) Report {
	return s.Sweep(ctx, s.now())
}

// Stop prevents further ticks and waits for an in-flight sweep until ctx
// expires; past that, in-flight sends are cancelled.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	defer cancel()
	select {
	case <-done.Done():
		s.log.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done.Done()
		return fmt.Errorf("sweeper stop: %w", ctx.Err())
	}
}

// Sweep runs one full cycle using now as the reference instant.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) Report {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	snap := s.reg.Snapshot()
	var due []domain.Subscriber
	for _, sub := range snap {
		if sub.DueAt(now) {
			due = append(due, sub)
		}
	}
	rep := Report{Checked: len(snap), Due: len(due)}

	if len(due) > 0 {
		results := s.dispatch(ctx, due)
		for i, res := range results {
			switch res {
			case outcomeSent:
				rep.Sent++
			case outcomeFailed:
				rep.Failed++
			case outcomeDeferred:
				rep.Deferred++
				continue
			}
			// Every handled subscriber gets the same timestamp.
			s.reg.UpdateLastNotified(ctx, due[i].ID, now)
		}
	}

	rep.Took = time.Since(start)
	active := s.reg.Count()
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepDone, Data: eventbus.SweepEvent{
		Checked: rep.Checked, Due: rep.Due, Sent: rep.Sent, Failed: rep.Failed, Deferred: rep.Deferred, Active: active, Took: rep.Took,
	}})
	if rep.Due > 0 {
		s.log.Info("sweep done",
			logx.Int("checked", rep.Checked),
			logx.Int("due", rep.Due),
			logx.Int("sent", rep.Sent),
			logx.Int("failed", rep.Failed),
			logx.Int("deferred", rep.Deferred),
			logx.Duration("took", rep.Took),
		)
	} else {
		s.log.Debug("sweep done", logx.Int("checked", rep.Checked), logx.Duration("took", rep.Took))
	}
	return rep
}

// dispatch notifies each subscriber at most once with bounded parallelism.
// results[i] is the outcome for due[i].
func (s *Sweeper) dispatch(ctx context.Context, due []domain.Subscriber) []outcome {
	results := make([]outcome, len(due))
	jobs := make(chan int)
	workers := s.cfg.Workers
	if workers > len(due) {
		workers = len(due)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.notifyOne(ctx, due[i])
			}
		}()
	}
	for i := range due {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *Sweeper) notifyOne(ctx context.Context, sub domain.Subscriber) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("reminder panic", logx.Int64("user_id", sub.ID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			res = outcomeFailed
		}
	}()
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	text := s.resolver.ResolveFor(sctx, sub.Frequency)
	err := s.notifier.Notify(sctx, sub.ID, text)
	switch {
	case err == nil:
		return outcomeSent
	case errors.Is(err, notifier.ErrNotAttempted):
		s.log.Debug("reminder deferred", logx.Int64("user_id", sub.ID), logx.Err(err))
		return outcomeDeferred
	}
	s.log.Warn("reminder not delivered",
		logx.Int64("user_id", sub.ID),
		logx.String("frequency", sub.Frequency.Tag()),
		logx.Err(err),
	)
	return outcomeFailed
}
