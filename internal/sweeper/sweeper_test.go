package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrobot/internal/domain"
	"hydrobot/internal/eventbus"
	"hydrobot/internal/messages"
	"hydrobot/internal/notifier"
	"hydrobot/internal/registry"
	"hydrobot/internal/transport"
	logx "hydrobot/pkg/logx"
)

type sent struct {
	UserID int64
	Text   string
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sent
	fail  map[int64]error
	panic map[int64]bool
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, text string) error {
	if n.panic[userID] {
		panic("send exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{userID, text})
	return n.fail[userID]
}

func (n *recordingNotifier) calls() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.sent...)
}

type customSource struct {
	mu    sync.Mutex
	texts map[domain.MessageType]string
}

func (c *customSource) GetCustomMessage(_ context.Context, t domain.MessageType) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.texts[t]
	return s, ok, nil
}

func (c *customSource) set(t domain.MessageType, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text == "" {
		delete(c.texts, t)
		return
	}
	c.texts[t] = text
}

type fixture struct {
	now   time.Time
	reg   *registry.Registry
	src   *customSource
	notif *recordingNotifier
	sw    *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		src:   &customSource{texts: map[domain.MessageType]string{}},
		notif: &recordingNotifier{fail: map[int64]error{}, panic: map[int64]bool{}},
	}
	clock := func() time.Time { return f.now }
	f.reg = registry.New(nil, registry.WithClock(clock))
	f.sw = New(Config{Workers: 3}, f.reg, messages.NewResolver(f.src), f.notif, WithClock(clock))
	return f
}

func TestMediumSubscriberEndToEnd(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	f.reg.Insert(context.Background(), 42, "ana", domain.Medium)

	f.now = t0.Add(59 * time.Minute)
	rep := f.sw.RunNow(context.Background())
	assert.Equal(t, 1, rep.Checked)
	assert.Zero(t, rep.Due)
	assert.Empty(t, f.notif.calls())
	got, _ := f.reg.Get(42)
	assert.Equal(t, t0, got.LastNotifiedAt)

	f.now = t0.Add(61 * time.Minute)
	rep = f.sw.RunNow(context.Background())
	assert.Equal(t, 1, rep.Sent)
	require.Len(t, f.notif.calls(), 1)
	assert.Equal(t, int64(42), f.notif.calls()[0].UserID)
	got, _ = f.reg.Get(42)
	assert.Equal(t, f.now, got.LastNotifiedAt)
}

func TestDueExactlyAtInterval(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	f.reg.Insert(context.Background(), 1, "a", domain.Short)

	f.now = t0.Add(30*time.Minute - time.Second)
	assert.Zero(t, f.sw.RunNow(context.Background()).Due)

	f.now = t0.Add(30 * time.Minute)
	assert.Equal(t, 1, f.sw.RunNow(context.Background()).Due)
}

func TestCustomMessageOverridesPool(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	f.src.set(domain.MessageShort, "Hydrate!")
	f.reg.Insert(context.Background(), 5, "b", domain.Short)

	f.now = t0.Add(31 * time.Minute)
	f.sw.RunNow(context.Background())
	require.Len(t, f.notif.calls(), 1)
	assert.Equal(t, "Hydrate!", f.notif.calls()[0].Text)

	f.src.set(domain.MessageShort, "")
	f.now = f.now.Add(31 * time.Minute)
	f.sw.RunNow(context.Background())
	calls := f.notif.calls()
	require.Len(t, calls, 2)
	assert.True(t, messages.DefaultPools().Contains(domain.MessageShort, calls[1].Text))
}

func TestSweepNotifiesEachSubscriberAtMostOnce(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	for id := int64(1); id <= 25; id++ {
		f.reg.Insert(context.Background(), id, "same name", domain.Frequencies[id%3])
	}

	f.now = t0.Add(4 * time.Hour)
	rep := f.sw.RunNow(context.Background())
	assert.Equal(t, 25, rep.Due)

	seen := map[int64]int{}
	for _, c := range f.notif.calls() {
		seen[c.UserID]++
	}
	assert.Len(t, seen, 25)
	for id, n := range seen {
		assert.Equal(t, 1, n, "user %d", id)
	}
	for _, s := range f.reg.Snapshot() {
		assert.Equal(t, f.now, s.LastNotifiedAt)
	}
}

func TestFailuresAreIsolatedAndStillAdvance(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	for id := int64(1); id <= 3; id++ {
		f.reg.Insert(context.Background(), id, "x", domain.Short)
	}
	f.notif.fail[1] = errors.New("blocked")
	f.notif.panic[2] = true

	f.now = t0.Add(time.Hour)
	rep := f.sw.RunNow(context.Background())

	assert.Equal(t, 3, rep.Due)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 2, rep.Failed)
	for _, s := range f.reg.Snapshot() {
		assert.Equal(t, f.now, s.LastNotifiedAt, "user %d", s.ID)
	}
}

type flakySender struct {
	mu    sync.Mutex
	fail  map[int64]bool
	calls map[int64]int
}

func (f *flakySender) SendText(_ context.Context, to transport.ChatTarget, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to.ChatID]++
	if f.fail[to.ChatID] {
		return transport.MessageRef{}, errors.New("502 bad gateway")
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func TestOpenCircuitDefersRemainingSubscribers(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	snd := &flakySender{fail: map[int64]bool{}, calls: map[int64]int{}}
	for id := int64(1); id <= 8; id++ {
		f.reg.Insert(context.Background(), id, "x", domain.Short)
		if id <= 5 {
			snd.fail[id] = true
		}
	}
	notif := notifier.New(notifier.Config{
		RatePerSec: 1000,
		RetryMax:   0,
		Breaker:    notifier.BreakerConfig{MaxFailures: 5, OpenTimeout: time.Hour},
	}, snd, logx.Nop(), nil)
	sw := New(Config{Workers: 1}, f.reg, messages.NewResolver(nil), notif, WithClock(func() time.Time { return f.now }))

	f.now = t0.Add(time.Hour)
	rep := sw.RunNow(context.Background())

	assert.Equal(t, 8, rep.Due)
	assert.Equal(t, 0, rep.Sent)
	assert.Equal(t, 5, rep.Failed)
	assert.Equal(t, 3, rep.Deferred)
	for id := int64(1); id <= 8; id++ {
		s, ok := f.reg.Get(id)
		require.True(t, ok)
		if id <= 5 {
			assert.Equal(t, 1, snd.calls[id], "user %d", id)
			assert.Equal(t, f.now, s.LastNotifiedAt, "user %d", id)
			continue
		}
		assert.Zero(t, snd.calls[id], "user %d", id)
		assert.Equal(t, t0, s.LastNotifiedAt, "user %d", id)
		assert.True(t, s.DueAt(f.now.Add(time.Minute)), "user %d", id)
	}
}

func TestDeferredNotifyKeepsTimestamp(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	f.reg.Insert(context.Background(), 1, "x", domain.Short)
	f.reg.Insert(context.Background(), 2, "x", domain.Short)
	f.notif.fail[2] = fmt.Errorf("notify 2: %w: %w", notifier.ErrNotAttempted, context.Canceled)

	f.now = t0.Add(time.Hour)
	rep := f.sw.RunNow(context.Background())

	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, 1, rep.Deferred)
	s1, _ := f.reg.Get(1)
	s2, _ := f.reg.Get(2)
	assert.Equal(t, f.now, s1.LastNotifiedAt)
	assert.Equal(t, t0, s2.LastNotifiedAt)
}

func TestRemovedDuringSweepStaysRemoved(t *testing.T) {
	f := newFixture(t)
	t0 := f.now
	f.reg.Insert(context.Background(), 8, "x", domain.Short)

	remover := &removingNotifier{reg: f.reg}
	sw := New(Config{}, f.reg, messages.NewResolver(nil), remover, WithClock(func() time.Time { return f.now }))

	f.now = t0.Add(time.Hour)
	rep := sw.RunNow(context.Background())
	assert.Equal(t, 1, rep.Sent)
	_, ok := f.reg.Get(8)
	assert.False(t, ok)
}

type removingNotifier struct{ reg *registry.Registry }

func (r *removingNotifier) Notify(ctx context.Context, userID int64, _ string) error {
	r.reg.Remove(ctx, userID)
	return nil
}

func TestSweepPublishesReport(t *testing.T) {
	f := newFixture(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(2)
	defer unsub()
	sw := New(Config{}, f.reg, messages.NewResolver(nil), f.notif, WithBus(bus), WithClock(func() time.Time { return f.now }))

	f.reg.Insert(context.Background(), 1, "x", domain.Long)
	sw.RunNow(context.Background())

	e := <-events
	assert.Equal(t, eventbus.TypeSweepDone, e.Type)
	ev := e.Data.(eventbus.SweepEvent)
	assert.Equal(t, 1, ev.Checked)
	assert.Equal(t, 1, ev.Active)
}

type countingRegistry struct {
	Registry
	snaps atomic.Int32
}

func (c *countingRegistry) Snapshot() []domain.Subscriber {
	c.snaps.Add(1)
	return c.Registry.Snapshot()
}

func TestStartTicksAndStop(t *testing.T) {
	reg := &countingRegistry{Registry: registry.New(nil)}
	sw := New(Config{Interval: time.Second}, reg, messages.NewResolver(nil), &recordingNotifier{})

	sw.Start(context.Background())
	sw.Start(context.Background())
	require.Eventually(t, func() bool { return reg.snaps.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sw.Stop(ctx))
	require.NoError(t, sw.Stop(ctx))

	n := reg.snaps.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, reg.snaps.Load())
}
