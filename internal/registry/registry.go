package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"hydrobot/internal/domain"
	"hydrobot/internal/eventbus"
	logx "hydrobot/pkg/logx"
)

// SubscriberStore is the slice of storage the registry writes through to.
type SubscriberStore interface {
	UpsertSubscriber(ctx context.Context, s domain.Subscriber) error
	DeleteSubscriber(ctx context.Context, userID int64) error
}

// Registry is the authoritative in-memory set of subscribers, keyed strictly
// by user id.
//
// Mutations update memory under the write lock, then persist with the lock
// released. Persistence failures are logged and published on the bus; they
// never fail the in-memory update.
type Registry struct {
	mu   sync.RWMutex
	subs map[int64]domain.Subscriber

	// persistMu serializes store writes so the durable copy converges on the
	// latest in-memory state even when writers race.
	persistMu sync.Mutex

	store          SubscriberStore
	log            logx.Logger
	bus            eventbus.Bus
	now            func() time.Time
	persistTimeout time.Duration
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(r *Registry) {
		if bus != nil {
			r.bus = bus
		}
	}
}

// WithPersistTimeout bounds each store write.
func WithPersistTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.persistTimeout = d
		}
	}
}

func New(store SubscriberStore, opts ...Option) *Registry {
	r := &Registry{
		subs:           map[int64]domain.Subscriber{},
		store:          store,
		bus:            eventbus.Nop(),
		now:            time.Now,
		persistTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Load replaces the working set with subs. Called once at startup with the
// result of Store.LoadAll; it does not write through.
func (r *Registry) Load(subs []domain.Subscriber) {
	m := make(map[int64]domain.Subscriber, len(subs))
	for _, s := range subs {
		m[s.ID] = s
	}
	r.mu.Lock()
	r.subs = m
	r.mu.Unlock()
}

// Insert registers or re-registers a subscriber with lastNotifiedAt = now.
// It returns the stored entry.
func (r *Registry) Insert(ctx context.Context, id int64, displayName string, f domain.Frequency) domain.Subscriber {
	now := domain.UTCSecond(r.now())

	r.mu.Lock()
	s := domain.Subscriber{ID: id, DisplayName: displayName, Frequency: f, LastNotifiedAt: now, CreatedAt: now}
	if prev, ok := r.subs[id]; ok && !prev.CreatedAt.IsZero() {
		s.CreatedAt = prev.CreatedAt
	}
	r.subs[id] = s
	r.mu.Unlock()

	r.persist(ctx, id, "insert")
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeSubscribed, Data: eventbus.SubscriberEvent{UserID: id, Op: f.Tag(), At: now}})
	return s
}

// Remove deletes the subscriber. It reports whether an entry existed; an
// absent id is a no-op.
func (r *Registry) Remove(ctx context.Context, id int64) bool {
	r.mu.Lock()
	_, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.persist(ctx, id, "remove")
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeUnsubscribed, Data: eventbus.SubscriberEvent{UserID: id, At: r.now()}})
	return true
}

// UpdateLastNotified records a dispatch. A subscriber removed in the meantime
// stays removed.
func (r *Registry) UpdateLastNotified(ctx context.Context, id int64, at time.Time) {
	at = domain.UTCSecond(at)

	r.mu.Lock()
	s, ok := r.subs[id]
	if ok {
		s.LastNotifiedAt = at
		r.subs[id] = s
	}
	r.mu.Unlock()

	if ok {
		r.persist(ctx, id, "update_last_notified")
	}
}

func (r *Registry) Get(id int64) (domain.Subscriber, bool) {
	r.mu.RLock()
	s, ok := r.subs[id]
	r.mu.RUnlock()
	return s, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.subs)
	r.mu.RUnlock()
	return n
}

// Snapshot returns a copy of all subscribers ordered by id.
func (r *Registry) Snapshot() []domain.Subscriber {
	r.mu.RLock()
	out := make([]domain.Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// persist writes the current in-memory state of id: an upsert when present,
// a delete when absent. The registry lock is only held to read the entry.
func (r *Registry) persist(ctx context.Context, id int64, op string) {
	if r.store == nil {
		return
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	s, ok := r.Get(id)

	// Detached from caller cancellation, bounded by persistTimeout.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	var err error
	if ok {
		err = r.store.UpsertSubscriber(pctx, s)
	} else {
		err = r.store.DeleteSubscriber(pctx, id)
	}
	if err == nil {
		return
	}
	r.log.Warn("subscriber persist failed", logx.Int64("user_id", id), logx.String("op", op), logx.Err(err))
	r.bus.Publish(eventbus.Event{
		Type: eventbus.TypePersistFailed,
		Data: eventbus.SubscriberEvent{UserID: id, Op: op, At: r.now(), Error: err.Error()},
	})
}
