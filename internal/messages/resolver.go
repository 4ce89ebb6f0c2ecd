// Package messages picks the text sent for a reminder.
package messages

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"hydrobot/internal/domain"
	logx "hydrobot/pkg/logx"
)

// CustomMessageSource returns the administrator override for a type, if any.
type CustomMessageSource interface {
	GetCustomMessage(ctx context.Context, t domain.MessageType) (string, bool, error)
}

type Resolver struct {
	src   CustomMessageSource
	pools Pools
	log   logx.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Resolver)

func WithPools(p Pools) Option {
	return func(r *Resolver) { r.pools = p }
}

func WithLogger(log logx.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithSeed makes pool selection deterministic.
func WithSeed(seed int64) Option {
	return func(r *Resolver) { r.rnd = rand.New(rand.NewSource(seed)) }
}

func NewResolver(src CustomMessageSource, opts ...Option) *Resolver {
	r := &Resolver{
		src:   src,
		pools: DefaultPools(),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Resolve returns the custom message for t when one exists, otherwise a
// random entry of the default pool. A failing source is logged and treated
// as "no custom message".
func (r *Resolver) Resolve(ctx context.Context, t domain.MessageType) string {
	if r.src != nil {
		text, ok, err := r.src.GetCustomMessage(ctx, t)
		switch {
		case err != nil:
			r.log.Warn("custom message lookup failed", logx.String("type", string(t)), logx.Err(err))
		case ok:
			return text
		}
	}
	return r.pick(t)
}

// ResolveFor is Resolve for the message type matching f.
func (r *Resolver) ResolveFor(ctx context.Context, f domain.Frequency) string {
	return r.Resolve(ctx, f.MessageType())
}

func (r *Resolver) pick(t domain.MessageType) string {
	pool := r.pools[t]
	if len(pool) == 0 {
		return Fallback
	}
	r.mu.Lock()
	i := r.rnd.Intn(len(pool))
	r.mu.Unlock()
	return pool[i]
}
