// Package metrics exposes reminder activity as Prometheus collectors fed from
// the event bus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hydrobot/internal/eventbus"
)

const namespace = "hydrobot"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	SubscribersActive prometheus.GaugeFunc
	RemindersSent     prometheus.Counter
	RemindersFailed   prometheus.Counter
	RemindersDeferred prometheus.Counter
	Sweeps            prometheus.Counter
	SweepDuration     prometheus.Histogram
	PersistFailures   prometheus.Counter
	Commands          *prometheus.CounterVec
}

// New registers all collectors. active reports the current subscriber count
// at scrape time.
func New(active func() int) *Metrics {
	if active == nil {
		active = func() int { return 0 }
	}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		SubscribersActive: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscribers_active",
				Help:      "Number of registered reminder subscribers",
			},
			func() float64 { return float64(active()) },
		),
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders delivered",
		}),
		RemindersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_failed_total",
			Help:      "Reminders that could not be delivered",
		}),
		RemindersDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_deferred_total",
			Help:      "Due reminders left for the next sweep because no send was attempted",
		}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed due-reminder sweeps",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a sweep including sends",
			Buckets:   prometheus.DefBuckets,
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Registry writes the store rejected",
		}),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Handled chat commands",
			},
			[]string{"command"},
		),
	}

	m.reg.MustRegister(
		m.SubscribersActive,
		m.RemindersSent,
		m.RemindersFailed,
		m.RemindersDeferred,
		m.Sweeps,
		m.SweepDuration,
		m.PersistFailures,
		m.Commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe updates collectors from one bus event. Unknown types are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeReminderSent:
		m.RemindersSent.Inc()
	case eventbus.TypeReminderFailed:
		m.RemindersFailed.Inc()
	case eventbus.TypePersistFailed:
		m.PersistFailures.Inc()
	case eventbus.TypeSweepDone:
		m.Sweeps.Inc()
		if r, ok := e.Data.(eventbus.SweepEvent); ok {
			m.SweepDuration.Observe(r.Took.Seconds())
			m.RemindersDeferred.Add(float64(r.Deferred))
		}
	case eventbus.TypeCommandHandled:
		if c, ok := e.Data.(eventbus.CommandEvent); ok && c.Command != "" {
			m.Commands.WithLabelValues(c.Command).Inc()
		}
	}
}

// Run feeds bus events into Observe until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
