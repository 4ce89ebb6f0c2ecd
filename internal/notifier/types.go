package notifier

import "time"

type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	Breaker       BreakerConfig
}

// BreakerConfig controls the circuit breaker around the platform API.
type BreakerConfig struct {
	// MaxFailures consecutive transient failures open the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial send.
	OpenTimeout time.Duration
	// Interval clears the closed-state counters; zero never clears them.
	Interval time.Duration
}

type HistoryItem struct {
	At       time.Time
	UserID   int64
	OK       bool
	Attempts int
	Error    string
}
