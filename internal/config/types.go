package config

// Config is the on-disk configuration (YAML or JSON). Durations are Go
// duration strings ("500ms", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Reminder ReminderConfig `json:"reminder"`
	Notifier NotifierConfig `json:"notifier"`
	Ops      OpsConfig      `json:"ops"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id receiving forwarded log lines.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  *bool           `json:"console,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   *bool  `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the persistence driver.
//
//	storage: { driver: file, path: ./data/hydrobot }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type ReminderConfig struct {
	// SweepInterval is fixed for the lifetime of the process.
	SweepInterval       string `json:"sweep_interval,omitempty"`
	RegistrationTimeout string `json:"registration_timeout,omitempty"`
	Workers             int    `json:"workers,omitempty"`
	SendTimeout         string `json:"send_timeout,omitempty"`
}

type NotifierConfig struct {
	RatePerSec    int           `json:"rate_per_sec,omitempty"`
	RetryMax      *int          `json:"retry_max,omitempty"`
	RetryBase     string        `json:"retry_base,omitempty"`
	RetryMaxDelay string        `json:"retry_max_delay,omitempty"`
	Breaker       BreakerConfig `json:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32 `json:"max_failures,omitempty"`
	OpenTimeout string `json:"open_timeout,omitempty"`
	Interval    string `json:"interval,omitempty"`
}

// OpsConfig controls the operator HTTP server (/healthz, /metrics, pprof).
//
// Prefer a loopback addr. A non-loopback bind needs a token or an explicit
// allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
