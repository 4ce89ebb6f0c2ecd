package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultPath     = "./config.yaml"
	EnvPrefix       = "HYDROBOT"
	defaultLogPath  = "./hydrobot.log"
	defaultDBPath   = "./data/hydrobot.db"
	defaultOpsAddr  = "127.0.0.1:9090"
	defaultRetryMax = 2
)

// envOverrides are read from HYDROBOT_* variables and win over the file.
type envOverrides struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	StorageDriver string `envconfig:"STORAGE_DRIVER"`
	StoragePath   string `envconfig:"STORAGE_PATH"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	OpsAddr       string `envconfig:"OPS_ADDR"`
	OpsToken      string `envconfig:"OPS_TOKEN"`
}

// ApplyEnv overlays HYDROBOT_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var e envOverrides
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, e.TelegramToken)
	set(&cfg.Storage.Driver, e.StorageDriver)
	set(&cfg.Storage.Path, e.StoragePath)
	set(&cfg.Logging.Level, e.LogLevel)
	set(&cfg.Ops.Addr, e.OpsAddr)
	set(&cfg.Ops.Token, e.OpsToken)
	return nil
}

// ApplyDefaults fills zero values. Durations stay strings; consumers use
// ParseDurationOrDefault.
func ApplyDefaults(cfg *Config) {
	def := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	defInt := func(dst *int, v int) {
		if *dst <= 0 {
			*dst = v
		}
	}
	yes := true

	def(&cfg.Telegram.PollTimeout, "10s")

	def(&cfg.Logging.Level, "info")
	if cfg.Logging.Console == nil {
		cfg.Logging.Console = &yes
	}
	def(&cfg.Logging.File.Path, defaultLogPath)
	defInt(&cfg.Logging.File.MaxSizeMB, 10)
	defInt(&cfg.Logging.File.MaxBackups, 5)
	defInt(&cfg.Logging.File.MaxAgeDays, 30)
	if cfg.Logging.File.Compress == nil {
		cfg.Logging.File.Compress = &yes
	}
	def(&cfg.Logging.Telegram.MinLevel, "warn")
	defInt(&cfg.Logging.Telegram.RatePerSec, 1)

	def(&cfg.Storage.Driver, "sqlite")
	def(&cfg.Storage.Path, defaultDBPath)
	def(&cfg.Storage.BusyTimeout, "5s")

	def(&cfg.Reminder.SweepInterval, "1m")
	def(&cfg.Reminder.RegistrationTimeout, "3m")
	defInt(&cfg.Reminder.Workers, 4)
	def(&cfg.Reminder.SendTimeout, "15s")

	defInt(&cfg.Notifier.RatePerSec, 20)
	if cfg.Notifier.RetryMax == nil {
		n := defaultRetryMax
		cfg.Notifier.RetryMax = &n
	}
	def(&cfg.Notifier.RetryBase, "500ms")
	def(&cfg.Notifier.RetryMaxDelay, "5s")
	if cfg.Notifier.Breaker.MaxFailures == 0 {
		cfg.Notifier.Breaker.MaxFailures = 5
	}
	def(&cfg.Notifier.Breaker.OpenTimeout, "30s")
	def(&cfg.Notifier.Breaker.Interval, "1m")

	def(&cfg.Ops.Addr, defaultOpsAddr)
}

// Validate checks a config after ApplyDefaults. It reports every problem at
// once.
func Validate(cfg *Config) error {
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := cfg.GroupLogChatID(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "sqlite3", "file":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Reminder.Workers <= 0 {
		errs = append(errs, errors.New("reminder.workers must be > 0"))
	}
	if n := cfg.Notifier.RetryMax; n != nil && *n < 0 {
		errs = append(errs, errors.New("notifier.retry_max must be >= 0"))
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"reminder.sweep_interval", cfg.Reminder.SweepInterval},
		{"reminder.registration_timeout", cfg.Reminder.RegistrationTimeout},
		{"reminder.send_timeout", cfg.Reminder.SendTimeout},
		{"notifier.retry_base", cfg.Notifier.RetryBase},
		{"notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay},
		{"notifier.breaker.open_timeout", cfg.Notifier.Breaker.OpenTimeout},
		{"notifier.breaker.interval", cfg.Notifier.Breaker.Interval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if d, err := ParseDurationField("reminder.sweep_interval", cfg.Reminder.SweepInterval); err == nil && d > 0 && d < time.Second {
		errs = append(errs, errors.New("reminder.sweep_interval must be at least 1s"))
	}

	if cfg.Ops.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Ops.Addr); err != nil {
			errs = append(errs, fmt.Errorf("ops.addr: %w", err))
		} else if !IsLoopbackAddr(cfg.Ops.Addr) && cfg.Ops.Token == "" && !cfg.Ops.AllowInsecure {
			errs = append(errs, errors.New("ops.addr is not loopback: set ops.token or ops.allow_insecure"))
		}
	}
	return errors.Join(errs...)
}

// GroupLogChatID parses telegram.group_log; 0 means unset.
func (c *Config) GroupLogChatID() (int64, error) {
	s := strings.TrimSpace(c.Telegram.GroupLog)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", c.Telegram.GroupLog)
	}
	return id, nil
}

// IsLoopbackAddr reports whether host:port binds to loopback only. An empty
// host binds all interfaces.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
