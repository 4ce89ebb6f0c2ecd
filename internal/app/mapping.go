package app

import (
	"fmt"
	"strings"
	"time"

	"hydrobot/internal/config"
	"hydrobot/internal/notifier"
	"hydrobot/internal/observability/ops"
	"hydrobot/internal/storage"
	"hydrobot/internal/sweeper"
	"hydrobot/internal/transport/telegram"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required")
	}
	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll, UpdateBuffer: updateBuffer}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	out := notifier.Config{
		RatePerSec: nc.RatePerSec,
		RetryMax:   2,
		Breaker:    notifier.BreakerConfig{MaxFailures: nc.Breaker.MaxFailures},
	}
	if nc.RetryMax != nil {
		out.RetryMax = *nc.RetryMax
	}
	var err error
	for _, d := range []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"notifier.retry_base", nc.RetryBase, 500 * time.Millisecond, &out.RetryBase},
		{"notifier.retry_max_delay", nc.RetryMaxDelay, 5 * time.Second, &out.RetryMaxDelay},
		{"notifier.breaker.open_timeout", nc.Breaker.OpenTimeout, 30 * time.Second, &out.Breaker.OpenTimeout},
		{"notifier.breaker.interval", nc.Breaker.Interval, time.Minute, &out.Breaker.Interval},
	} {
		if *d.dst, err = config.ParseDurationOrDefault(d.path, d.raw, d.def); err != nil {
			return notifier.Config{}, err
		}
	}
	return out, nil
}

func mapSweeperConfig(cfg *config.Config) (sweeper.Config, error) {
	rc := cfg.Reminder
	interval, err := config.ParseDurationOrDefault("reminder.sweep_interval", rc.SweepInterval, time.Minute)
	if err != nil {
		return sweeper.Config{}, err
	}
	send, err := config.ParseDurationOrDefault("reminder.send_timeout", rc.SendTimeout, 15*time.Second)
	if err != nil {
		return sweeper.Config{}, err
	}
	return sweeper.Config{Interval: interval, Workers: rc.Workers, SendTimeout: send}, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		Pprof:         cfg.Ops.Pprof,
		AllowInsecure: cfg.Ops.AllowInsecure,
	}
}
