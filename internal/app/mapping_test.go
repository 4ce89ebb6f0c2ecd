package app

import (
	"strings"
	"testing"
	"time"

	"hydrobot/internal/config"
)

func defaults(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Telegram: config.TelegramConfig{Token: "t"}}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := defaults(t)
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if sc.Driver != "sqlite" || sc.BusyTimeout != 5*time.Second || sc.Path != "./data/hydrobot.db" {
		t.Fatalf("storage = %+v", sc)
	}

	cfg.Storage.Driver = "FILE"
	if sc, err = mapStorageConfig(cfg); err != nil || sc.Driver != "file" {
		t.Fatalf("file driver = %+v, %v", sc, err)
	}

	cfg.Storage.Driver = "bolt"
	if _, err := mapStorageConfig(cfg); err == nil || !strings.Contains(err.Error(), "bolt") {
		t.Fatalf("err = %v", err)
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	cfg := defaults(t)
	zero := 0
	cfg.Notifier.RetryMax = &zero
	cfg.Notifier.RetryBase = "250ms"

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if nc.RetryMax != 0 {
		t.Fatalf("explicit retry_max 0 lost: %d", nc.RetryMax)
	}
	if nc.RetryBase != 250*time.Millisecond || nc.RetryMaxDelay != 5*time.Second {
		t.Fatalf("retry delays = %v / %v", nc.RetryBase, nc.RetryMaxDelay)
	}
	if nc.Breaker.MaxFailures != 5 || nc.Breaker.OpenTimeout != 30*time.Second || nc.Breaker.Interval != time.Minute {
		t.Fatalf("breaker = %+v", nc.Breaker)
	}

	cfg.Notifier.Breaker.OpenTimeout = "never"
	if _, err := mapNotifierConfig(cfg); err == nil {
		t.Fatalf("bad duration accepted")
	}
}

func TestMapSweeperAndTelegramConfig(t *testing.T) {
	t.Parallel()
	cfg := defaults(t)
	cfg.Reminder.SweepInterval = "30s"

	swc, err := mapSweeperConfig(cfg)
	if err != nil {
		t.Fatalf("sweeper: %v", err)
	}
	if swc.Interval != 30*time.Second || swc.Workers != 4 || swc.SendTimeout != 15*time.Second {
		t.Fatalf("sweeper = %+v", swc)
	}

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		t.Fatalf("telegram: %v", err)
	}
	if tc.Token != "t" || tc.PollTimeout != 10*time.Second || tc.UpdateBuffer != updateBuffer {
		t.Fatalf("telegram = %+v", tc)
	}
}

func TestMapOpsConfig(t *testing.T) {
	t.Parallel()
	cfg := defaults(t)
	cfg.Ops.Token = "x"
	cfg.Ops.Pprof = true
	oc := mapOpsConfig(cfg)
	if oc.Addr != "127.0.0.1:9090" || oc.Token != "x" || !oc.Pprof {
		t.Fatalf("ops = %+v", oc)
	}
}
