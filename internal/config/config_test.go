package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  group_log: "-1001"
logging:
  level: debug
  telegram:
    enabled: true
    thread_id: 7
storage:
  driver: file
  path: ./state
reminder:
  sweep_interval: 30s
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.OwnerUserIDs) != 1 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != "./state" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Reminder.SweepInterval != "30s" || cfg.Reminder.RegistrationTimeout != "3m" || cfg.Reminder.Workers != 4 {
		t.Fatalf("reminder = %+v", cfg.Reminder)
	}
	if cfg.Notifier.RetryMax == nil || *cfg.Notifier.RetryMax != defaultRetryMax {
		t.Fatalf("retry_max default not applied")
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return committed config")
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode("c.yaml", []byte("telegram:\n  tokn: x\n"))
	if err == nil || !strings.Contains(err.Error(), "tokn") {
		t.Fatalf("err = %v, want unknown field", err)
	}
}

func TestDecodeRejectsTrailingJSON(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"telegram":{"token":"x"}}{}`))
	if err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HYDROBOT_TELEGRAM_TOKEN", "from-env")
	t.Setenv("HYDROBOT_STORAGE_DRIVER", "sqlite")
	t.Setenv("HYDROBOT_LOG_LEVEL", "warn")

	cfg, err := NewManager(writeFile(t, "config.yaml", sampleYAML)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./state" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{Telegram: TelegramConfig{Token: "t"}}
		ApplyDefaults(c)
		return c
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"bad group log", func(c *Config) { c.Telegram.GroupLog = "logs" }, "group_log"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"bad duration", func(c *Config) { c.Reminder.SendTimeout = "soon" }, "reminder.send_timeout"},
		{"tiny sweep", func(c *Config) { c.Reminder.SweepInterval = "10ms" }, "sweep_interval"},
		{"exposed ops", func(c *Config) {
			c.Ops.Enabled = true
			c.Ops.Addr = "0.0.0.0:9090"
		}, "ops.addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mut(c)
			err := Validate(c)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}

	c := base()
	c.Ops.Enabled = true
	c.Ops.Addr = "0.0.0.0:9090"
	c.Ops.Token = "secret"
	if err := Validate(c); err != nil {
		t.Fatalf("token should allow non-loopback: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:1":   true,
		"localhost:1":   true,
		"[::1]:1":       true,
		":9090":         false,
		"10.0.0.1:9090": false,
		"garbage":       false,
	} {
		if got := IsLoopbackAddr(addr); got != want {
			t.Errorf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestLogxConfigMapping(t *testing.T) {
	cfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ApplyDefaults(cfg)
	lc := cfg.LogxConfig()
	if !lc.Console || lc.Level != "debug" {
		t.Fatalf("logx = %+v", lc)
	}
	if !lc.Chat.Enabled || lc.Chat.ChatID != -1001 || lc.Chat.ThreadID != 7 {
		t.Fatalf("chat = %+v", lc.Chat)
	}

	cfg.Telegram.GroupLog = ""
	if cfg.LogxConfig().Chat.Enabled {
		t.Fatalf("chat sink needs a group_log chat")
	}
}

func TestSummarize(t *testing.T) {
	a, _ := Decode("c.yaml", []byte(sampleYAML))
	b, _ := Decode("c.yaml", []byte(sampleYAML))
	if ch := Summarize(a, b); !ch.Empty() {
		t.Fatalf("identical configs differ: %v", ch.Sections)
	}

	b.Logging.Level = "info"
	b.Telegram.OwnerUserIDs = append(b.Telegram.OwnerUserIDs, 7)
	b.Storage.Path = "./elsewhere"
	ch := Summarize(a, b)
	if strings.Join(ch.Sections, ",") != "telegram,logging,storage" {
		t.Fatalf("sections = %v", ch.Sections)
	}
	if len(ch.RestartOnly) != 1 || ch.RestartOnly[0] != "storage" {
		t.Fatalf("restart only = %v", ch.RestartOnly)
	}
}

func TestWatchPublishesValidReload(t *testing.T) {
	path := writeFile(t, "config.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is rejected and never published.
	if err := os.WriteFile(path, []byte("telegram:\n  token: \"\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	select {
	case cfg := <-updates:
		t.Fatalf("invalid config published: %+v", cfg.Telegram)
	default:
	}

	edited := strings.Replace(sampleYAML, "level: debug", "level: error", 1)
	if err := os.WriteFile(path, []byte(edited), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-updates:
		if cfg.Logging.Level != "error" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewManager("unused.yaml")
	ch := m.Subscribe(1)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("slow subscriber should see newest config")
	}
}

func TestDecodeYAMLResolvesAnchors(t *testing.T) {
	doc := `
timeouts: &t
  send_timeout: 20s
telegram:
  token: "123:abc"
reminder:
  <<: *t
  sweep_interval: 45s
`
	jb, format, err := toJSON("c.yml", []byte(doc))
	if err != nil || format != formatYAML {
		t.Fatalf("toJSON = %v %v", format, err)
	}
	if !strings.Contains(string(jb), `"send_timeout":"20s"`) {
		t.Fatalf("merge key not applied: %s", jb)
	}
	if _, err := Decode("c.yml", []byte(doc)); err == nil || !strings.Contains(err.Error(), "timeouts") {
		t.Fatalf("unknown anchor holder should be rejected, got %v", err)
	}
}

func TestDecodeYAMLRejectsComplexKeys(t *testing.T) {
	_, err := Decode("c.yaml", []byte("? [a, b]\n: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "scalar") {
		t.Fatalf("err = %v, want scalar key error", err)
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("c.yaml", nil)
	if err != nil || cfg == nil {
		t.Fatalf("Decode(empty) = %v %v", cfg, err)
	}
}

func TestParseDurationFieldErrors(t *testing.T) {
	_, err := ParseDurationField("notifier.retry_base", "-1s")
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Path != "notifier.retry_base" || !errors.Is(err, ErrNegativeDuration) {
		t.Fatalf("err = %v", err)
	}
	if _, err := ParseDurationField("x", "soon"); !errors.As(err, &fe) || fe.Value != "soon" {
		t.Fatalf("err = %v", err)
	}
	d, err := ParseDurationOrDefault("x", " 0s ", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault = %v %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "90s", time.Minute)
	if err != nil || d != 90*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v %v", d, err)
	}
}
