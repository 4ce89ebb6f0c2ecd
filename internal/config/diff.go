package config

import (
	"reflect"

	"hydrobot/pkg/logx"
)

// Change describes the difference between two configs.
type Change struct {
	// Sections lists top-level sections that differ.
	Sections []string
	// Fields are safe to log; tokens are reported as *_set booleans.
	Fields []logx.Field
	// RestartOnly lists changed keys that are read once at startup.
	RestartOnly []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Summarize compares two configs. Nil is treated as the zero Config.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	restart := func(cond bool, key string) {
		if cond {
			ch.RestartOnly = append(ch.RestartOnly, key)
		}
	}

	o, n := oldCfg.Telegram, newCfg.Telegram
	if !reflect.DeepEqual(o, n) {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Fields = append(ch.Fields,
			logx.Int("telegram.owner_count", len(n.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", n.GroupLog != ""),
		)
		restart(o.Token != n.Token, "telegram.token")
		restart(o.PollTimeout != n.PollTimeout, "telegram.poll_timeout")
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		l := newCfg.Logging
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.file", l.File.Enabled),
			logx.Bool("logging.telegram", l.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		ch.Fields = append(ch.Fields, logx.String("storage.driver", newCfg.Storage.Driver))
		restart(true, "storage")
	}

	if !reflect.DeepEqual(oldCfg.Reminder, newCfg.Reminder) {
		ch.Sections = append(ch.Sections, "reminder")
		ch.Fields = append(ch.Fields, logx.String("reminder.sweep_interval", newCfg.Reminder.SweepInterval))
		restart(true, "reminder")
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		ch.Sections = append(ch.Sections, "notifier")
		ch.Fields = append(ch.Fields, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
		restart(true, "notifier")
	}

	oo, no := oldCfg.Ops, newCfg.Ops
	if !reflect.DeepEqual(oo, no) {
		ch.Sections = append(ch.Sections, "ops")
		ch.Fields = append(ch.Fields,
			logx.Bool("ops.enabled", no.Enabled),
			logx.String("ops.addr", no.Addr),
			logx.Bool("ops.token_set", no.Token != ""),
		)
		restart(true, "ops")
	}
	return ch
}
