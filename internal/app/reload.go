package app

import (
	"context"
	"strings"

	"hydrobot/internal/config"
	"hydrobot/pkg/logx"
)

// reloadLoop applies hot-reloadable config: logging, owners and the admin
// log chat. Other sections are logged as needing a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.Summarize(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(next.LogxConfig())
	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)

	if len(ch.RestartOnly) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("keys", strings.Join(ch.RestartOnly, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}
