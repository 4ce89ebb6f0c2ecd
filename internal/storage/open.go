package storage

import (
	"fmt"
	"strings"
	"time"

	logx "hydrobot/pkg/logx"
)

// Open initializes the configured store. An error here is fatal for the process.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log, time.Now)
	case "file":
		return openFile(cfg, log, time.Now)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
