// Package systemd reports service state to the systemd manager via
// sd_notify. Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready tells systemd start-up is complete (Type=notify units).
func Ready() (bool, error) { return send(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown has begun.
func Stopping() (bool, error) { return send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(format string, args ...any) (bool, error) {
	return send("STATUS=" + fmt.Sprintf(format, args...))
}

func send(state string) (bool, error) {
	sent, err := notify(false, state)
	if err != nil {
		return false, fmt.Errorf("sd_notify %q: %w", state, err)
	}
	return sent, nil
}
