// Package sdnotify reports daemon state to systemd (Type=notify units).
package sdnotify

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "dyntimer/pkg/logx"
)

// Notifier sends sd_notify messages. A disabled Notifier does nothing, and
// outside systemd (no NOTIFY_SOCKET) every call is a silent no-op.
type Notifier struct {
	enabled bool
	log     logx.Logger
	notify  func(unsetEnv bool, state string) (bool, error)
}

func New(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		enabled: enabled,
		log:     log.With(logx.String("comp", "sdnotify")),
		notify:  daemon.SdNotify,
	}
}

func (n *Notifier) Enabled() bool { return n != nil && n.enabled }

func (n *Notifier) send(state string) error {
	if !n.Enabled() {
		return nil
	}
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return fmt.Errorf("sd_notify %s: %w", state, err)
	}
	if sent {
		n.log.Trace("sd_notify sent", logx.String("state", state))
	}
	return nil
}

func (n *Notifier) Ready() error    { return n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() error { return n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() error {
	return n.send(daemon.SdNotifyReloading)
}
func (n *Notifier) Watchdog() error { return n.send(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) error { return n.send("STATUS=" + msg) }

// WatchdogInterval returns the interval at which Watchdog should be called:
// half of WATCHDOG_USEC. It returns 0 when the watchdog is not enabled for
// this process.
func WatchdogInterval() (time.Duration, error) {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, err
	}
	return d / 2, nil
}
