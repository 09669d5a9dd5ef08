package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "stockalert/pkg/logx"
)

// sdNotify sends state to systemd. Outside a unit it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify", logx.String("state", state))
	}
}

// watchdog pings systemd at half the configured WatchdogSec until ctx ends.
// healthy gates each ping.
func watchdog(ctx context.Context, log logx.Logger, healthy func() bool) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return nil
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	log.Info("systemd watchdog enabled", logx.Duration("interval", every/2))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy == nil || healthy() {
				sdNotify(log, daemon.SdNotifyWatchdog)
			}
		}
	}
}
