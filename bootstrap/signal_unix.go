//go:build !windows

package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	policyconfig "exexd/services/security/config"
)

// reloadOnHangup 收到 SIGHUP 时重载策略
func reloadOnHangup(ctx context.Context, reloader *policyconfig.Reloader) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			_, _ = reloader.Reload(ctx)
		}
	}
}
