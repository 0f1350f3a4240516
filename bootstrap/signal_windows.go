package bootstrap

import (
	"context"

	policyconfig "exexd/services/security/config"
)

// reloadOnHangup Windows 没有 SIGHUP，只能通过文件监听或接口重载
func reloadOnHangup(ctx context.Context, _ *policyconfig.Reloader) error {
	<-ctx.Done()
	return nil
}
