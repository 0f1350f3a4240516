package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"exexd/services/audit"
	"exexd/services/executor"
	shellconfig "exexd/services/executor/shell/config"
	"exexd/services/exex"
	"exexd/services/security"
	policyconfig "exexd/services/security/config"

	"github.com/bpcoder16/Chestnut/v2/appconfig"
	"github.com/bpcoder16/Chestnut/v2/appconfig/env"
	"github.com/bpcoder16/Chestnut/v2/bootstrap"
	"github.com/bpcoder16/Chestnut/v2/core/gtask"
	"github.com/bpcoder16/Chestnut/v2/logit"
	"github.com/bpcoder16/Chestnut/v2/modules/grpcserver"
	"golang.org/x/time/rate"
)

func Start(ctx context.Context, config *appconfig.AppConfig, flags Flags) error {
	settings, err := LoadSettings(path.Join(env.ConfigDirPath(), "exex.yaml"))
	if err != nil {
		return fmt.Errorf("load exex.yaml: %w", err)
	}
	settings = settings.Apply(flags, env.ConfigDirPath())

	// 停止信号：Shutdown 接口或上层 ctx 结束
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var g *gtask.Group
	g, ctx = gtask.WithContext(ctx)

	bootstrap.Start(ctx, config, g.Go)

	policy, err := loadPolicy(ctx, settings)
	if err != nil {
		return err
	}
	store, err := security.NewStore(policy.Snapshot)
	if err != nil {
		return err
	}

	sink, closeSink, err := newAuditSink(settings, policy.Logging)
	if err != nil {
		return err
	}
	defer closeSink()

	dispatcher := audit.NewDispatcher(sink, settings.AuditQueueSize)
	dispatcher.OnError = func(ctx context.Context, err error) {
		logit.Context(ctx).ErrorW("msg", "audit write failed", "err", err)
	}
	guard := security.NewGuard(store, dispatcher)

	shell, err := shellconfig.Load(path.Join(env.ConfigDirPath(), "shell.yaml"))
	if err != nil {
		return fmt.Errorf("load shell.yaml: %w", err)
	}
	var limiter *rate.Limiter
	if settings.SpawnRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.SpawnRate), max(settings.SpawnBurst, 1))
	}

	reloader := &policyconfig.Reloader{
		Path:  settings.PolicyFile,
		Store: store,
		OnReload: func(ctx context.Context, res *policyconfig.Result) {
			logWarnings(ctx, res.Warnings)
			logit.Context(ctx).InfoW("msg", "policy reloaded",
				"version", res.Snapshot.Version(),
				"fingerprint", res.Snapshot.Fingerprint(),
			)
		},
		OnError: func(ctx context.Context, err error) {
			logit.Context(ctx).ErrorW("msg", "policy reload failed, keeping previous snapshot", "err", err)
		},
	}

	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	if settings.Watch {
		g.Go(func() error {
			// 监听失败不影响服务，仍可通过 SIGHUP 或接口重载
			if err := policyconfig.NewWatcher(reloader, settings.debounce()).Run(ctx); err != nil {
				logit.Context(ctx).WarnW("msg", "policy watcher stopped", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return reloadOnHangup(ctx, reloader)
	})

	g.Go(func() error {
		// 记录支持的执行器方法
		logit.Context(ctx).InfoW("Available", "executors", "methods", executor.SupportedMethods())

		return grpcserver.NewManager(
			path.Join(env.ConfigDirPath(), "grpc.yaml"),
			exex.NewServer(exex.Options{
				Guard: guard,
				Env: executor.Env{
					Guard:   guard,
					Shell:   shell.Argv(),
					Limiter: limiter,
				},
				Reloader:             reloader,
				AuditDropped:         dispatcher.Dropped,
				ExposeMatchedPattern: settings.ExposeMatchedPattern,
				Shutdown:             stop,
				ShutdownDelay:        settings.shutdownDelay(),
			}),
		).Run(ctx)
	})

	err = g.Wait()
	if dropped := dispatcher.Dropped(); dropped > 0 {
		logit.Context(context.WithoutCancel(ctx)).WarnW("msg", "audit events dropped", "count", dropped)
	}
	return err
}

// loadPolicy 启动时加载策略；任何错误都是致命的
func loadPolicy(ctx context.Context, settings Settings) (*policyconfig.Result, error) {
	if settings.WriteDefault {
		err := policyconfig.WriteDefault(settings.PolicyFile)
		switch {
		case err == nil:
			logit.Context(ctx).InfoW("msg", "default policy written", "path", settings.PolicyFile)
		case !errors.Is(err, fs.ErrExist):
			logit.Context(ctx).WarnW("msg", "write default policy failed", "path", settings.PolicyFile, "err", err)
		}
	}

	res, err := policyconfig.LoadOrDefault(settings.PolicyFile)
	if err != nil {
		if res != nil {
			logWarnings(ctx, res.Warnings)
		}
		return nil, fmt.Errorf("load policy %s: %w", settings.PolicyFile, err)
	}
	logWarnings(ctx, res.Warnings)
	logit.Context(ctx).InfoW("msg", "policy loaded",
		"path", settings.PolicyFile,
		"defaulted", res.Defaulted,
		"version", res.Snapshot.Version(),
		"fingerprint", res.Snapshot.Fingerprint(),
		"allowedPaths", len(res.Snapshot.AllowedPaths()),
		"disallowedPaths", len(res.Snapshot.DisallowedPaths()),
	)
	return res, nil
}

func logWarnings(ctx context.Context, warnings []security.Warning) {
	for _, w := range warnings {
		logit.Context(ctx).WarnW("msg", "policy entry dropped", "list", w.List, "entry", w.Entry, "err", w.Err)
	}
}

// newAuditSink 日志总是写入 logit；配置了审计文件时同时写 JSON 行文件
func newAuditSink(settings Settings, logging policyconfig.Logging) (audit.Sink, func(), error) {
	logSink := audit.LogitSink{
		LogAllowed: logging.LogAllowedCommands,
		LogDenied:  logging.LogDeniedCommands,
	}

	file := settings.AuditFile
	if file == "" {
		file = logging.AuditFile
	}
	if file == "" {
		return logSink, func() {}, nil
	}

	fileSink, err := audit.NewRotatingFileSink(file, audit.FileOptions{
		MaxAge:       time.Duration(settings.AuditMaxAgeDays) * 24 * time.Hour,
		RotationTime: time.Duration(settings.AuditRotateHours) * time.Hour,
	})
	if err != nil {
		return nil, nil, err
	}
	return audit.MultiSink{logSink, fileSink}, func() { _ = fileSink.Close() }, nil
}
