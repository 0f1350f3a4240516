// Package launch 分离启动应用（OPEN）。
package launch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"exexd/services/executor"
	"exexd/services/pb"
	"exexd/services/security"
)

func init() {
	executor.RegisterExecutor(pb.Method_OPEN, NewExecutor)
}

type Executor struct {
	env executor.Env
}

func NewExecutor(env executor.Env) executor.Executor {
	return &Executor{env: env}
}

// Execute 依次授权应用路径（Launch）、命令名和工作目录，全部通过后
// 在新会话中启动进程，标准输入输出指向空设备，返回 pid
func (e *Executor) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	app := strings.TrimSpace(req.Command)
	if app == "" {
		return nil, executor.ErrEmptyCommand
	}

	location := app
	if !strings.ContainsAny(app, `/\`) {
		found, err := exec.LookPath(app)
		if err != nil {
			return nil, fmt.Errorf("find application %q: %w", app, err)
		}
		location = found
	}

	snap := e.env.Guard.Snapshot()
	pathDecision := e.env.Guard.Path(snap, location, security.OpLaunch)
	if err := security.PathError(location, security.OpLaunch, pathDecision); err != nil {
		return nil, err
	}

	spec := security.Direct{Executable: app, Args: req.Args}
	decision := e.env.Guard.Command(snap, spec, req.Cwd)
	if err := security.CommandError(spec, decision); err != nil {
		return nil, err
	}
	if err := e.env.AllowSpawn(); err != nil {
		return nil, err
	}

	cmd := exec.Command(pathDecision.Resolved, req.Args...)
	// 多合一程序依赖 argv[0]，保留调用方给出的名字
	cmd.Args[0] = app
	if req.Cwd != "" {
		cmd.Dir = decision.Resolved
	}
	executor.SetDetached(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch application %q: %w", app, err)
	}
	pid := cmd.Process.Pid
	// 回收子进程，避免僵尸进程
	go func() {
		_ = cmd.Wait()
	}()

	return &executor.Result{Pid: pid, ExitCode: -1}, nil
}
