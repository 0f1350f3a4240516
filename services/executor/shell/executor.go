package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"

	"exexd/services/executor"
	"exexd/services/executor/shell/config"
	"exexd/services/pb"
	"exexd/services/security"

	"github.com/bpcoder16/Chestnut/v2/core/gtask"
	"github.com/bpcoder16/Chestnut/v2/logit"
)

// init 自动注册 Shell 执行器到默认工厂
func init() {
	executor.RegisterExecutor(pb.Method_EXEC, NewExecutor)
}

// Executor 命令执行器：Direct 直接创建进程，ShellLine 交给平台 shell
type Executor struct {
	env executor.Env
}

// NewExecutor 创建新的 shell 执行器
func NewExecutor(env executor.Env) executor.Executor {
	if len(env.Shell) == 0 {
		env.Shell = config.Default().Argv()
	}
	return &Executor{env: env}
}

// Execute 授权后执行命令，stdout/stderr 各自按策略的负载上限截断
func (e *Executor) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return nil, executor.ErrEmptyCommand
	}

	var spec security.CommandSpec
	var argv []string
	if req.Args != nil {
		spec = security.Direct{Executable: command, Args: req.Args}
		argv = append([]string{command}, req.Args...)
	} else {
		spec = security.ShellLine(command)
		argv = append(slices.Clone(e.env.Shell), command)
	}

	snap := e.env.Guard.Snapshot()
	decision := e.env.Guard.Command(snap, spec, req.Cwd)
	if err := security.CommandError(spec, decision); err != nil {
		return nil, err
	}
	if err := e.env.AllowSpawn(); err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if req.Cwd != "" {
		// 使用授权时解析出的目录，避免授权之后目录被替换
		cmd.Dir = decision.Resolved
	}
	executor.SetProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	// 启动命令
	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command failed: %w", err)
	}
	stop := killOnDone(ctx, cmd, executor.KillProcessGroup)
	defer stop()

	limit := snap.MaxPayloadBytes()
	stdout := &capture{limit: limit}
	stderr := &capture{limit: limit}

	g, _ := gtask.WithContext(ctx)
	g.Go(func() error {
		return stdout.fill(stdoutPipe)
	})
	g.Go(func() error {
		return stderr.fill(stderrPipe)
	})
	readErr := g.Wait()

	// 等待命令退出
	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("command canceled or timeout: %w", ctxErr)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read command output: %w", readErr)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("command exited with error: %w", waitErr)
	}

	return &executor.Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  cmd.ProcessState.ExitCode(),
		Truncated: stdout.truncated || stderr.truncated,
		Pid:       cmd.Process.Pid,
	}, nil
}

// capture 最多保留 limit 字节，其余读出丢弃，limit <= 0 不限制
type capture struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (c *capture) fill(r io.Reader) error {
	if c.limit <= 0 {
		_, err := io.Copy(&c.buf, r)
		return ignoreClosed(err)
	}
	n, err := io.Copy(&c.buf, io.LimitReader(r, c.limit))
	if err != nil {
		return ignoreClosed(err)
	}
	if n == c.limit {
		rest, err := io.Copy(io.Discard, r)
		c.truncated = rest > 0
		return ignoreClosed(err)
	}
	return nil
}

func (c *capture) String() string {
	return strings.ToValidUTF8(c.buf.String(), "�")
}

// 进程组被杀死后管道可能已经关闭
func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, io.ErrClosedPipe) || strings.Contains(err.Error(), "file already closed") {
		return nil
	}
	return err
}

// killOnDone ctx 结束时杀掉整个进程组，返回的 stop 用于进程正常退出后解除
func killOnDone(ctx context.Context, cmd *exec.Cmd, kill func(*exec.Cmd) error) func() bool {
	return context.AfterFunc(ctx, func() {
		if errK := kill(cmd); errK != nil {
			logit.Context(ctx).WarnW("killProcessGroup.Err", errK)
		}
	})
}
