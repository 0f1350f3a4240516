package executor

import (
	"context"
	"errors"

	"exexd/services/pb"
	"exexd/services/security"

	"golang.org/x/time/rate"
)

var (
	// ErrEmptyCommand 命令或应用为空
	ErrEmptyCommand = errors.New("executor: empty command")
	// ErrRateLimited 进程创建超出速率限制
	ErrRateLimited = errors.New("executor: spawn rate exceeded")
)

// Request 一次执行请求
type Request struct {
	// Command EXEC 时为命令（行），OPEN 时为应用
	Command string
	// Args 为 nil 表示 Command 交给 shell 解释
	Args []string
	Cwd  string
}

// Result 执行结果
type Result struct {
	Stdout string
	Stderr string
	// ExitCode 进程被信号终止时为 -1
	ExitCode  int
	Truncated bool
	Pid       int
}

// Env 执行器依赖
type Env struct {
	Guard *security.Guard
	// Shell 解释命令行时使用的前缀，如 ["/bin/sh", "-c"]
	Shell   []string
	Limiter *rate.Limiter
}

// AllowSpawn 未配置限速时总是允许
func (e Env) AllowSpawn() error {
	if e.Limiter == nil || e.Limiter.Allow() {
		return nil
	}
	return ErrRateLimited
}

// Executor 任务执行器接口
type Executor interface {
	// Execute 先授权再创建进程，拒绝时返回 *security.DeniedError
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Creator 执行器创建函数类型
type Creator func(env Env) Executor

// Factory 执行器工厂接口
type Factory interface {
	// CreateExecutor 创建指定类型的执行器
	CreateExecutor(method pb.Method, env Env) (Executor, error)

	// SupportedMethods 返回支持的执行方法列表
	SupportedMethods() []pb.Method

	// RegisterExecutor 注册执行器创建函数
	RegisterExecutor(method pb.Method, creator Creator)

	// IsSupported 查看执行器创建函数是否存在
	IsSupported(method pb.Method) bool
}
