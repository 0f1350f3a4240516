package exex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exexd/services/executor"
	"exexd/services/fileops"
	"exexd/services/pb"
	"exexd/services/security"
	"exexd/services/security/config"

	// 导入执行器包以触发自动注册
	_ "exexd/services/executor/launch"
	_ "exexd/services/executor/shell"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	defaultTimeoutMinutes = 10
	maxTimeoutMinutes     = 60

	defaultShutdownDelay = 2 * time.Second
	errorDomain          = "exexd"
)

// ServiceVersion 健康检查中报告的版本
var ServiceVersion = "1.0.0"

// Options 服务依赖
type Options struct {
	Guard     *security.Guard
	Env       executor.Env
	Executors executor.Factory
	// Reloader 为 nil 时 ReloadPolicy 不可用
	Reloader *config.Reloader
	// AuditDropped 报告审计丢弃数，可为 nil
	AuditDropped func() uint64
	// ExposeMatchedPattern 拒绝详情中是否带上命中的规则
	ExposeMatchedPattern bool
	// Shutdown 由 Shutdown 调用延迟触发
	Shutdown      func()
	ShutdownDelay time.Duration
}

type Server struct {
	pb.UnimplementedExexServer
	opts  Options
	files *fileops.Service
}

// NewServer 创建服务器
func NewServer(opts Options) *Server {
	if opts.Executors == nil {
		opts.Executors = executor.DefaultFactory()
	}
	if opts.Env.Guard == nil {
		opts.Env.Guard = opts.Guard
	}
	if opts.ShutdownDelay <= 0 {
		opts.ShutdownDelay = defaultShutdownDelay
	}
	return &Server{opts: opts, files: fileops.NewService(opts.Guard)}
}

func (s *Server) RegisterService(serviceRegistrar grpc.ServiceRegistrar) {
	pb.RegisterExexServer(serviceRegistrar, s)
}

func (s *Server) Exec(ctx context.Context, req *pb.ExecRequest) (*pb.ExecResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.getTimeout(req.Timeout))
	defer cancel()

	res, err := s.execute(ctx, pb.Method_EXEC, executor.Request{Command: req.Command, Args: req.Args, Cwd: req.Cwd})
	if err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.ExecResponse{Success: false, Error: err.Error()}, nil
	}
	exitCode := int32(res.ExitCode)
	return &pb.ExecResponse{
		Success:   res.ExitCode == 0,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		ExitCode:  &exitCode,
		Truncated: res.Truncated,
	}, nil
}

func (s *Server) Open(ctx context.Context, req *pb.OpenRequest) (*pb.OpenResponse, error) {
	res, err := s.execute(ctx, pb.Method_OPEN, executor.Request{Command: req.Application, Args: req.Args, Cwd: req.Cwd})
	if err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.OpenResponse{Success: false, Error: err.Error()}, nil
	}
	return &pb.OpenResponse{Success: true, Pid: int32(res.Pid)}, nil
}

func (s *Server) execute(ctx context.Context, method pb.Method, req executor.Request) (*executor.Result, error) {
	// 使用工厂创建执行器
	exec, err := s.opts.Executors.CreateExecutor(method, s.opts.Env)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("unsupported method %s: %v", method.String(), err))
	}
	return exec.Execute(ctx, req)
}

func (s *Server) Read(ctx context.Context, req *pb.ReadRequest) (*pb.ReadResponse, error) {
	content, err := s.files.Read(ctx, req.Path)
	if err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.ReadResponse{Success: false, Error: err.Error()}, nil
	}
	return &pb.ReadResponse{Success: true, Content: content}, nil
}

func (s *Server) Write(ctx context.Context, req *pb.WriteRequest) (*pb.WriteResponse, error) {
	if err := s.files.Write(ctx, req.Path, req.Content); err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.WriteResponse{Success: false, Error: err.Error()}, nil
	}
	return &pb.WriteResponse{Success: true}, nil
}

func (s *Server) Scan(ctx context.Context, req *pb.ScanRequest) (*pb.ScanResponse, error) {
	res, err := s.files.Scan(ctx, req.Path, req.Recursive, req.IncludeHidden)
	if err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.ScanResponse{Success: false, Error: err.Error()}, nil
	}

	items := make([]pb.FileInfo, 0, len(res.Entries))
	for _, e := range res.Entries {
		item := pb.FileInfo{
			Name:        e.Name,
			Path:        e.Path,
			IsDirectory: e.IsDir,
			Modified:    e.ModTime.Unix(),
			Permissions: e.Mode.String(),
		}
		if !e.Created.IsZero() {
			item.Created = e.Created.Unix()
		}
		if e.Mode.IsRegular() {
			size := uint64(e.Size)
			item.Size = &size
		}
		items = append(items, item)
	}
	return &pb.ScanResponse{Success: true, Items: items, TotalCount: len(items), Skipped: res.Skipped}, nil
}

func (s *Server) Delete(ctx context.Context, req *pb.DeleteRequest) (*pb.DeleteResponse, error) {
	n, err := s.files.Delete(ctx, req.Path, req.Recursive)
	if err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.DeleteResponse{Success: false, Error: err.Error()}, nil
	}
	return &pb.DeleteResponse{Success: true, DeletedCount: n}, nil
}

func (s *Server) Create(ctx context.Context, req *pb.CreateRequest) (*pb.CreateResponse, error) {
	created, err := s.files.Create(ctx, req.Path, req.IsDirectory, req.Content)
	if err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.CreateResponse{Success: false, Error: err.Error()}, nil
	}
	return &pb.CreateResponse{Success: true, CreatedPath: created}, nil
}

func (s *Server) Rename(ctx context.Context, req *pb.RenameRequest) (*pb.RenameResponse, error) {
	if err := s.files.Rename(ctx, req.FromPath, req.ToPath); err != nil {
		if st := s.statusOf(err); st != nil {
			return nil, st
		}
		return &pb.RenameResponse{Success: false, Error: err.Error()}, nil
	}
	return &pb.RenameResponse{Success: true, OldPath: req.FromPath, NewPath: req.ToPath}, nil
}

func (s *Server) ReloadPolicy(ctx context.Context, _ *emptypb.Empty) (*pb.ReloadPolicyResponse, error) {
	if s.opts.Reloader == nil {
		return nil, status.Error(codes.FailedPrecondition, "policy reload is not configured")
	}
	res, err := s.opts.Reloader.Reload(ctx)
	if err != nil {
		if errors.Is(err, security.ErrConfig) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	warnings := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, w.String())
	}
	return &pb.ReloadPolicyResponse{
		Version:     res.Snapshot.Version(),
		Fingerprint: res.Snapshot.Fingerprint(),
		Warnings:    warnings,
	}, nil
}

func (s *Server) Health(context.Context, *emptypb.Empty) (*pb.HealthResponse, error) {
	snap := s.opts.Guard.Snapshot()
	resp := &pb.HealthResponse{
		Status:            "healthy",
		Service:           "exexd",
		Version:           ServiceVersion,
		PolicyVersion:     snap.Version(),
		PolicyFingerprint: snap.Fingerprint(),
		PolicyLoadedAt:    snap.LoadedAt().Unix(),
	}
	if s.opts.AuditDropped != nil {
		resp.AuditDropped = s.opts.AuditDropped()
	}
	return resp, nil
}

// Shutdown 先返回响应，延迟之后再停止服务
func (s *Server) Shutdown(context.Context, *emptypb.Empty) (*pb.ShutdownResponse, error) {
	if s.opts.Shutdown == nil {
		return nil, status.Error(codes.FailedPrecondition, "shutdown is not configured")
	}
	time.AfterFunc(s.opts.ShutdownDelay, s.opts.Shutdown)
	return &pb.ShutdownResponse{
		Success: true,
		Message: fmt.Sprintf("server shutdown initiated, stopping in %s", s.opts.ShutdownDelay),
	}, nil
}

func (s *Server) getTimeout(timeoutSec int32) time.Duration {
	if timeoutSec <= 0 {
		return defaultTimeoutMinutes * time.Minute
	}
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout > maxTimeoutMinutes*time.Minute {
		timeout = maxTimeoutMinutes * time.Minute
	}
	return timeout
}

// statusOf 把拒绝、非法请求和超限转换成 gRPC 状态；其余错误返回 nil，
// 由调用方作为 success=false 的普通响应返回
func (s *Server) statusOf(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	var denied *security.DeniedError
	switch {
	case errors.As(err, &denied):
		return s.deniedStatus(denied)
	case errors.Is(err, fileops.ErrInvalidRequest),
		errors.Is(err, executor.ErrEmptyCommand),
		errors.Is(err, executor.ErrUnsupportedMethod):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, fileops.ErrPayloadTooLarge),
		errors.Is(err, executor.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return nil
}

func (s *Server) deniedStatus(denied *security.DeniedError) error {
	st := status.New(codes.PermissionDenied, denied.Error())
	info := &errdetails.ErrorInfo{
		Reason: denied.Decision.Reason.Code(),
		Domain: errorDomain,
		Metadata: map[string]string{
			"operation": denied.Operation.String(),
			"scope":     string(denied.Decision.Scope),
		},
	}
	if s.opts.ExposeMatchedPattern && denied.Decision.MatchedPattern != "" {
		info.Metadata["matched_pattern"] = denied.Decision.MatchedPattern
	}
	if detailed, err := st.WithDetails(info); err == nil {
		st = detailed
	}
	return st.Err()
}
