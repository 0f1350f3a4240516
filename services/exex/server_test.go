//go:build !windows

package exex

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"exexd/services/executor"
	"exexd/services/pb"
	"exexd/services/security"
	"exexd/services/security/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
)

type harness struct {
	root   string
	policy string
	store  *security.Store
	client pb.ExexClient
}

func newHarness(t *testing.T, configure func(h *harness, opts *Options)) *harness {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	h := &harness{root: root, policy: filepath.Join(root, "policy.yaml")}

	require.NoError(t, os.WriteFile(h.policy, []byte(`
security:
  disallowedPaths: [`+filepath.Join(root, "secret")+`]
  commandBlacklist: [shutdown]
  maxPayloadBytes: 64
`), 0o644))
	res, err := config.LoadSnapshot(h.policy)
	require.NoError(t, err)
	h.store, err = security.NewStore(res.Snapshot)
	require.NoError(t, err)

	guard := security.NewGuard(h.store, nil)
	opts := Options{
		Guard:    guard,
		Reloader: &config.Reloader{Path: h.policy, Store: h.store},
	}
	if configure != nil {
		configure(h, &opts)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewServer(opts).RegisterService(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	h.client = pb.NewExexClient(conn)
	return h
}

func (h *harness) path(parts ...string) string {
	return filepath.Join(append([]string{h.root}, parts...)...)
}

func requireCode(t *testing.T, err error, code codes.Code) *status.Status {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok, "want status error, got %v", err)
	require.Equal(t, code, st.Code(), st.Message())
	return st
}

func TestExec(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	resp, err := h.client.Exec(ctx, &pb.ExecRequest{Command: "echo hi; exit 2", Cwd: h.root})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "hi\n", resp.Stdout)
	require.NotNil(t, resp.ExitCode)
	assert.Equal(t, int32(2), *resp.ExitCode)

	resp, err = h.client.Exec(ctx, &pb.ExecRequest{Command: "echo", Args: []string{"a;b"}})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "a;b\n", resp.Stdout)

	_, err = h.client.Exec(ctx, &pb.ExecRequest{Command: "  "})
	requireCode(t, err, codes.InvalidArgument)

	resp, err = h.client.Exec(ctx, &pb.ExecRequest{Command: "sleep 5", Timeout: 1})
	if err != nil {
		requireCode(t, err, codes.DeadlineExceeded)
	} else {
		assert.False(t, resp.Success)
	}
}

func TestExecDeniedCarriesErrorInfo(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *harness, opts *Options) { opts.ExposeMatchedPattern = true })
	ctx := context.Background()

	_, err := h.client.Exec(ctx, &pb.ExecRequest{Command: "echo ok && shutdown -h now"})
	st := requireCode(t, err, codes.PermissionDenied)
	require.Len(t, st.Details(), 1)
	info, ok := st.Details()[0].(*errdetails.ErrorInfo)
	require.True(t, ok)
	assert.Equal(t, "BLACKLISTED_COMMAND", info.Reason)
	assert.Equal(t, errorDomain, info.Domain)
	assert.Equal(t, "command", info.Metadata["scope"])
	assert.Equal(t, "shutdown", info.Metadata["matched_pattern"])

	_, err = h.client.Exec(ctx, &pb.ExecRequest{Command: "ls", Cwd: h.path("secret")})
	st = requireCode(t, err, codes.PermissionDenied)
	info = st.Details()[0].(*errdetails.ErrorInfo)
	assert.Equal(t, "DENY_LIST_MATCH", info.Reason)
	assert.Equal(t, "cwd", info.Metadata["scope"])
}

func TestMatchedPatternHiddenByDefault(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.client.Read(context.Background(), &pb.ReadRequest{Path: h.path("secret", "key")})
	st := requireCode(t, err, codes.PermissionDenied)
	info := st.Details()[0].(*errdetails.ErrorInfo)
	assert.Equal(t, "DENY_LIST_MATCH", info.Reason)
	assert.NotContains(t, info.Metadata, "matched_pattern")
}

func TestExecRateLimited(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *harness, opts *Options) {
		opts.Env.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	})
	ctx := context.Background()

	_, err := h.client.Exec(ctx, &pb.ExecRequest{Command: "true"})
	require.NoError(t, err)
	_, err = h.client.Exec(ctx, &pb.ExecRequest{Command: "true"})
	requireCode(t, err, codes.ResourceExhausted)
}

func TestUnsupportedMethod(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *harness, opts *Options) { opts.Executors = executor.NewFactory() })

	_, err := h.client.Exec(context.Background(), &pb.ExecRequest{Command: "true"})
	requireCode(t, err, codes.InvalidArgument)
}

func TestFileOperations(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	target := h.path("work", "a.txt")

	wresp, err := h.client.Write(ctx, &pb.WriteRequest{Path: target, Content: "hello\r\n"})
	require.NoError(t, err)
	assert.True(t, wresp.Success)

	rresp, err := h.client.Read(ctx, &pb.ReadRequest{Path: target})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", rresp.Content)

	_, err = h.client.Write(ctx, &pb.WriteRequest{Path: target, Content: strings.Repeat("x", 65)})
	requireCode(t, err, codes.ResourceExhausted)

	_, err = h.client.Write(ctx, &pb.WriteRequest{Path: "", Content: "x"})
	requireCode(t, err, codes.InvalidArgument)

	cresp, err := h.client.Create(ctx, &pb.CreateRequest{Path: h.path("work", "sub"), IsDirectory: true})
	require.NoError(t, err)
	assert.Equal(t, h.path("work", "sub"), cresp.CreatedPath)

	cresp, err = h.client.Create(ctx, &pb.CreateRequest{Path: h.path("work", "sub")})
	require.NoError(t, err)
	assert.False(t, cresp.Success)
	assert.Contains(t, cresp.Error, "already exists")

	sresp, err := h.client.Scan(ctx, &pb.ScanRequest{Path: h.path("work")})
	require.NoError(t, err)
	assert.True(t, sresp.Success)
	assert.Equal(t, 2, sresp.TotalCount)
	for _, item := range sresp.Items {
		assert.GreaterOrEqual(t, item.Created, int64(0))
		assert.Positive(t, item.Modified)
		if item.IsDirectory {
			assert.Nil(t, item.Size)
		} else {
			require.NotNil(t, item.Size)
			assert.Equal(t, uint64(6), *item.Size)
		}
	}

	mresp, err := h.client.Rename(ctx, &pb.RenameRequest{FromPath: target, ToPath: h.path("work", "b.txt")})
	require.NoError(t, err)
	assert.True(t, mresp.Success)
	assert.Equal(t, h.path("work", "b.txt"), mresp.NewPath)

	_, err = h.client.Rename(ctx, &pb.RenameRequest{FromPath: h.path("work", "b.txt"), ToPath: h.path("secret", "b.txt")})
	requireCode(t, err, codes.PermissionDenied)

	dresp, err := h.client.Delete(ctx, &pb.DeleteRequest{Path: h.path("work"), Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, 1, dresp.DeletedCount)
	assert.NoDirExists(t, h.path("work"))
}

func TestReloadPolicyAndHealth(t *testing.T) {
	t.Parallel()
	var dropped atomic.Uint64
	dropped.Store(3)
	h := newHarness(t, func(_ *harness, opts *Options) { opts.AuditDropped = dropped.Load })
	ctx := context.Background()

	health, err := h.client.Health(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, uint64(1), health.PolicyVersion)
	assert.Equal(t, uint64(3), health.AuditDropped)
	before := health.PolicyFingerprint

	require.NoError(t, os.WriteFile(h.policy, []byte(`
security:
  disallowedPaths: [relative/entry, `+h.path("secret")+`]
  commandBlacklist: [shutdown, reboot]
`), 0o644))
	reload, err := h.client.ReloadPolicy(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reload.Version)
	assert.Len(t, reload.Warnings, 1)
	assert.NotEqual(t, before, reload.Fingerprint)

	require.NoError(t, os.WriteFile(h.policy, []byte("security: {allowedPaths: [relative]}"), 0o644))
	_, err = h.client.ReloadPolicy(ctx, &emptypb.Empty{})
	requireCode(t, err, codes.FailedPrecondition)

	health, err = h.client.Health(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), health.PolicyVersion)
	assert.Equal(t, reload.Fingerprint, health.PolicyFingerprint)
}

func TestReloadPolicyNotConfigured(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *harness, opts *Options) { opts.Reloader = nil })

	_, err := h.client.ReloadPolicy(context.Background(), &emptypb.Empty{})
	requireCode(t, err, codes.FailedPrecondition)
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	stopped := make(chan struct{})
	h := newHarness(t, func(_ *harness, opts *Options) {
		opts.Shutdown = func() { close(stopped) }
		opts.ShutdownDelay = 10 * time.Millisecond
	})

	resp, err := h.client.Shutdown(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}

func TestGetTimeout(t *testing.T) {
	t.Parallel()
	s := &Server{}
	assert.Equal(t, 10*time.Minute, s.getTimeout(0))
	assert.Equal(t, 30*time.Second, s.getTimeout(30))
	assert.Equal(t, 60*time.Minute, s.getTimeout(24*3600))
}
