package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"exexd/services/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []security.AuditEvent
	err    error
}

func (m *memorySink) Write(_ context.Context, e security.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memorySink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func deniedEvent(subject string) security.AuditEvent {
	return security.AuditEvent{
		Time:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Kind:      security.SubjectPath,
		Subject:   subject,
		Operation: security.OpRead,
		Decision: security.Decision{
			Reason:         security.DenyListMatch,
			MatchedPattern: "/etc",
			Resolved:       subject,
			Scope:          security.ScopePath,
		},
		PolicyVersion: 3,
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	t.Parallel()
	sink := &memorySink{}
	d := NewDispatcher(sink, 2)

	for range 5 {
		d.Record(deniedEvent("/etc/passwd"))
	}
	assert.Equal(t, uint64(3), d.Dropped())
	assert.Equal(t, 2, d.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	require.Equal(t, 2, sink.len())
	assert.NotEmpty(t, sink.events[0].ID)
	assert.NotEqual(t, sink.events[0].ID, sink.events[1].ID)
}

func TestDispatcherKeepsExistingID(t *testing.T) {
	t.Parallel()
	sink := &memorySink{}
	d := NewDispatcher(sink, 0)

	e := deniedEvent("/etc/hosts")
	e.ID = "fixed"
	d.Record(e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "fixed", sink.events[0].ID)
}

func TestDispatcherCountsSinkFailures(t *testing.T) {
	t.Parallel()
	sink := &memorySink{err: errors.New("disk full")}
	d := NewDispatcher(sink, 4)
	var reported []error
	d.OnError = func(_ context.Context, err error) { reported = append(reported, err) }

	d.Record(deniedEvent("/a"))
	d.Record(deniedEvent("/b"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	assert.Equal(t, uint64(2), d.Failed())
	assert.Len(t, reported, 2)
}

func TestJSONSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)

	e := deniedEvent("/etc/passwd")
	e.ID = "abc"
	require.NoError(t, sink.Write(context.Background(), e))
	require.NoError(t, sink.Write(context.Background(), e))
	require.NoError(t, sink.Close())

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		lines++
		var got map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
		assert.Equal(t, "abc", got["id"])
		assert.Equal(t, "read", got["operation"])
		assert.Equal(t, "DenyListMatch", got["reason"])
		assert.Equal(t, false, got["allowed"])
		assert.Equal(t, "/etc", got["matchedPattern"])
		assert.EqualValues(t, 3, got["policyVersion"])
		assert.NotContains(t, got, "cwd")
	}
	assert.Equal(t, 2, lines)
}

func TestRotatingFileSink(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	sink, err := NewRotatingFileSink(path, FileOptions{})
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), deniedEvent("/etc/passwd")))
	require.NoError(t, sink.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"subject":"/etc/passwd"`)
}

func TestMultiSink(t *testing.T) {
	t.Parallel()
	ok := &memorySink{}
	bad := &memorySink{err: errors.New("boom")}

	err := MultiSink{bad, ok}.Write(context.Background(), deniedEvent("/x"))
	require.Error(t, err)
	assert.Equal(t, 1, ok.len())
	assert.Equal(t, 1, bad.len())

	require.NoError(t, MultiSink{ok}.Write(context.Background(), deniedEvent("/y")))
}

func TestLogitSinkFields(t *testing.T) {
	t.Parallel()
	e := deniedEvent("/etc/passwd")
	e.ID = "a1"

	kv, denied, ok := LogitSink{LogDenied: true}.fields(e)
	require.True(t, ok)
	assert.True(t, denied)
	require.Zero(t, len(kv)%2)
	assert.Equal(t, []interface{}{"msg", "access denied"}, kv[:2])
	fields := make(map[interface{}]interface{}, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	assert.Equal(t, "a1", fields["auditId"])
	assert.Equal(t, "/etc/passwd", fields["subject"])
	assert.Equal(t, e.Operation.String(), fields["operation"])
	assert.Equal(t, e.Decision.Reason.String(), fields["reason"])
	assert.Equal(t, uint64(3), fields["policyVersion"])
	assert.Equal(t, "/etc", fields["pattern"])
	assert.NotContains(t, fields, "cwd")

	_, _, ok = LogitSink{LogAllowed: true}.fields(e)
	assert.False(t, ok)

	e.Decision = security.Decision{Allowed: true, Reason: security.DefaultAllow}
	e.Cwd = "/tmp"
	_, _, ok = LogitSink{LogDenied: true}.fields(e)
	assert.False(t, ok)

	kv, denied, ok = LogitSink{LogAllowed: true}.fields(e)
	require.True(t, ok)
	assert.False(t, denied)
	assert.Equal(t, "access allowed", kv[1])
	assert.Contains(t, kv, "cwd")
	assert.NotContains(t, kv, "pattern")
}
