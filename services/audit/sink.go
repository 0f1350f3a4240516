package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"exexd/services/security"

	"github.com/bpcoder16/Chestnut/v2/logit"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// LogitSink 把审计事件写进框架日志，拒绝用 WARN，放行用 INFO
type LogitSink struct {
	LogAllowed bool
	LogDenied  bool
}

func (s LogitSink) Write(ctx context.Context, e security.AuditEvent) error {
	kv, denied, ok := s.fields(e)
	if !ok {
		return nil
	}
	if denied {
		logit.Context(ctx).WarnW(kv...)
	} else {
		logit.Context(ctx).InfoW(kv...)
	}
	return nil
}

// fields 返回日志键值对；ok 为 false 表示该类事件不记录
func (s LogitSink) fields(e security.AuditEvent) (kv []interface{}, denied bool, ok bool) {
	denied = !e.Decision.Allowed
	if (denied && !s.LogDenied) || (!denied && !s.LogAllowed) {
		return nil, denied, false
	}

	msg := "access allowed"
	if denied {
		msg = "access denied"
	}
	kv = []interface{}{
		"msg", msg,
		"auditId", e.ID,
		"kind", string(e.Kind),
		"subject", e.Subject,
		"operation", e.Operation.String(),
		"reason", e.Decision.Reason.String(),
		"policyVersion", e.PolicyVersion,
	}
	if e.Decision.MatchedPattern != "" {
		kv = append(kv, "pattern", e.Decision.MatchedPattern)
	}
	if e.Cwd != "" {
		kv = append(kv, "cwd", e.Cwd)
	}
	return kv, denied, true
}

// record JSON 行的结构
type record struct {
	ID            string               `json:"id"`
	Time          time.Time            `json:"time"`
	Kind          security.SubjectKind `json:"kind"`
	Subject       string               `json:"subject"`
	Operation     security.Operation   `json:"operation"`
	Cwd           string               `json:"cwd,omitempty"`
	Allowed       bool                 `json:"allowed"`
	Reason        security.Reason      `json:"reason"`
	Pattern       string               `json:"matchedPattern,omitempty"`
	Resolved      string               `json:"resolved,omitempty"`
	Scope         security.Scope       `json:"scope,omitempty"`
	PolicyVersion uint64               `json:"policyVersion"`
}

func newRecord(e security.AuditEvent) record {
	return record{
		ID:            e.ID,
		Time:          e.Time,
		Kind:          e.Kind,
		Subject:       e.Subject,
		Operation:     e.Operation,
		Cwd:           e.Cwd,
		Allowed:       e.Decision.Allowed,
		Reason:        e.Decision.Reason,
		Pattern:       e.Decision.MatchedPattern,
		Resolved:      e.Decision.Resolved,
		Scope:         e.Decision.Scope,
		PolicyVersion: e.PolicyVersion,
	}
}

// JSONSink 每个事件一行 JSON
type JSONSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w, enc: json.NewEncoder(w)}
}

func (s *JSONSink) Write(_ context.Context, e security.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(newRecord(e)); err != nil {
		return fmt.Errorf("audit: encode event %s: %w", e.ID, err)
	}
	return nil
}

// Close 底层 writer 实现了 io.Closer 时关闭它
func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FileOptions 审计文件滚动设置
type FileOptions struct {
	MaxAge       time.Duration
	RotationTime time.Duration
}

// NewRotatingFileSink 按天滚动的 JSON 行审计文件，path 始终链接到最新的文件
func NewRotatingFileSink(path string, opts FileOptions) (*JSONSink, error) {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	if opts.RotationTime <= 0 {
		opts.RotationTime = 24 * time.Hour
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("audit: file path: %w", err)
	}
	w, err := rotatelogs.New(
		abs+".%Y%m%d",
		rotatelogs.WithLinkName(abs),
		rotatelogs.WithMaxAge(opts.MaxAge),
		rotatelogs.WithRotationTime(opts.RotationTime),
	)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", abs, err)
	}
	return NewJSONSink(w), nil
}

// MultiSink 依次写入每个 Sink，返回所有错误
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e security.AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
