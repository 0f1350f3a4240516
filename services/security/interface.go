package security

import (
	"fmt"
	"strings"
	"time"
)

// Reason 授权结论的原因分类
type Reason int

// 零值为 InvalidInput，未初始化的 Decision 总是拒绝
const (
	InvalidInput Reason = iota
	AllowListMatch
	DenyListMatch
	DefaultAllow
	NotInAllowList
	BlacklistedCommand
	UnresolvablePath
)

var reasonNames = map[Reason]string{
	InvalidInput:       "InvalidInput",
	AllowListMatch:     "AllowListMatch",
	DenyListMatch:      "DenyListMatch",
	DefaultAllow:       "DefaultAllow",
	NotInAllowList:     "NotInAllowList",
	BlacklistedCommand: "BlacklistedCommand",
	UnresolvablePath:   "UnresolvablePath",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Code 返回 UPPER_SNAKE 形式，用于 RPC 错误详情
func (r Reason) Code() string {
	name := r.String()
	var b strings.Builder
	for i, c := range name {
		if i > 0 && c >= 'A' && c <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(c)
	}
	return strings.ToUpper(b.String())
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Scope 标记组合结论中是哪一项子检查给出的结论
type Scope string

const (
	ScopePath    Scope = "path"
	ScopeCommand Scope = "command"
	ScopeCwd     Scope = "cwd"
)

// Decision 一次授权的结论
type Decision struct {
	Allowed bool
	Reason  Reason
	// 命中的规则（列表顺序中第一个），仅用于诊断和审计
	MatchedPattern string
	// 规范化后的路径，无法解析时为空
	Resolved string
	Scope    Scope
}

func allow(scope Scope, reason Reason, pattern string) Decision {
	return Decision{Allowed: true, Reason: reason, MatchedPattern: pattern, Scope: scope}
}

func deny(scope Scope, reason Reason, pattern string) Decision {
	return Decision{Allowed: false, Reason: reason, MatchedPattern: pattern, Scope: scope}
}

// SubjectKind 审计主体类型
type SubjectKind string

const (
	SubjectPath    SubjectKind = "path"
	SubjectCommand SubjectKind = "command"
)

// AuditEvent 每次授权结论产生一条审计事件
type AuditEvent struct {
	ID            string
	Time          time.Time
	Kind          SubjectKind
	Subject       string
	Operation     Operation
	Cwd           string
	Decision      Decision
	PolicyVersion uint64
}

// Auditor 审计事件接收方，Record 不得阻塞调用方
type Auditor interface {
	Record(event AuditEvent)
}

// DeniedError 处理器把拒绝结论转换成的结构化错误
type DeniedError struct {
	Subject   string
	Operation Operation
	Decision  Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s %q (%s)", e.Operation, e.Subject, e.Decision.Reason)
}
