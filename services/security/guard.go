package security

import "time"

// Guard 组合授权和审计，处理器只通过它做授权判断。
//
// 典型用法：每个请求调用一次 Snapshot，之后该请求所有的 Path / Command
// 判定都使用这一份快照。
type Guard struct {
	store    *Store
	paths    PathAuthorizer
	commands *CommandAuthorizer
	auditor  Auditor
	now      func() time.Time
}

// NewGuard auditor 为 nil 时不记录审计
func NewGuard(store *Store, auditor Auditor) *Guard {
	return &Guard{
		store:    store,
		commands: NewCommandAuthorizer(),
		auditor:  auditor,
		now:      time.Now,
	}
}

func (g *Guard) Snapshot() *Snapshot {
	return g.store.Current()
}

func (g *Guard) Store() *Store {
	return g.store
}

// Path 授权一个路径操作并记录审计
func (g *Guard) Path(snap *Snapshot, candidate string, op Operation) Decision {
	d := g.paths.Authorize(candidate, op, snap)
	g.record(snap, AuditEvent{
		Kind:      SubjectPath,
		Subject:   candidate,
		Operation: op,
		Decision:  d,
	})
	return d
}

// Command 授权一个命令（以及可选的工作目录）并记录审计
func (g *Guard) Command(snap *Snapshot, spec CommandSpec, cwd string) Decision {
	d := g.commands.Authorize(spec, cwd, snap)
	subject := ""
	if spec != nil {
		subject = spec.String()
	}
	g.record(snap, AuditEvent{
		Kind:      SubjectCommand,
		Subject:   subject,
		Operation: OpExecute,
		Cwd:       cwd,
		Decision:  d,
	})
	return d
}

// PathError 为拒绝结论构造 DeniedError，允许时返回 nil
func PathError(candidate string, op Operation, d Decision) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Subject: candidate, Operation: op, Decision: d}
}

// CommandError 为拒绝结论构造 DeniedError，允许时返回 nil
func CommandError(spec CommandSpec, d Decision) error {
	if d.Allowed {
		return nil
	}
	op := OpExecute
	if d.Scope == ScopeCwd {
		op = OpExecuteCwd
	}
	subject := ""
	if spec != nil {
		subject = spec.String()
	}
	return &DeniedError{Subject: subject, Operation: op, Decision: d}
}

func (g *Guard) record(snap *Snapshot, event AuditEvent) {
	if g.auditor == nil {
		return
	}
	event.Time = g.now()
	if snap != nil {
		event.PolicyVersion = snap.Version()
	}
	g.auditor.Record(event)
}
