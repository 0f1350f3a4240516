package security

import "errors"

// PathAuthorizer 判定文件系统路径能否被某个操作访问。
//
// Authorize 只依赖候选路径、快照和文件系统的当前状态；任何解析失败都以
// 拒绝结论返回，不会向调用方抛出错误。
type PathAuthorizer struct{}

// Authorize 规范化候选路径后按快照规则判定
func (PathAuthorizer) Authorize(candidate string, op Operation, snap *Snapshot) Decision {
	if snap == nil || op == 0 {
		return deny(ScopePath, InvalidInput, "")
	}

	resolved, err := Canonicalize(candidate)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return deny(ScopePath, InvalidInput, "")
		}
		return deny(ScopePath, UnresolvablePath, "")
	}

	d := snap.decidePath(resolved)
	d.Resolved = resolved
	return d
}
