package security

import (
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Snapshot 某一时刻生效的策略的不可变视图。
//
// 构建之后任何字段都不会再被修改；Store.Reload 发布新快照时只替换指针，
// 已经持有旧快照的请求继续按旧规则完成授权。
type Snapshot struct {
	version     uint64
	fingerprint string
	loadedAt    time.Time

	allowed       []string
	allowedKeys   []string
	disallowed    []string
	disallowedKey []string

	whitelist map[string]struct{}
	blacklist map[string]struct{}

	maxPayload      int64
	caseInsensitive bool
}

// PlatformCaseInsensitive 当前平台的文件系统是否默认大小写不敏感
func PlatformCaseInsensitive() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin" || runtime.GOOS == "ios"
}

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Fingerprint() string { return s.fingerprint }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) AllowedPaths() []string { return slices.Clone(s.allowed) }

func (s *Snapshot) DisallowedPaths() []string { return slices.Clone(s.disallowed) }

func (s *Snapshot) CommandWhitelist() []string { return sortedKeys(s.whitelist) }

func (s *Snapshot) CommandBlacklist() []string { return sortedKeys(s.blacklist) }

// MaxPayloadBytes 由处理器执行的载荷上限，授权器本身不使用
func (s *Snapshot) MaxPayloadBytes() int64 { return s.maxPayload }

func (s *Snapshot) CaseInsensitive() bool { return s.caseInsensitive }

// fold 平台大小写不敏感时做 Unicode case folding
func (s *Snapshot) fold(v string) string {
	if !s.caseInsensitive {
		return v
	}
	// Caser 有状态，不能在 goroutine 间共享
	return cases.Fold().String(v)
}

// decidePath 对已规范化的路径执行允许/禁止列表判定
func (s *Snapshot) decidePath(resolved string) Decision {
	key := s.fold(resolved)

	if len(s.allowed) > 0 {
		if i := firstMatch(s.allowedKeys, key); i >= 0 {
			return allow(ScopePath, AllowListMatch, s.allowed[i])
		}
		return deny(ScopePath, NotInAllowList, "")
	}

	if len(s.disallowed) > 0 {
		if i := firstMatch(s.disallowedKey, key); i >= 0 {
			return deny(ScopePath, DenyListMatch, s.disallowed[i])
		}
	}

	return allow(ScopePath, DefaultAllow, "")
}

func (s *Snapshot) commandKey(executable string) string {
	name := BaseName(executable)
	if s.caseInsensitive {
		// Windows 会忽略文件名末尾的点和空格
		name = strings.TrimRight(name, ". ")
	}
	return s.fold(name)
}

func (s *Snapshot) blacklisted(executable string) (string, bool) {
	key := s.commandKey(executable)
	_, ok := s.blacklist[key]
	return key, ok
}

func (s *Snapshot) whitelisted(executable string) (string, bool) {
	key := s.commandKey(executable)
	_, ok := s.whitelist[key]
	return key, ok
}

func firstMatch(prefixes []string, path string) int {
	for i, prefix := range prefixes {
		if hasPathPrefix(path, prefix) {
			return i
		}
	}
	return -1
}

// hasPathPrefix 按路径分量边界做前缀匹配："/home/user" 不匹配 "/home/username"
func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	// 根目录本身以分隔符结尾
	if os.IsPathSeparator(prefix[len(prefix)-1]) {
		return true
	}
	return os.IsPathSeparator(path[len(prefix)])
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
