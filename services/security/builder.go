package security

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// ErrConfig 策略无法构建，启动时为致命错误
var ErrConfig = errors.New("security: invalid policy")

// Rules 规范化之前的策略原文
type Rules struct {
	AllowedPaths     []string
	DisallowedPaths  []string
	CommandWhitelist []string
	CommandBlacklist []string
	MaxPayloadBytes  int64
	// Strict 为 true 时任何被丢弃的条目都视为配置错误
	Strict bool
}

// Warning 构建时被丢弃的条目
type Warning struct {
	List  string
	Entry string
	Err   error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s entry %q dropped: %v", w.List, w.Entry, w.Err)
}

var (
	errNotAbsolute = errors.New("not an absolute path")
	errEmptyEntry  = errors.New("empty entry")
	errNoGlobMatch = errors.New("pattern matches nothing")
)

type buildOptions struct {
	caseInsensitive bool
	homeDir         func() (string, error)
}

// BuildOption 调整快照构建行为
type BuildOption func(*buildOptions)

// WithCaseInsensitive 覆盖平台默认的大小写敏感性
func WithCaseInsensitive(v bool) BuildOption {
	return func(o *buildOptions) {
		o.caseInsensitive = v
	}
}

// WithHomeDir 指定 "~" 展开使用的目录
func WithHomeDir(dir string) BuildOption {
	return func(o *buildOptions) {
		o.homeDir = func() (string, error) { return dir, nil }
	}
}

// Build 规范化策略原文并生成快照。
//
// 非法条目默认丢弃并以 Warning 返回；Strict 模式下或者某个列表在原文中非空
// 而规范化后变为空时，返回 ErrConfig。
func Build(rules Rules, opts ...BuildOption) (*Snapshot, []Warning, error) {
	o := buildOptions{
		caseInsensitive: PlatformCaseInsensitive(),
		homeDir:         os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Snapshot{
		caseInsensitive: o.caseInsensitive,
		maxPayload:      rules.MaxPayloadBytes,
	}
	if s.maxPayload < 0 {
		return nil, nil, fmt.Errorf("%w: negative max payload %d", ErrConfig, rules.MaxPayloadBytes)
	}

	var warnings []Warning
	var err error

	s.allowed, warnings = normalizePaths("allowedPaths", rules.AllowedPaths, o, warnings)
	s.disallowed, warnings = normalizePaths("disallowedPaths", rules.DisallowedPaths, o, warnings)
	s.allowedKeys = foldAll(s, s.allowed)
	s.disallowedKey = foldAll(s, s.disallowed)

	s.whitelist, warnings = normalizeCommands("commandWhitelist", rules.CommandWhitelist, s, warnings)
	s.blacklist, warnings = normalizeCommands("commandBlacklist", rules.CommandBlacklist, s, warnings)

	if rules.Strict && len(warnings) > 0 {
		return nil, warnings, fmt.Errorf("%w: strict mode: %s", ErrConfig, warnings[0])
	}
	for _, check := range []struct {
		name   string
		before int
		after  int
	}{
		{"allowedPaths", len(rules.AllowedPaths), len(s.allowed)},
		{"disallowedPaths", len(rules.DisallowedPaths), len(s.disallowed)},
		{"commandWhitelist", len(rules.CommandWhitelist), len(s.whitelist)},
		{"commandBlacklist", len(rules.CommandBlacklist), len(s.blacklist)},
	} {
		if check.before > 0 && check.after == 0 {
			return nil, warnings, fmt.Errorf("%w: every %s entry was dropped", ErrConfig, check.name)
		}
	}

	if s.fingerprint, err = fingerprint(s); err != nil {
		return nil, warnings, fmt.Errorf("%w: fingerprint: %v", ErrConfig, err)
	}
	return s, warnings, nil
}

func normalizePaths(list string, entries []string, o buildOptions, warnings []Warning) ([]string, []Warning) {
	var out []string
	for _, entry := range entries {
		expanded, err := expandEntry(entry, o)
		if err != nil {
			warnings = append(warnings, Warning{List: list, Entry: entry, Err: err})
			continue
		}
		for _, p := range expanded {
			canonical, err := Canonicalize(p)
			if err != nil {
				warnings = append(warnings, Warning{List: list, Entry: entry, Err: err})
				continue
			}
			if !slices.Contains(out, canonical) {
				out = append(out, canonical)
			}
		}
	}
	return out, warnings
}

// expandEntry 统一分隔符，展开 "~" 和通配符
func expandEntry(entry string, o buildOptions) ([]string, error) {
	p := strings.TrimSpace(entry)
	if p == "" {
		return nil, errEmptyEntry
	}
	if filepath.Separator == '/' {
		p = strings.ReplaceAll(p, `\`, "/")
	} else {
		p = strings.ReplaceAll(p, "/", `\`)
	}

	if p == "~" || strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		home, err := o.homeDir()
		if err != nil {
			return nil, fmt.Errorf("expand home: %w", err)
		}
		p = home + p[1:]
	}

	if !filepath.IsAbs(p) {
		return nil, errNotAbsolute
	}

	if !strings.ContainsAny(p, "*?[") {
		return []string{p}, nil
	}
	matches, err := filepath.Glob(p)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errNoGlobMatch
	}
	return matches, nil
}

func normalizeCommands(list string, entries []string, s *Snapshot, warnings []Warning) (map[string]struct{}, []Warning) {
	set := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		key := s.commandKey(entry)
		if key == "" {
			warnings = append(warnings, Warning{List: list, Entry: entry, Err: errEmptyEntry})
			continue
		}
		set[key] = struct{}{}
	}
	return set, warnings
}

func foldAll(s *Snapshot, paths []string) []string {
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = s.fold(p)
	}
	return keys
}

var fingerprintMode cbor.EncMode

func init() {
	var err error
	fingerprintMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("security: CBOR encoder initialization failed: " + err.Error())
	}
}

// fingerprint 规范化规则的确定性 CBOR 编码的 BLAKE3 摘要
func fingerprint(s *Snapshot) (string, error) {
	data, err := fingerprintMode.Marshal(struct {
		Allowed         []string `cbor:"1,keyasint"`
		Disallowed      []string `cbor:"2,keyasint"`
		Whitelist       []string `cbor:"3,keyasint"`
		Blacklist       []string `cbor:"4,keyasint"`
		MaxPayload      int64    `cbor:"5,keyasint"`
		CaseInsensitive bool     `cbor:"6,keyasint"`
	}{
		Allowed:         s.allowed,
		Disallowed:      s.disallowed,
		Whitelist:       sortedKeys(s.whitelist),
		Blacklist:       sortedKeys(s.blacklist),
		MaxPayload:      s.maxPayload,
		CaseInsensitive: s.caseInsensitive,
	})
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
