package security

import (
	"path/filepath"
	"strings"
)

// 所有平台都剥离的可执行文件扩展名，Windows 风格的名字也能命中 Unix 上写的黑名单
var executableExts = map[string]struct{}{
	".exe": {},
	".com": {},
	".bat": {},
	".cmd": {},
	".ps1": {},
	".msi": {},
	".scr": {},
}

// 以 "-c" 一类参数执行脚本的解释器，脚本中的命令同样要经过黑名单检查
var shellInterpreters = map[string][]string{
	"sh":         {"-c"},
	"bash":       {"-c"},
	"zsh":        {"-c"},
	"dash":       {"-c"},
	"ksh":        {"-c"},
	"fish":       {"-c"},
	"cmd":        {"/c", "/k"},
	"powershell": {"-command", "-c"},
	"pwsh":       {"-command", "-c"},
}

// BaseName 去掉目录（"/" 和 "\" 都视为分隔符）和可执行扩展名
func BaseName(executable string) string {
	name := strings.Trim(strings.TrimSpace(executable), `"'`)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if ext := filepath.Ext(name); ext != "" {
		if _, ok := executableExts[strings.ToLower(ext)]; ok {
			name = name[:len(name)-len(ext)]
		}
	}
	return name
}

// CommandAuthorizer 判定命令（以及可选的工作目录）能否执行
type CommandAuthorizer struct {
	paths     PathAuthorizer
	segmenter *Segmenter
}

func NewCommandAuthorizer() *CommandAuthorizer {
	return &CommandAuthorizer{segmenter: NewSegmenter(0)}
}

// Authorize 依次执行黑名单、白名单和工作目录检查。
//
// 黑名单优先：ShellLine 的每个子命令都会被检查，任何一处命中即拒绝，
// 即使白名单允许第一个命令。白名单只约束主命令。cwd 为空表示未提供。
func (a *CommandAuthorizer) Authorize(spec CommandSpec, cwd string, snap *Snapshot) Decision {
	if snap == nil || spec == nil {
		return deny(ScopeCommand, InvalidInput, "")
	}

	primary, tokens, ok := a.tokens(spec)
	if !ok {
		return deny(ScopeCommand, InvalidInput, "")
	}

	for _, token := range tokens {
		if key, hit := snap.blacklisted(token); hit {
			return deny(ScopeCommand, BlacklistedCommand, key)
		}
	}

	result := allow(ScopeCommand, DefaultAllow, "")
	if len(snap.whitelist) > 0 {
		key, hit := snap.whitelisted(primary)
		if !hit {
			return deny(ScopeCommand, NotInAllowList, "")
		}
		result = allow(ScopeCommand, AllowListMatch, key)
	}

	if cwd != "" {
		d := a.paths.Authorize(cwd, OpExecuteCwd, snap)
		if !d.Allowed {
			d.Scope = ScopeCwd
			return d
		}
		result.Resolved = d.Resolved
	}
	return result
}

// tokens 返回主命令和所有需要经过黑名单检查的命令 token
func (a *CommandAuthorizer) tokens(spec CommandSpec) (string, []string, bool) {
	switch s := spec.(type) {
	case Direct:
		executable := strings.TrimSpace(s.Executable)
		if executable == "" || BaseName(executable) == "" {
			return "", nil, false
		}
		words := append([]string{executable}, s.Args...)
		tokens := append([]string{executable}, a.segmenter.Invocation(words)...)
		return executable, tokens, true

	case ShellLine:
		line := string(s)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return "", nil, false
		}
		tokens := append([]string{fields[0]}, a.segmenter.Commands(line)...)
		return fields[0], tokens, true
	}
	return "", nil, false
}

// 这些 shell 允许把 -c 和其他单字母选项合写，如 "bash -lc"
var combinedFlagShells = map[string]struct{}{
	"sh": {}, "bash": {}, "zsh": {}, "dash": {}, "ksh": {},
}

// inlineScript 识别 "sh -c <script>" 一类调用，返回脚本内容
func inlineScript(executable string, args []string) (string, bool) {
	shell := strings.ToLower(BaseName(executable))
	flags, ok := shellInterpreters[shell]
	if !ok {
		return "", false
	}
	_, combined := combinedFlagShells[shell]
	for i, arg := range args {
		if i+1 >= len(args) {
			break
		}
		if isScriptFlag(arg, flags, combined) {
			return strings.Join(args[i+1:], " "), true
		}
	}
	return "", false
}

func isScriptFlag(arg string, flags []string, combined bool) bool {
	for _, flag := range flags {
		if strings.EqualFold(arg, flag) {
			return true
		}
	}
	if !combined || len(arg) < 3 || arg[0] != '-' || arg[1] == '-' {
		return false
	}
	for _, c := range arg[1:] {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return strings.ContainsRune(arg[1:], 'c')
}
