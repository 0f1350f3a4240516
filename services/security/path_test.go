package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tempRoot 返回已解析符号链接的临时目录（macOS 的 /var 是 /private/var 的链接）
func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func mustBuild(t *testing.T, rules Rules, opts ...BuildOption) *Snapshot {
	t.Helper()
	snap, _, err := Build(rules, opts...)
	require.NoError(t, err)
	return snap
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestPathAuthorizerScenarios(t *testing.T) {
	t.Parallel()
	root := tempRoot(t)
	var authz PathAuthorizer

	tests := []struct {
		name        string
		rules       Rules
		path        string
		wantAllowed bool
		wantReason  Reason
		wantPattern string
	}{
		{
			name: "AllowListOverridesDisallow",
			rules: Rules{
				AllowedPaths:    []string{filepath.Join(root, "home", "alice", "docs")},
				DisallowedPaths: []string{filepath.Join(root, "home")},
			},
			path:        filepath.Join(root, "home", "alice", "docs", "report.txt"),
			wantAllowed: true,
			wantReason:  AllowListMatch,
			wantPattern: filepath.Join(root, "home", "alice", "docs"),
		},
		{
			name: "AllowListMissIsDenied",
			rules: Rules{
				AllowedPaths:    []string{filepath.Join(root, "home", "alice", "docs")},
				DisallowedPaths: []string{filepath.Join(root, "home")},
			},
			path:       filepath.Join(root, "home", "alice", "secret.txt"),
			wantReason: NotInAllowList,
		},
		{
			name:        "DisallowMatch",
			rules:       Rules{DisallowedPaths: []string{filepath.Join(root, "etc")}},
			path:        filepath.Join(root, "etc", "passwd"),
			wantReason:  DenyListMatch,
			wantPattern: filepath.Join(root, "etc"),
		},
		{
			name:        "DisallowSegmentBoundary",
			rules:       Rules{DisallowedPaths: []string{filepath.Join(root, "etc")}},
			path:        filepath.Join(root, "etc2", "passwd"),
			wantAllowed: true,
			wantReason:  DefaultAllow,
		},
		{
			name:       "AllowSegmentBoundary",
			rules:      Rules{AllowedPaths: []string{filepath.Join(root, "home", "user")}},
			path:       filepath.Join(root, "home", "username"),
			wantReason: NotInAllowList,
		},
		{
			name:        "PrefixItselfMatches",
			rules:       Rules{DisallowedPaths: []string{filepath.Join(root, "etc")}},
			path:        filepath.Join(root, "etc"),
			wantReason:  DenyListMatch,
			wantPattern: filepath.Join(root, "etc"),
		},
		{
			name:        "BothEmpty",
			rules:       Rules{},
			path:        filepath.Join(root, "anything", "at", "all"),
			wantAllowed: true,
			wantReason:  DefaultAllow,
		},
		{
			name:        "TrailingSeparatorInRule",
			rules:       Rules{DisallowedPaths: []string{filepath.Join(root, "etc") + string(filepath.Separator)}},
			path:        filepath.Join(root, "etc", "hosts"),
			wantReason:  DenyListMatch,
			wantPattern: filepath.Join(root, "etc"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := mustBuild(t, tt.rules)
			d := authz.Authorize(tt.path, OpRead, snap)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantPattern, d.MatchedPattern)
			assert.Equal(t, ScopePath, d.Scope)
		})
	}
}

func TestPathAuthorizerFirstMatchingPattern(t *testing.T) {
	t.Parallel()
	root := tempRoot(t)
	snap := mustBuild(t, Rules{AllowedPaths: []string{
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "a"),
	}})

	d := PathAuthorizer{}.Authorize(filepath.Join(root, "a", "b", "c"), OpRead, snap)
	require.True(t, d.Allowed)
	assert.Equal(t, filepath.Join(root, "a", "b"), d.MatchedPattern)

	d = PathAuthorizer{}.Authorize(filepath.Join(root, "a", "x"), OpRead, snap)
	require.True(t, d.Allowed)
	assert.Equal(t, filepath.Join(root, "a"), d.MatchedPattern)
}

func TestPathAuthorizerTraversal(t *testing.T) {
	t.Parallel()
	root := tempRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "allowed", "sub"), 0o755))
	touch(t, filepath.Join(root, "etc", "passwd"))

	allowOnly := mustBuild(t, Rules{AllowedPaths: []string{filepath.Join(root, "allowed")}})
	denyEtc := mustBuild(t, Rules{DisallowedPaths: []string{filepath.Join(root, "etc")}})
	sep := string(filepath.Separator)

	// 字面上以允许目录开头，解析后落在允许目录之外
	escaping := filepath.Join(root, "allowed") + sep + "sub" + sep + ".." + sep + ".." + sep + "etc" + sep + "passwd"
	d := PathAuthorizer{}.Authorize(escaping, OpRead, allowOnly)
	assert.False(t, d.Allowed)
	assert.Equal(t, NotInAllowList, d.Reason)
	assert.Equal(t, filepath.Join(root, "etc", "passwd"), d.Resolved)

	d = PathAuthorizer{}.Authorize(escaping, OpRead, denyEtc)
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyListMatch, d.Reason)

	// 不存在的后缀中出现 ".." 无法安全解析
	missing := filepath.Join(root, "allowed") + sep + "nope" + sep + ".." + sep + "x"
	d = PathAuthorizer{}.Authorize(missing, OpCreate, allowOnly)
	assert.False(t, d.Allowed)
	assert.Equal(t, UnresolvablePath, d.Reason)
}

func TestPathAuthorizerNonExistentTarget(t *testing.T) {
	t.Parallel()
	root := tempRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "allowed"), 0o755))
	snap := mustBuild(t, Rules{AllowedPaths: []string{filepath.Join(root, "allowed")}})

	target := filepath.Join(root, "allowed", "new", "deeper", "file.txt")
	d := PathAuthorizer{}.Authorize(target, OpCreate, snap)
	assert.True(t, d.Allowed)
	assert.Equal(t, AllowListMatch, d.Reason)
	assert.Equal(t, target, d.Resolved)
}

func TestPathAuthorizerSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	t.Parallel()
	root := tempRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "allowed"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "secret"), 0o755))
	touch(t, filepath.Join(root, "secret", "key"))
	require.NoError(t, os.Symlink(filepath.Join(root, "secret"), filepath.Join(root, "allowed", "link")))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "allowed", "dangling")))

	snap := mustBuild(t, Rules{AllowedPaths: []string{filepath.Join(root, "allowed")}})

	t.Run("ExistingThroughLink", func(t *testing.T) {
		d := PathAuthorizer{}.Authorize(filepath.Join(root, "allowed", "link", "key"), OpRead, snap)
		assert.False(t, d.Allowed)
		assert.Equal(t, NotInAllowList, d.Reason)
		assert.Equal(t, filepath.Join(root, "secret", "key"), d.Resolved)
	})

	t.Run("MissingThroughLink", func(t *testing.T) {
		d := PathAuthorizer{}.Authorize(filepath.Join(root, "allowed", "link", "new.txt"), OpCreate, snap)
		assert.False(t, d.Allowed)
		assert.Equal(t, filepath.Join(root, "secret", "new.txt"), d.Resolved)
	})

	t.Run("DanglingLink", func(t *testing.T) {
		d := PathAuthorizer{}.Authorize(filepath.Join(root, "allowed", "dangling"), OpWrite, snap)
		assert.False(t, d.Allowed)
		assert.Equal(t, UnresolvablePath, d.Reason)
	})
}

func TestPathAuthorizerPermissionErrorFailsClosed(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs unix permissions as a non-root user")
	}
	t.Parallel()
	root := tempRoot(t)
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.MkdirAll(filepath.Join(locked, "inner"), 0o755))
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	snap := mustBuild(t, Rules{})
	d := PathAuthorizer{}.Authorize(filepath.Join(locked, "inner", "file"), OpRead, snap)
	assert.False(t, d.Allowed)
	assert.Equal(t, UnresolvablePath, d.Reason)
}

func TestPathAuthorizerInvalidInput(t *testing.T) {
	t.Parallel()
	snap := mustBuild(t, Rules{})

	for _, candidate := range []string{"", "   ", "/tmp/a\x00b"} {
		d := PathAuthorizer{}.Authorize(candidate, OpRead, snap)
		assert.False(t, d.Allowed, "%q", candidate)
		assert.Equal(t, InvalidInput, d.Reason, "%q", candidate)
	}

	d := PathAuthorizer{}.Authorize(os.TempDir(), OpRead, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, InvalidInput, d.Reason)
}

func TestPathAuthorizerCaseInsensitive(t *testing.T) {
	t.Parallel()
	root := tempRoot(t)
	rule := filepath.Join(root, "Data")

	folded := mustBuild(t, Rules{DisallowedPaths: []string{rule}}, WithCaseInsensitive(true))
	d := PathAuthorizer{}.Authorize(filepath.Join(root, "DATA", "x"), OpRead, folded)
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyListMatch, d.Reason)
	assert.Equal(t, rule, d.MatchedPattern)

	if !PlatformCaseInsensitive() {
		exact := mustBuild(t, Rules{DisallowedPaths: []string{rule}}, WithCaseInsensitive(false))
		d = PathAuthorizer{}.Authorize(filepath.Join(root, "DATA", "x"), OpRead, exact)
		assert.True(t, d.Allowed)
	}
}

func TestPathAuthorizerDeterministic(t *testing.T) {
	t.Parallel()
	root := tempRoot(t)
	snap := mustBuild(t, Rules{
		AllowedPaths:    []string{filepath.Join(root, "a")},
		DisallowedPaths: []string{filepath.Join(root, "a", "b")},
	})
	candidate := filepath.Join(root, "a", "b", "c")

	first := PathAuthorizer{}.Authorize(candidate, OpWrite, snap)
	for range 20 {
		assert.Equal(t, first, PathAuthorizer{}.Authorize(candidate, OpWrite, snap))
	}
}

func TestPathAuthorizerDefaultLawRelativePath(t *testing.T) {
	t.Parallel()
	snap := mustBuild(t, Rules{})
	d := PathAuthorizer{}.Authorize("some/relative/file", OpRead, snap)
	assert.True(t, d.Allowed)
	assert.True(t, filepath.IsAbs(d.Resolved))
}
