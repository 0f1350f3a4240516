package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

var (
	// ErrInvalidInput 路径为空或含有 NUL 等非法字符
	ErrInvalidInput = errors.New("security: invalid path")
	// ErrTraversal 不存在的路径后缀中含有 ".."
	ErrTraversal = errors.New("security: parent reference in unresolved suffix")
	// ErrDanglingLink 第一个缺失分量是一个悬空的符号链接
	ErrDanglingLink = errors.New("security: dangling symlink")
	// ErrUnresolvable 其它无法规范化的情况
	ErrUnresolvable = errors.New("security: unresolvable path")
)

// Canonicalize 将路径解析为绝对、无符号链接、无 "." / ".." 的唯一形式。
//
// 路径存在时完全交给文件系统解析；不存在时解析最深的已存在祖先目录，
// 再按字面追加剩余分量，剩余分量中出现 ".." 时直接失败。
func Canonicalize(candidate string) (string, error) {
	if strings.TrimSpace(candidate) == "" || strings.IndexByte(candidate, 0) >= 0 {
		return "", ErrInvalidInput
	}

	abs := candidate
	if !filepath.IsAbs(abs) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("%w: working directory: %v", ErrInvalidInput, err)
		}
		// 不能用 filepath.Join：它会在解析符号链接之前按字面消掉 ".."
		abs = wd + string(filepath.Separator) + candidate
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return filepath.Clean(resolved), nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	return resolveMissing(abs)
}

func resolveMissing(abs string) (string, error) {
	volume := filepath.VolumeName(abs)
	parts := splitComponents(abs[len(volume):])
	sep := string(filepath.Separator)

	for k := len(parts) - 1; k >= 0; k-- {
		ancestor := volume + sep + strings.Join(parts[:k], sep)
		resolved, err := filepath.EvalSymlinks(ancestor)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}

		remainder := parts[k:]
		for _, part := range remainder {
			if part == ".." {
				return "", ErrTraversal
			}
		}

		first := filepath.Join(resolved, remainder[0])
		if _, err := os.Lstat(first); err == nil {
			return "", ErrDanglingLink
		} else if !isNotFound(err) {
			return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}

		return filepath.Join(append([]string{resolved}, remainder...)...), nil
	}

	return "", ErrUnresolvable
}

// splitComponents 按分隔符切分，丢弃空分量和 "."，保留 ".."
func splitComponents(p string) []string {
	raw := strings.FieldsFunc(p, func(r rune) bool {
		return r < 0x80 && os.IsPathSeparator(uint8(r))
	})
	parts := raw[:0]
	for _, part := range raw {
		if part == "." {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

func isNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
