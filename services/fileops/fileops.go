// Package fileops 实现经过授权的文件和目录操作。
//
// 每个操作在请求开始时取一次策略快照，先授权，授权通过后只对授权时解析
// 出的规范路径进行文件系统调用。
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"exexd/services/security"

	"github.com/dustin/go-humanize"
)

var (
	// ErrInvalidRequest 请求缺少必要字段
	ErrInvalidRequest = errors.New("fileops: invalid request")
	// ErrPayloadTooLarge 内容超过策略的负载上限
	ErrPayloadTooLarge = errors.New("fileops: payload too large")
)

// Service 文件操作
type Service struct {
	guard *security.Guard
}

func NewService(guard *security.Guard) *Service {
	return &Service{guard: guard}
}

// Entry 扫描结果中的一项
type Entry struct {
	Name    string
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
	// Created 平台不提供创建时间时为零值
	Created time.Time
	Mode    fs.FileMode
}

// ScanResult Skipped 为因授权被跳过的子目录数
type ScanResult struct {
	Entries []Entry
	Skipped int
}

func (s *Service) authorize(snap *security.Snapshot, path string, op security.Operation) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	d := s.guard.Path(snap, path, op)
	if err := security.PathError(path, op, d); err != nil {
		return "", err
	}
	return d.Resolved, nil
}

func checkPayload(size int64, snap *security.Snapshot) error {
	limit := snap.MaxPayloadBytes()
	if limit > 0 && size > limit {
		return fmt.Errorf("%w: %s exceeds %s", ErrPayloadTooLarge,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
	}
	return nil
}

// Sanitize 去掉 NUL 字节并统一换行符为 LF
func Sanitize(content string) string {
	content = strings.ReplaceAll(content, "\x00", "")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

// Read 读取文件内容
func (s *Service) Read(_ context.Context, path string) (string, error) {
	snap := s.guard.Snapshot()
	resolved, err := s.authorize(snap, path, security.OpRead)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("failed to read file: %s is a directory", path)
	}
	if err = checkPayload(info.Size(), snap); err != nil {
		return "", err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// Write 写入文件，必要时创建父目录
func (s *Service) Write(_ context.Context, path, content string) error {
	snap := s.guard.Snapshot()
	resolved, err := s.authorize(snap, path, security.OpWrite)
	if err != nil {
		return err
	}
	if err = checkPayload(int64(len(content)), snap); err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err = os.WriteFile(resolved, []byte(Sanitize(content)), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Scan 列出目录；递归时每个子目录都重新授权，被拒绝的子目录跳过
func (s *Service) Scan(ctx context.Context, path string, recursive, includeHidden bool) (*ScanResult, error) {
	snap := s.guard.Snapshot()
	resolved, err := s.authorize(snap, path, security.OpScan)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{}
	entries, err := scanDir(resolved, includeHidden)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	var stack []Entry
	for _, entry := range entries {
		result.Entries = append(result.Entries, entry)
		if entry.IsDir {
			stack = append(stack, entry)
		}
	}

	for recursive && len(stack) > 0 {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := s.guard.Path(snap, dir.Path, security.OpScan)
		if !d.Allowed {
			result.Skipped++
			continue
		}
		children, err := scanDir(d.Resolved, includeHidden)
		if err != nil {
			// 扫描过程中消失或不可读的子目录忽略
			continue
		}
		for _, child := range children {
			result.Entries = append(result.Entries, child)
			if child.IsDir {
				stack = append(stack, child)
			}
		}
	}
	return result, nil
}

// scanDir 单层列目录，符号链接不视为目录
func scanDir(dir string, includeHidden bool) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		entry := Entry{
			Name:    name,
			Path:    path,
			IsDir:   de.IsDir(),
			ModTime: info.ModTime(),
			Created: createdTime(path, info),
			Mode:    info.Mode(),
		}
		if info.Mode().IsRegular() {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete 删除文件或目录，返回删除的条目数
func (s *Service) Delete(_ context.Context, path string, recursive bool) (int, error) {
	snap := s.guard.Snapshot()
	resolved, err := s.authorize(snap, path, security.OpDelete)
	if err != nil {
		return 0, err
	}

	info, err := os.Lstat(resolved)
	if err != nil {
		return 0, fmt.Errorf("failed to delete: %w", err)
	}
	if info.IsDir() && recursive {
		err = os.RemoveAll(resolved)
	} else {
		err = os.Remove(resolved)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete: %w", err)
	}
	return 1, nil
}

// Create 创建文件或目录，已存在时失败
func (s *Service) Create(_ context.Context, path string, isDirectory bool, content string) (string, error) {
	snap := s.guard.Snapshot()
	resolved, err := s.authorize(snap, path, security.OpCreate)
	if err != nil {
		return "", err
	}

	if _, err = os.Lstat(resolved); err == nil {
		return "", fmt.Errorf("item already exists: %s: %w", path, fs.ErrExist)
	}

	if isDirectory {
		if err = os.MkdirAll(resolved, 0o755); err != nil {
			return "", fmt.Errorf("failed to create: %w", err)
		}
		return resolved, nil
	}

	if err = checkPayload(int64(len(content)), snap); err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	f, err := os.OpenFile(resolved, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create: %w", err)
	}
	if _, err = f.WriteString(Sanitize(content)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to create: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("failed to create: %w", err)
	}
	return resolved, nil
}

// Rename 源和目标用同一份快照授权；源必须存在，目标不得存在
func (s *Service) Rename(_ context.Context, from, to string) error {
	snap := s.guard.Snapshot()
	src, err := s.authorize(snap, from, security.OpRename)
	if err != nil {
		return err
	}
	dst, err := s.authorize(snap, to, security.OpRename)
	if err != nil {
		return err
	}

	if _, err = os.Lstat(src); err != nil {
		return fmt.Errorf("source path does not exist: %s: %w", from, err)
	}
	if _, err = os.Lstat(dst); err == nil {
		return fmt.Errorf("destination path already exists: %s: %w", to, fs.ErrExist)
	}
	if err = os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err = os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}
