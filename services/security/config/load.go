package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"exexd/services/security"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format 策略文件格式
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON
	}
	return FormatYAML
}

// Parse 解析策略文件内容；JSON 允许注释和尾随逗号
func Parse(data []byte, format Format) (*File, error) {
	f := &File{}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(jsonc.ToJSON(data), f); err != nil {
			return nil, fmt.Errorf("%w: parse json: %v", security.ErrConfig, err)
		}
	default:
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %v", security.ErrConfig, err)
		}
	}
	return f, nil
}

// Marshal 按格式序列化策略文件
func Marshal(f *File, format Format) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(f, "", "  ")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load 读取并解析策略文件，文件不存在时返回的错误满足 errors.Is(err, fs.ErrNotExist)
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(data, formatOf(path))
}

// Result 一次加载的产物
type Result struct {
	Snapshot *security.Snapshot
	Warnings []security.Warning
	Logging  Logging
	// Defaulted 文件不存在，使用了平台默认策略
	Defaulted bool
}

// Build 把解析好的策略文件构建成快照
func Build(f *File, opts ...security.BuildOption) (*Result, error) {
	doc := f.Policy()
	rules, err := doc.Rules()
	if err != nil {
		return nil, err
	}
	snap, warnings, err := security.Build(rules, opts...)
	if err != nil {
		return &Result{Warnings: warnings}, err
	}
	return &Result{Snapshot: snap, Warnings: warnings, Logging: doc.Logging}, nil
}

// LoadSnapshot 加载策略文件并构建快照
func LoadSnapshot(path string, opts ...security.BuildOption) (*Result, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Build(f, opts...)
}

// LoadOrDefault 启动时使用：文件不存在则使用平台默认策略
func LoadOrDefault(path string, opts ...security.BuildOption) (*Result, error) {
	res, err := LoadSnapshot(path, opts...)
	if !errors.Is(err, fs.ErrNotExist) {
		return res, err
	}
	res, err = Build(DefaultFile(), opts...)
	if err != nil {
		return res, err
	}
	res.Defaulted = true
	return res, nil
}

// Reloader 重新加载策略文件并发布到 Store。
//
// 启动之后的任何失败都保留上一份快照，只通过 OnError 报告。
type Reloader struct {
	Path    string
	Store   *security.Store
	Options []security.BuildOption

	OnReload func(ctx context.Context, res *Result)
	OnError  func(ctx context.Context, err error)

	mu sync.Mutex
}

// Reload 返回的 Result.Snapshot 是实际发布（带版本号）的快照；失败时 Store 保持不变
func (r *Reloader) Reload(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := LoadSnapshot(r.Path, r.Options...)
	if err != nil {
		r.fail(ctx, err)
		return nil, err
	}
	published, err := r.Store.Reload(res.Snapshot)
	if err != nil {
		r.fail(ctx, err)
		return nil, err
	}
	res.Snapshot = published
	if r.OnReload != nil {
		r.OnReload(ctx, res)
	}
	return res, nil
}

func (r *Reloader) fail(ctx context.Context, err error) {
	if r.OnError != nil {
		r.OnError(ctx, err)
	}
}
