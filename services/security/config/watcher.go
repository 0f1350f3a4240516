package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher 监听策略文件变更并触发 Reloader。
//
// 监听的是所在目录而不是文件本身，编辑器的原子替换（写临时文件再 rename）
// 也能被捕获。一阵连续事件只触发一次重载。
type Watcher struct {
	reloader *Reloader
	debounce time.Duration
}

// NewWatcher debounce <= 0 时使用默认值
func NewWatcher(r *Reloader, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{reloader: r, debounce: debounce}
}

// Run 阻塞直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	target, err := filepath.Abs(w.reloader.Path)
	if err != nil {
		return fmt.Errorf("policy watcher: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy watcher: %w", err)
	}
	defer fw.Close()

	if err = fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("policy watcher: watch %s: %w", filepath.Dir(target), err)
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				fire = time.After(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.reloader.fail(ctx, fmt.Errorf("policy watcher: %w", err))

		case <-fire:
			fire = nil
			// 失败已经通过 OnError 报告，旧快照继续生效
			_, _ = w.reloader.Reload(ctx)
		}
	}
}
