package security

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNilSnapshot 不允许发布空快照
var ErrNilSnapshot = errors.New("security: nil snapshot")

// Store 持有当前生效的快照。
//
// 读取方通过原子指针拿到快照，无需加锁；Reload 是唯一的写入方，写入方之间
// 用互斥锁串行以保证版本号单调递增。
type Store struct {
	current atomic.Pointer[Snapshot]

	mu      sync.Mutex
	version uint64
	now     func() time.Time
}

// NewStore 以初始快照创建 Store，初始版本号为 1
func NewStore(initial *Snapshot) (*Store, error) {
	s := &Store{now: time.Now}
	if _, err := s.Reload(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Current 返回当前快照，一个请求内应只调用一次
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload 原子替换当前快照，返回实际发布（带版本号）的快照
func (s *Store) Reload(next *Snapshot) (*Snapshot, error) {
	if next == nil {
		return nil, ErrNilSnapshot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	// 发布前拷贝一份再写版本号；规则切片和集合本身从不修改，可以共享
	published := *next
	published.version = s.version
	published.loadedAt = s.now()

	s.current.Store(&published)
	return &published, nil
}
