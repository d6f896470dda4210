package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ============================================================
// 进程内缓存: 有界时用 golang-lru 淘汰, 无界时是普通 map
// ============================================================

// entries 是 lru.Cache 与 mapEntries 共有的方法集
type entries interface {
	Add(key string, value entry) bool
	Get(key string) (entry, bool)
	Remove(key string) bool
	Len() int
	Purge()
}

type entry struct {
	value     []byte
	expiresAt time.Time // 零值表示永不过期
}

// mapEntries 无界实现, 永不淘汰
type mapEntries map[string]entry

func (m mapEntries) Add(key string, value entry) bool { m[key] = value; return false }

func (m mapEntries) Get(key string) (entry, bool) {
	e, ok := m[key]
	return e, ok
}

func (m mapEntries) Remove(key string) bool {
	_, ok := m[key]
	delete(m, key)
	return ok
}

func (m mapEntries) Len() int { return len(m) }

func (m mapEntries) Purge() { clear(m) }

// LRUStore 进程内缓存. capacity <= 0 时不淘汰, ttl <= 0 时不过期.
type LRUStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    entries
	closed   bool

	now func() time.Time
}

// NewLRUStore 创建进程内缓存
func NewLRUStore(capacity int, ttl time.Duration) *LRUStore {
	var items entries = mapEntries{}
	if capacity > 0 {
		// lru.New 只在 size <= 0 时报错
		items, _ = lru.New[string, entry](capacity)
	}
	return &LRUStore{
		capacity: capacity,
		ttl:      ttl,
		items:    items,
		now:      time.Now,
	}
}

// NewMapStore 创建无界、永不过期的进程内缓存
func NewMapStore() *LRUStore {
	return NewLRUStore(0, 0)
}

func (c *LRUStore) Name() string {
	if c.capacity <= 0 {
		return "memory"
	}
	return "lru"
}

// Get 命中时刷新 LRU 位置; 过期条目在这里惰性删除
func (c *LRUStore) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	e, ok := c.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.items.Remove(key)
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

// Set ttl <= 0 时使用创建时的默认 ttl
func (c *LRUStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.items.Add(key, e)
	return nil
}

func (c *LRUStore) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.items.Remove(key)
	}
	return nil
}

func (c *LRUStore) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *LRUStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items.Purge()
	return nil
}

// Len 返回当前条目数 (含尚未清理的过期条目)
func (c *LRUStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}
