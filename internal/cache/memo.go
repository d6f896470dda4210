package cache

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Memo 类型化的读穿缓存.
//
// 值以 JSON 存入底层 Store. 同一键的并发加载通过 singleflight 合并,
// 只执行一次 load.
type Memo[T any] struct {
	store  Store
	name   string
	logger *zap.Logger
	group  singleflight.Group

	// OnLookup 每次查询后回调, hit 表示是否命中缓存. 用于指标采集.
	OnLookup func(name string, hit bool)
}

// NewMemo 创建读穿缓存. name 用于日志与指标.
func NewMemo[T any](store Store, name string, logger *zap.Logger) *Memo[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memo[T]{
		store:  store,
		name:   name,
		logger: logger.With(zap.String("cache", name)),
	}
}

// Get 读取缓存. 存储错误与解码错误都按未命中处理.
func (m *Memo[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	data, err := m.store.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			m.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		m.logger.Warn("cache entry decode failed", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return v, true
}

// Set 写入缓存, 失败只记录日志.
func (m *Memo[T]) Set(ctx context.Context, key string, v T) {
	m.put(ctx, key, v)
}

// put 写入并返回值的解码形式, 使未命中与命中返回的值完全一致
// (例如 map[string]any 中的数字统一为 float64).
func (m *Memo[T]) put(ctx context.Context, key string, v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("cache entry encode failed", zap.String("key", key), zap.Error(err))
		return v
	}
	if err := m.store.Set(ctx, key, data, 0); err != nil {
		m.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		return v
	}
	return decoded
}

// Do 返回缓存值; 未命中时调用 load.
// load 返回的 cacheable 为 false 时结果不写入缓存. hit 报告结果是否来自缓存.
//
// 共享的 load 在去掉取消信号的 context 上运行, 某个调用方取消不会让其他
// 等待同一键的调用方失败. 每个调用方只等待到自己的 ctx 结束, 此时返回 ctx.Err().
func (m *Memo[T]) Do(ctx context.Context, key string, load func(context.Context) (T, bool, error)) (v T, hit bool, err error) {
	if cached, ok := m.Get(ctx, key); ok {
		m.observe(true)
		m.logger.Debug("cache hit", zap.String("key", key))
		return cached, true, nil
	}
	m.observe(false)

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		// 等待期间可能已被其他调用方写入
		if cached, ok := m.Get(shared, key); ok {
			return cached, nil
		}
		val, cacheable, err := load(shared)
		if err != nil {
			return val, err
		}
		if cacheable {
			val = m.put(shared, key, val)
		}
		return val, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(T)
		return res, false, r.Err
	}
}

func (m *Memo[T]) observe(hit bool) {
	if m.OnLookup != nil {
		m.OnLookup(m.name, hit)
	}
}
