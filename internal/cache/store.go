package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// ErrClosed 存储已关闭
var ErrClosed = errors.New("cache store is closed")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Store 精确键缓存存储
type Store interface {
	// Get 返回键对应的值，未命中时返回 ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 写入值；ttl 为 0 时使用存储自身的默认有效期.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
	// Name 返回后端名称.
	Name() string
}

// HashKey 以 NUL 分隔各部分后做 SHA-256，返回 prefix + 十六进制摘要.
// NUL 分隔保证 ("ab","c") 与 ("a","bc") 得到不同的键.
func HashKey(prefix string, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return prefix + hex.EncodeToString(h.Sum(nil))
}
