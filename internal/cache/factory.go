package cache

import (
	"fmt"
	"strings"

	"github.com/BaSui01/kbroute/config"
	"go.uber.org/zap"
)

// New 按配置构造缓存存储.
func New(cfg config.CacheConfig, redisCfg config.RedisConfig, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewLRUStore(0, cfg.TTL), nil
	case "lru":
		return NewLRUStore(cfg.MaxEntries, cfg.TTL), nil
	case "redis":
		return NewRedisStore(RedisConfig{
			Addr:         redisCfg.Addr,
			Password:     redisCfg.Password,
			DB:           redisCfg.DB,
			PoolSize:     redisCfg.PoolSize,
			MinIdleConns: redisCfg.MinIdleConns,
			KeyPrefix:    cfg.KeyPrefix,
			DefaultTTL:   cfg.TTL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
