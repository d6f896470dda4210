package database

import (
	"fmt"
	"strings"

	"github.com/BaSui01/kbroute/config"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 规范化后的方言名
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// NormalizeDriver 把配置里的驱动别名映射为方言名
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "":
		return "", fmt.Errorf("database driver not configured")
	default:
		return "", fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", driver)
	}
}

// Dialector 按 database.driver 选择 gorm 方言。
// SQLite 使用纯 Go 的 glebarez 驱动，Name 为文件路径或 ":memory:"。
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dialect, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	cfg.Driver = dialect

	switch dialect {
	case DialectSQLite:
		name := cfg.Name
		if name == "" {
			name = ":memory:"
		}
		return sqlite.Open(name), nil
	case DialectPostgres:
		return postgres.Open(cfg.DSN()), nil
	default:
		return mysql.Open(cfg.DSN()), nil
	}
}

// Connect 打开数据库并包装为 PoolManager
func Connect(cfg config.DatabaseConfig, logger *zap.Logger, opts ...PoolOption) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	dialect, _ := NormalizeDriver(cfg.Driver)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	poolCfg := PoolConfigFrom(cfg)
	if dialect == DialectSQLite {
		// 内存库每个连接各自独立，文件库写入也是串行的
		poolCfg.MaxOpenConns = 1
		poolCfg.MaxIdleConns = 1
	}

	pm, err := NewPoolManager(db, poolCfg, logger, append([]PoolOption{WithName(dialect)}, opts...)...)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected", zap.String("driver", dialect))
	return pm, nil
}
