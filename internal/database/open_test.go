package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BaSui01/kbroute/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeDriver(t *testing.T) {
	tests := map[string]string{
		"sqlite":     DialectSQLite,
		"SQLite3":    DialectSQLite,
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
		"pg":         DialectPostgres,
		"mysql":      DialectMySQL,
		"mariadb":    DialectMySQL,
	}
	for in, want := range tests {
		got, err := NormalizeDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeDriver("")
	assert.ErrorContains(t, err, "not configured")
	_, err = NormalizeDriver("mongodb")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestDialector_Names(t *testing.T) {
	for driver, want := range map[string]string{"sqlite": "sqlite", "pg": "postgres", "mysql": "mysql"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Host: "db", Port: 1, Name: "x"})
		require.NoError(t, err)
		assert.Equal(t, want, d.Name())
	}
}

func TestConnect_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	pm, err := Connect(config.DatabaseConfig{Driver: "sqlite", Name: path, MaxOpenConns: 10}, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Equal(t, DialectSQLite, pm.Name())
	assert.Equal(t, 1, pm.Stats().MaxOpenConnections)
	require.NoError(t, pm.Ping(context.Background()))

	var one int
	require.NoError(t, pm.DB().Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestConnect_InvalidDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}
