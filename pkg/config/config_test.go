package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8088
  read_timeout: 3s
mongodb:
  database: shop
auth:
  jwt_secret: secret
orders:
  stock_policy: guarded
  restore_stock_on_cancel: false
analytics:
  timezone: Asia/Kolkata
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "shop", cfg.MongoDB.Database)
	assert.Equal(t, "audit_logs", cfg.MongoDB.AuditCollection)
	assert.Equal(t, StockGuarded, cfg.Orders.StockPolicy)
	assert.False(t, cfg.Orders.RestoreStockOnCancel)
	assert.Equal(t, 10, cfg.Orders.DefaultPageLimit)
	assert.Equal(t, "Asia/Kolkata", cfg.Analytics.Location().String())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: from-file
`)
	t.Setenv("STOREFRONT_AUTH_JWT_SECRET", "from-env")
	t.Setenv("STOREFRONT_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_JWT_SECRET", "s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StockBestEffort, cfg.Orders.StockPolicy)
	assert.True(t, cfg.Orders.RestoreStockOnCancel)
	assert.False(t, cfg.Orders.StrictTransitions)
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Addr())
	assert.Equal(t, time.UTC, cfg.Analytics.Location())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", "orders:\n  stock_policy: best_effort\n"},
		{"unknown policy", "auth:\n  jwt_secret: s\norders:\n  stock_policy: yolo\n"},
		{"bad limit", "auth:\n  jwt_secret: s\norders:\n  default_page_limit: 0\n"},
		{"bad timezone", "auth:\n  jwt_secret: s\nanalytics:\n  timezone: Mars/Olympus\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
