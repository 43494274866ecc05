package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoad_FromFile 测试从配置文件加载配置
func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
database:
  driver: sqlite
  path: "/tmp/lms.db"
policy:
  grants:
    - employee_id: "C-002"
      capabilities: ["cross_unit_approve"]
    - employee_id: "R-033"
      capabilities: ["store_use_review"]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	require.Len(t, cfg.Policy.Grants, 2)
	assert.Equal(t, "C-002", cfg.Policy.Grants[0].EmployeeID)
	assert.Equal(t, []string{"store_use_review"}, cfg.Policy.Grants[1].Capabilities)
}

// TestLoad_Defaults 测试默认值
func TestLoad_Defaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"T-123", "admin"}, cfg.Policy.ExcludedEmployeeIDs)
	assert.Contains(t, cfg.Policy.RoleCapabilities["admin"], "cross_unit_approve")
	assert.True(t, cfg.Depreciation.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

// TestLoad_FromEnv 测试环境变量覆盖
func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_DATABASE_HOST", "db.example.com")

	path := writeConfig(t, "server:\n  host: 0.0.0.0\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
}

// TestLoad_UnsupportedDriver 测试不支持的数据库驱动
func TestLoad_UnsupportedDriver(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: mysql\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

// TestIsProduction 测试环境判断
func TestIsProduction(t *testing.T) {
	assert.False(t, config.IsProduction(nil))
	assert.True(t, config.IsProduction(&config.Config{Env: "production"}))
	assert.False(t, config.IsProduction(&config.Config{Env: "development"}))
}
