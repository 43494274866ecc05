package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/mautops/rdrealty-lms/internal/database"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildDSN 测试 DSN 生成
func TestBuildDSN(t *testing.T) {
	dsn := database.BuildDSN(config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		DBName:   "rdrealty",
		SSLMode:  "disable",
	})

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "user=postgres")
	assert.Contains(t, dsn, "dbname=rdrealty")
	assert.Contains(t, dsn, "sslmode=disable")
}

// TestGetPoolConfig_Defaults 测试连接池默认值
func TestGetPoolConfig_Defaults(t *testing.T) {
	pool := database.GetPoolConfig(config.DatabaseConfig{})
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 100, pool.MaxOpenConns)
	assert.Equal(t, 3600, pool.ConnMaxLifetime)
	assert.Equal(t, 600, pool.ConnMaxIdleTime)

	pool = database.GetPoolConfig(config.DatabaseConfig{MaxOpenConns: 25})
	assert.Equal(t, 25, pool.MaxOpenConns)
}

// TestConnect_UnsupportedDriver 测试不支持的驱动
func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := database.Connect(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

// TestConnect_SQLiteMigrate 测试 sqlite 连接与迁移
func TestConnect_SQLiteMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lms.db")
	db, err := database.ConnectWithRetry(config.DatabaseConfig{Driver: "sqlite", Path: path}, 2, 10*time.Millisecond)
	require.NoError(t, err)
	defer database.Close(db)

	require.NoError(t, database.Migrate(db))
	// 迁移可重复执行
	require.NoError(t, database.Migrate(db))

	for _, m := range database.Models() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
	assert.NoError(t, database.CheckHealth(context.Background(), db))
}

// TestMigrate_SingleActiveDeployment 测试同一资产只能有一条未归还领用
func TestMigrate_SingleActiveDeployment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lms.db")
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer database.Close(db)
	require.NoError(t, database.Migrate(db))

	first := &model.AssetDeploymentModel{ID: "d-1", AssetID: "a-1", EmployeeID: "E-1", BusinessUnitID: "bu", TransmittalNo: "T-1", Status: model.DeploymentDeployed}
	require.NoError(t, db.Create(first).Error)

	second := &model.AssetDeploymentModel{ID: "d-2", AssetID: "a-1", EmployeeID: "E-2", BusinessUnitID: "bu", TransmittalNo: "T-2", Status: model.DeploymentPendingAccounting}
	assert.Error(t, db.Create(second).Error)

	require.NoError(t, db.Model(first).Update("status", model.DeploymentReturned).Error)
	assert.NoError(t, db.Create(second).Error)
}

// TestCheckHealth_NilDB 测试空连接健康检查
func TestCheckHealth_NilDB(t *testing.T) {
	assert.Error(t, database.CheckHealth(context.Background(), nil))
}
