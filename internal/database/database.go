package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/mautops/rdrealty-lms/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置, 未配置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pool := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pool.MaxIdleConns == 0 {
		pool.MaxIdleConns = 10
	}
	if pool.MaxOpenConns == 0 {
		pool.MaxOpenConns = 100
	}
	if pool.ConnMaxLifetime == 0 {
		pool.ConnMaxLifetime = 3600
	}
	if pool.ConnMaxIdleTime == 0 {
		pool.ConnMaxIdleTime = 600
	}
	return pool
}

// dialector 根据配置选择数据库驱动
func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(BuildDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// sqlite 只允许单写连接
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Models 返回需要迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&model.BusinessUnitModel{},
		&model.DepartmentModel{},
		&model.UserModel{},
		&model.MaterialRequestModel{},
		&model.MaterialRequestItemModel{},
		&model.AssetModel{},
		&model.AssetDeploymentModel{},
		&model.AssetHistoryModel{},
		&model.InventoryVerificationModel{},
		&model.VerificationItemModel{},
		&model.LeaveRequestModel{},
		&model.OvertimeRequestModel{},
		&model.StateHistoryModel{},
		&model.AuditLogModel{},
	}
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// indexStatements 组合索引与部分唯一索引, postgres 与 sqlite 语法通用
var indexStatements = []struct {
	name string
	sql  string
}{
	{"idx_mr_bu_status", "CREATE INDEX IF NOT EXISTS idx_mr_bu_status ON material_requests(business_unit_id, status)"},
	{"idx_mr_rec_status", "CREATE INDEX IF NOT EXISTS idx_mr_rec_status ON material_requests(rec_approver_id, status)"},
	{"idx_mr_final_status", "CREATE INDEX IF NOT EXISTS idx_mr_final_status ON material_requests(final_approver_id, status)"},
	{"idx_deployments_asset_status", "CREATE INDEX IF NOT EXISTS idx_deployments_asset_status ON asset_deployments(asset_id, status)"},
	// 每个资产最多一条未归还的领用记录
	{"uq_deployments_active_asset", "CREATE UNIQUE INDEX IF NOT EXISTS uq_deployments_active_asset ON asset_deployments(asset_id) WHERE status <> 'RETURNED'"},
	{"idx_assets_depreciation_due", "CREATE INDEX IF NOT EXISTS idx_assets_depreciation_due ON assets(is_fully_depreciated, next_depreciation_date)"},
	{"idx_vitems_verification_status", "CREATE INDEX IF NOT EXISTS idx_vitems_verification_status ON verification_items(verification_id, status)"},
	{"idx_leave_bu_status", "CREATE INDEX IF NOT EXISTS idx_leave_bu_status ON leave_requests(business_unit_id, status)"},
	{"idx_overtime_bu_status", "CREATE INDEX IF NOT EXISTS idx_overtime_bu_status ON overtime_requests(business_unit_id, status)"},
	{"idx_audit_created_at", "CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at)"},
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	for _, stmt := range indexStatements {
		if err := db.Exec(stmt.sql).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_users_permissions_gin ON users USING GIN (permissions)").Error; err != nil {
			return fmt.Errorf("failed to create idx_users_permissions_gin: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
