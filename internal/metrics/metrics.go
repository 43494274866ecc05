package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 物料申请创建数
	materialRequestsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "material_requests_created_total",
			Help: "Total number of material requests created",
		},
	)

	// 审批操作数
	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approvals_total",
			Help: "Total number of approval operations",
		},
		[]string{"action"}, // approve, reject, review, ...
	)

	// 资产归还
	assetReturnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_returns_total",
			Help: "Total number of asset return attempts",
		},
		[]string{"result"}, // returned, rejected
	)

	// 盘点扫描结果
	verificationScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_scans_total",
			Help: "Total number of inventory verification scans",
		},
		[]string{"result"}, // VERIFIED, DISCREPANCY, NOT_FOUND
	)

	// 折旧分录
	depreciationEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depreciation_entries_total",
			Help: "Total number of monthly depreciation entries posted",
		},
	)

	// 计数缓存失效
	cacheInvalidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of dashboard counter invalidations",
		},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 物料申请状态分布
	materialRequestsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "material_requests_by_status",
			Help: "Number of material requests by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(materialRequestsCreatedTotal)
	prometheus.MustRegister(approvalsTotal)
	prometheus.MustRegister(assetReturnsTotal)
	prometheus.MustRegister(verificationScansTotal)
	prometheus.MustRegister(depreciationEntriesTotal)
	prometheus.MustRegister(cacheInvalidationsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(materialRequestsByStatus)

	// Go 运行时指标只注册一次, 已注册时忽略错误
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordMaterialRequestCreated 记录物料申请创建
func RecordMaterialRequestCreated() {
	materialRequestsCreatedTotal.Inc()
}

// RecordApproval 记录审批操作
func RecordApproval(action string) {
	approvalsTotal.WithLabelValues(action).Inc()
}

// RecordAssetReturn 记录资产归还结果
func RecordAssetReturn(result string, n int) {
	assetReturnsTotal.WithLabelValues(result).Add(float64(n))
}

// RecordVerificationScan 记录盘点扫描结果
func RecordVerificationScan(result string) {
	verificationScansTotal.WithLabelValues(result).Inc()
}

// RecordDepreciationEntries 记录折旧分录数
func RecordDepreciationEntries(n int) {
	depreciationEntriesTotal.Add(float64(n))
}

// RecordCacheInvalidation 记录计数缓存失效
func RecordCacheInvalidation() {
	cacheInvalidationsTotal.Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateMaterialRequestsByStatus 更新物料申请状态分布指标
func UpdateMaterialRequestsByStatus(status string, count float64) {
	materialRequestsByStatus.WithLabelValues(status).Set(count)
}
