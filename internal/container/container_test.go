package container_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/mautops/rdrealty-lms/internal/container"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig 使用临时 sqlite 文件的配置
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "lms.db")
	cfg.Auth.JWTSecret = "container-test-secret"
	cfg.RateLimit.Enabled = false
	cfg.Depreciation.Enabled = false
	return cfg
}

func health(t *testing.T, router *gin.Engine) map[string]interface{} {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// TestContainer_WithRedis 启用 Redis 时计数缓存走 Redis 并纳入健康检查
func TestContainer_WithRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	logger, _ := test.NewNullLogger()

	ctr, err := container.NewContainer(context.Background(), cfg, "", logger)
	require.NoError(t, err)
	defer ctr.Close()
	require.NoError(t, ctr.Start(context.Background()))

	assert.NotNil(t, ctr.DB())
	assert.NotNil(t, ctr.Policy())
	assert.NotNil(t, ctr.Depreciation())

	body := health(t, ctr.Router())
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "healthy", checks["redis"])
}

// TestContainer_RedisUnavailable Redis 不可用时退回进程内缓存
func TestContainer_RedisUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	logger, hook := test.NewNullLogger()

	ctr, err := container.NewContainer(context.Background(), cfg, "", logger)
	require.NoError(t, err)
	defer ctr.Close()

	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "redis unavailable")

	checks := health(t, ctr.Router())["checks"].(map[string]interface{})
	assert.NotContains(t, checks, "redis")
}

// TestContainer_RequiresJWTSecret 未配置签名密钥时拒绝启动
func TestContainer_RequiresJWTSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	logger, _ := test.NewNullLogger()

	_, err := container.NewContainer(context.Background(), cfg, "", logger)
	assert.Error(t, err)
}
