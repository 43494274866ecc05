package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/api"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/cache"
	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/service"
	"github.com/mautops/rdrealty-lms/internal/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router    *gin.Engine
	validator *auth.TokenValidator
}

// setupTestAPIServer 以内存库和真实服务组装路由
func setupTestAPIServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	testutil.SeedBusinessUnit(t, db, "bu-1", "HO")
	testutil.SeedUser(t, db, "U0", auth.RoleUser, "bu-1", testutil.WithApprover("U1"))
	testutil.SeedUser(t, db, "U1", auth.RoleManager, "bu-1")
	testutil.SeedUser(t, db, "C-100", auth.RolePurchaser, "bu-1")
	testutil.SeedUser(t, db, "H-1", auth.RoleHR, "bu-1")

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	logger, _ := test.NewNullLogger()

	validator, err := auth.NewTokenValidator("test-secret", "rdrealty-lms")
	require.NoError(t, err)

	policy := auth.NewPolicy(cfg.Policy)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	counters := service.NewCounterService(db, policy, cache.NewMemoryStore(), time.Minute, nil, logger)

	router := api.SetupRoutes(api.RouteDeps{
		Config:           cfg,
		Logger:           logger,
		DB:               db,
		Validator:        validator,
		Policy:           policy,
		Lookup:           repository.NewUserRepository(db),
		MaterialRequests: api.NewMaterialRequestController(service.NewMaterialRequestService(db, policy, audit, counters, logger)),
		HRRequests:       api.NewHRRequestController(service.NewHRRequestService(db, policy, audit, counters, logger)),
		Assets: api.NewAssetController(
			service.NewAssetService(db, audit, counters, logger),
			service.NewDepreciationService(db, audit, counters, logger),
		),
		Verifications: api.NewVerificationController(service.NewVerificationService(db, audit, counters, logger)),
		Dashboard:     api.NewDashboardController(counters),
		Reports:       api.NewReportController(service.NewReportService(db)),
	})
	return &testServer{router: router, validator: validator}
}

func (s *testServer) token(t *testing.T, employeeID string, role auth.Role) string {
	t.Helper()
	token, err := s.validator.IssueToken(employeeID, "Employee "+employeeID, role, "bu-1", time.Hour)
	require.NoError(t, err)
	return token
}

// do 发送请求, body 为 nil 时不带请求体
func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// decodeData 读取统一响应中的 data 字段
func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Code    int                    `json:"code"`
		Success string                 `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	assert.Equal(t, 0, resp.Code)
	assert.NotEmpty(t, resp.Success)
	return resp.Data
}

// TestRoutes_RequiresToken 未携带令牌的业务接口返回 401
func TestRoutes_RequiresToken(t *testing.T) {
	s := setupTestAPIServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/dashboard/counters", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/dashboard/counters", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRoutes_UnknownEmployee 令牌有效但员工不存在
func TestRoutes_UnknownEmployee(t *testing.T) {
	s := setupTestAPIServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/dashboard/counters", s.token(t, "GHOST", auth.RoleUser), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRoutes_RequestIDHeader 透传请求 ID
func TestRoutes_RequestIDHeader(t *testing.T) {
	s := setupTestAPIServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(api.RequestIDHeader))

	w = s.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))
}

// TestRoutes_MaterialRequestFlow 创建, 提交, 审批, 释放, 送达
func TestRoutes_MaterialRequestFlow(t *testing.T) {
	s := setupTestAPIServer(t)
	requester := s.token(t, "U0", auth.RoleUser)
	approver := s.token(t, "U1", auth.RoleManager)
	coordinator := s.token(t, "C-100", auth.RolePurchaser)

	w := s.do(t, http.MethodPost, "/api/v1/material-requests", requester, map[string]interface{}{
		"purpose": "site repairs",
		"items": []map[string]interface{}{
			{"description": "Cement", "uom": "bag", "quantity": "10", "unit_price": "250"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeData(t, w)
	id := created["id"].(string)
	assert.Equal(t, "DRAFT", created["status"])
	assert.True(t, strings.HasPrefix(created["document_no"].(string), "MRS-HO-"))

	w = s.do(t, http.MethodPost, "/api/v1/material-requests/"+id+"/submit", requester, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "FOR_REC_APPROVAL", decodeData(t, w)["status"])

	// 申请人不能审批自己的申请
	w = s.do(t, http.MethodPost, "/api/v1/material-requests/"+id+"/approve", requester, map[string]string{"comments": "ok"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/material-requests/pending", approver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending.Data, 1)
	assert.Equal(t, id, pending.Data[0]["id"])

	w = s.do(t, http.MethodPost, "/api/v1/material-requests/"+id+"/approve", approver, map[string]string{"comments": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "FINAL_APPROVED", decodeData(t, w)["status"])

	// 已离开审批环节后再次审批视为无权限
	w = s.do(t, http.MethodPost, "/api/v1/material-requests/"+id+"/approve", approver, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/material-requests/"+id+"/release", coordinator, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "FOR_SERVING", decodeData(t, w)["status"])

	w = s.do(t, http.MethodPost, "/api/v1/material-requests/"+id+"/serve", coordinator, map[string]string{"remarks": "delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "FOR_POSTING", decodeData(t, w)["status"])

	w = s.do(t, http.MethodGet, "/api/v1/material-requests/"+id+"/history", requester, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Data, 5)
}

// TestRoutes_BudgetRequiresDecision within_budget 为必填
func TestRoutes_BudgetRequiresDecision(t *testing.T) {
	s := setupTestAPIServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/material-requests/missing/budget", s.token(t, "U1", auth.RoleManager), map[string]string{"remarks": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestRoutes_NotFound 不存在的申请返回 404
func TestRoutes_NotFound(t *testing.T) {
	s := setupTestAPIServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/material-requests/missing", s.token(t, "U0", auth.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not found", resp.Error)
}

// TestRoutes_DepreciationRequiresCapability 计提接口要求资产会计能力
func TestRoutes_DepreciationRequiresCapability(t *testing.T) {
	s := setupTestAPIServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/assets/depreciation/run", s.token(t, "U0", auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestRoutes_LeaveReportCSV HR 导出请假报表
func TestRoutes_LeaveReportCSV(t *testing.T) {
	s := setupTestAPIServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/leave-requests", s.token(t, "U0", auth.RoleUser), map[string]interface{}{
		"leave_type": "VACATION",
		"start_date": "2026-03-02T00:00:00Z",
		"end_date":   "2026-03-04T00:00:00Z",
		"reason":     "family trip",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	hr := s.token(t, "H-1", auth.RoleHR)
	w = s.do(t, http.MethodGet, "/api/v1/reports/leave?format=csv&from=2026-03-01&to=2026-03-31", hr, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "leave_20260301_20260331.csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\r\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `"Employee ID","Employee Name"`))
	assert.True(t, strings.HasPrefix(lines[1], `"U0","Employee U0","VACATION","2026-03-02","2026-03-04"`))

	w = s.do(t, http.MethodGet, "/api/v1/reports/leave?from=2026-03-01&to=2026-03-31", s.token(t, "U0", auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/reports/leave?from=bad&to=2026-03-31", hr, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/reports/payroll?from=2026-03-01&to=2026-03-31", hr, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestHandleServiceError 错误类别到状态码
func TestHandleServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("asset a-1: %w", service.ErrNotFound), http.StatusNotFound},
		{"unauthorized", fmt.Errorf("%w: not the approver", service.ErrUnauthorized), http.StatusForbidden},
		{"validation", fmt.Errorf("%w: items required", service.ErrValidation), http.StatusBadRequest},
		{"invalid state", fmt.Errorf("%w: already posted", service.ErrInvalidState), http.StatusConflict},
		{"conflict", service.ErrConflict, http.StatusConflict},
		{"partial", &service.PartialStateError{Reasons: map[string]string{"a-1": "DEPLOYED"}}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, api.StatusFor(tt.err))

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			api.HandleServiceError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

// TestHandleServiceError_PartialState 部分状态错误列出每个记录的原因
func TestHandleServiceError_PartialState(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	api.HandleServiceError(c, &service.PartialStateError{Reasons: map[string]string{
		"a-2": "not deployed to E-1",
		"a-1": "DISPOSED",
	}})

	var body struct {
		Invalid []string          `json:"invalid"`
		Reasons map[string]string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"a-1", "a-2"}, body.Invalid)
	assert.Equal(t, "DISPOSED", body.Reasons["a-1"])

	// 内部错误不泄露细节
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	api.HandleServiceError(c, errors.New("pq: connection refused"))
	assert.NotContains(t, w.Body.String(), "pq:")
}

// TestErrorHandlerMiddleware c.Error 记录的错误写成统一响应
func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.ErrorHandlerMiddleware())
	router.GET("/api-error", func(c *gin.Context) {
		_ = c.Error(api.WrapError(errors.New("bad id"), http.StatusBadRequest, "invalid request"))
	})
	router.GET("/service-error", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("%w: stale", service.ErrConflict))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-error", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bad id")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/service-error", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}
