package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	identities map[string]*auth.Identity
	err        error
}

func (s *stubLookup) LookupIdentity(_ context.Context, employeeID string) (*auth.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identities[employeeID], nil
}

func newValidator(t *testing.T) *auth.TokenValidator {
	v, err := auth.NewTokenValidator("test-secret", "rdrealty-lms")
	require.NoError(t, err)
	return v
}

// TestTokenValidator_RoundTrip 测试签发与验证
func TestTokenValidator_RoundTrip(t *testing.T) {
	v := newValidator(t)
	token, err := v.IssueToken("E-100", "Ana", auth.RoleManager, "bu-1", time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "E-100", claims.Subject)
	assert.Equal(t, "MANAGER", claims.Role)
	assert.Equal(t, "bu-1", claims.BusinessUnitID)
}

// TestTokenValidator_Rejects 测试非法令牌
func TestTokenValidator_Rejects(t *testing.T) {
	v := newValidator(t)

	expired, err := v.IssueToken("E-100", "Ana", auth.RoleUser, "bu-1", -time.Minute)
	require.NoError(t, err)
	_, err = v.ValidateToken(expired)
	assert.Error(t, err)

	other, _ := auth.NewTokenValidator("another-secret", "rdrealty-lms")
	forged, err := other.IssueToken("E-100", "Ana", auth.RoleAdmin, "bu-1", time.Hour)
	require.NoError(t, err)
	_, err = v.ValidateToken(forged)
	assert.Error(t, err)

	wrongIssuer, _ := auth.NewTokenValidator("test-secret", "someone-else")
	token, err := wrongIssuer.IssueToken("E-100", "Ana", auth.RoleUser, "bu-1", time.Hour)
	require.NoError(t, err)
	_, err = v.ValidateToken(token)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "E-100", "iss": "rdrealty-lms", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.ValidateToken(unsigned)
	assert.Error(t, err)

	_, err = auth.NewTokenValidator("", "x")
	assert.Error(t, err)
}

// TestResolveActor 测试由令牌与员工记录构造操作人
func TestResolveActor(t *testing.T) {
	policy := auth.NewPolicy(config.Default().Policy)
	claims := &auth.Claims{Role: "USER", BusinessUnitID: "bu-token"}
	claims.Subject = "E-1"

	actor, err := auth.ResolveActor(context.Background(), claims, policy, nil)
	require.NoError(t, err)
	assert.Equal(t, "bu-token", actor.BusinessUnitID)

	lookup := &stubLookup{identities: map[string]*auth.Identity{
		"E-1": {EmployeeID: "E-1", Role: auth.RoleAcctg, BusinessUnitID: "bu-db", IsRDHMRS: true},
	}}
	actor, err = auth.ResolveActor(context.Background(), claims, policy, lookup)
	require.NoError(t, err)
	assert.Equal(t, "bu-db", actor.BusinessUnitID)
	assert.True(t, actor.IsRDHMRS)
	assert.True(t, actor.Has(auth.CapMRSPost))

	claims.Subject = "E-404"
	_, err = auth.ResolveActor(context.Background(), claims, policy, lookup)
	assert.Error(t, err)

	_, err = auth.ResolveActor(context.Background(), claims, policy, &stubLookup{err: errors.New("db down")})
	assert.Error(t, err)
}

// TestAuthMiddleware 测试认证中间件
func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := newValidator(t)
	policy := auth.NewPolicy(config.Default().Policy)

	router := gin.New()
	router.Use(auth.AuthMiddleware(v, policy, nil))
	router.GET("/me", func(c *gin.Context) {
		actor, ok := auth.ActorFromContext(c.Request.Context())
		require.True(t, ok)
		c.String(http.StatusOK, actor.EmployeeID)
	})
	router.POST("/run", auth.RequireCapability(auth.CapAssetAccounting), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _ := v.IssueToken("E-7", "Ben", auth.RoleUser, "bu-1", time.Hour)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "E-7", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	acctg, _ := v.IssueToken("E-8", "Cy", auth.RoleAcctg, "bu-1", time.Hour)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer "+acctg)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type fakeRelations struct {
	tuples map[string]bool
	checks int
}

func (f *fakeRelations) key(user, relation, objectType, objectID string) string {
	return user + "#" + relation + "@" + objectType + ":" + objectID
}

func (f *fakeRelations) CheckPermission(_ context.Context, user, relation, objectType, objectID string) (bool, error) {
	f.checks++
	return f.tuples[f.key(user, relation, objectType, objectID)], nil
}

func (f *fakeRelations) SetRelation(_ context.Context, user, relation, objectType, objectID string) error {
	f.tuples[f.key(user, relation, objectType, objectID)] = true
	return nil
}

func (f *fakeRelations) DeleteRelation(_ context.Context, user, relation, objectType, objectID string) error {
	delete(f.tuples, f.key(user, relation, objectType, objectID))
	return nil
}

// TestOpenFGAGrantStore 测试基于关系元组的授权存储与缓存
func TestOpenFGAGrantStore(t *testing.T) {
	ctx := context.Background()
	rel := &fakeRelations{tuples: map[string]bool{}}
	store := auth.NewOpenFGAGrantStore(rel, auth.NewPermissionCache(time.Minute))

	ok, err := store.HasGrant(ctx, "E-1", auth.CapBudgetApprove, "bu-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// 第二次命中缓存
	_, _ = store.HasGrant(ctx, "E-1", auth.CapBudgetApprove, "bu-1")
	assert.Equal(t, 1, rel.checks)

	require.NoError(t, store.Grant(ctx, "E-1", auth.CapBudgetApprove, "bu-1"))
	ok, err = store.HasGrant(ctx, "E-1", auth.CapBudgetApprove, "bu-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Revoke(ctx, "E-1", auth.CapBudgetApprove, "bu-1"))
	ok, _ = store.HasGrant(ctx, "E-1", auth.CapBudgetApprove, "bu-1")
	assert.False(t, ok)

	// 接入策略后生效
	require.NoError(t, store.Grant(ctx, "E-1", auth.CapMRSPost, "bu-1"))
	policy := auth.NewPolicy(config.PolicyConfig{})
	policy.SetGrantStore(store)
	actor := policy.NewActor(ctx, auth.Identity{EmployeeID: "E-1", Role: auth.RoleUser, BusinessUnitID: "bu-1"})
	assert.True(t, actor.Has(auth.CapMRSPost))
	assert.False(t, actor.Has(auth.CapBudgetApprove))
}
