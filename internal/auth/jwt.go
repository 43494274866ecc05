package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims 访问令牌声明, sub 为员工编号
type Claims struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	BusinessUnitID string `json:"business_unit_id"`
	jwt.RegisteredClaims
}

// TokenValidator HS256 令牌验证器
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator 创建令牌验证器
func NewTokenValidator(secret string, issuer string) (*TokenValidator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenValidator{secret: []byte(secret), issuer: issuer}, nil
}

// Issuer 返回签发方
func (v *TokenValidator) Issuer() string {
	return v.issuer
}

// IssueToken 签发令牌
func (v *TokenValidator) IssueToken(employeeID, name string, role Role, businessUnitID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name:           name,
		Role:           string(role),
		BusinessUnitID: businessUnitID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ValidateToken 验证令牌
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

// IdentityLookup 根据员工编号读取身份信息, 员工不存在时返回 nil
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, employeeID string) (*Identity, error)
}

// ResolveActor 由令牌声明构造操作人, lookup 可为 nil
func ResolveActor(ctx context.Context, claims *Claims, policy *Policy, lookup IdentityLookup) (Actor, error) {
	id := &Identity{
		EmployeeID:     claims.Subject,
		Name:           claims.Name,
		Role:           ParseRole(claims.Role),
		BusinessUnitID: claims.BusinessUnitID,
	}

	if lookup != nil {
		stored, err := lookup.LookupIdentity(ctx, claims.Subject)
		if err != nil {
			return Actor{}, fmt.Errorf("failed to load employee: %w", err)
		}
		if stored == nil {
			return Actor{}, fmt.Errorf("unknown or inactive employee %s", claims.Subject)
		}
		id = stored
	}

	return policy.NewActor(ctx, *id), nil
}

// BearerToken 从 Authorization 头读取令牌
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return header
}

// AuthMiddleware JWT 认证中间件, 将 Actor 写入请求 context
func AuthMiddleware(validator *TokenValidator, policy *Policy, lookup IdentityLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  http.StatusUnauthorized,
				"error": "missing authorization header",
			})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":   http.StatusUnauthorized,
				"error":  "invalid token",
				"detail": err.Error(),
			})
			return
		}

		actor, err := ResolveActor(c.Request.Context(), claims, policy, lookup)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":   http.StatusUnauthorized,
				"error":  "unknown user",
				"detail": err.Error(),
			})
			return
		}

		c.Set("user_id", actor.EmployeeID)
		c.Set("business_unit_id", actor.BusinessUnitID)
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

// RequireCapability 要求操作人具备指定能力
func RequireCapability(capability Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  http.StatusUnauthorized,
				"error": "unauthorized",
			})
			return
		}
		if !actor.Has(capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":   http.StatusForbidden,
				"error":  "forbidden",
				"detail": "missing capability " + string(capability),
			})
			return
		}
		c.Next()
	}
}
