package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/auth"
)

// currentActor 读取认证中间件写入的操作人
func currentActor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(c.Request.Context())
	if !ok {
		Error(c, http.StatusUnauthorized, "unauthorized", "missing actor")
		return auth.Actor{}, false
	}
	return actor, true
}

// bindJSON 绑定请求体
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	return true
}

// bindOptionalJSON 绑定可选请求体, 空请求体视为零值
func bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	return true
}

// respond 服务调用结果转换为响应
func respond(c *gin.Context, message string, data interface{}, err error) {
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessWithMessage(c, message, data)
}

// commentsBody 审批意见
type commentsBody struct {
	Comments string `json:"comments"`
}

// remarksBody 处理备注
type remarksBody struct {
	Remarks string `json:"remarks"`
}
