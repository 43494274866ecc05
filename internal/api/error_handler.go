package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/service"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 将 handler 中 c.Error 记录的错误写成统一响应
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			return
		}
		HandleServiceError(c, err)
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// errorStatuses 错误类别到 HTTP 状态码, 按顺序匹配
var errorStatuses = []struct {
	kind   error
	status int
}{
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrUnauthorized, http.StatusForbidden},
	{service.ErrValidation, http.StatusBadRequest},
	{service.ErrInvalidState, http.StatusConflict},
	{service.ErrConflict, http.StatusConflict},
	{service.ErrPartialState, http.StatusUnprocessableEntity},
}

// classify 返回错误类别及其状态码
func classify(err error) (error, int) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.kind) {
			return e.kind, e.status
		}
	}
	return nil, http.StatusInternalServerError
}

// StatusFor 服务层错误对应的 HTTP 状态码
func StatusFor(err error) int {
	_, status := classify(err)
	return status
}

// HandleServiceError 按错误类别输出响应; 部分状态错误附带每个资产的原因
func HandleServiceError(c *gin.Context, err error) {
	kind, status := classify(err)

	var partial *service.PartialStateError
	if errors.As(err, &partial) {
		c.JSON(status, gin.H{
			"code":    status,
			"error":   service.ErrPartialState.Error(),
			"detail":  err.Error(),
			"invalid": partial.Invalid(),
			"reasons": partial.Reasons,
		})
		return
	}

	if kind == nil {
		GetLogger().WithError(err).WithField("request_id", c.GetString("request_id")).Error("unhandled service error")
		Error(c, status, "internal server error", "")
		return
	}
	Error(c, status, kind.Error(), err.Error())
}
