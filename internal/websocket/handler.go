package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/sirupsen/logrus"
)

// Handler WebSocket 处理器依赖
type Handler struct {
	Hub       *Hub
	Validator *auth.TokenValidator
	Policy    *auth.Policy
	Lookup    auth.IdentityLookup
	Logger    *logrus.Logger
	// AllowedOrigins 为空时不检查 Origin
	AllowedOrigins []string
}

func (h *Handler) upgrader() gorillaWS.Upgrader {
	return gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(h.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range h.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// WebSocketHandler WebSocket 处理器, 通过 query 参数 token 认证
func WebSocketHandler(h *Handler) gin.HandlerFunc {
	upgrader := h.upgrader()
	return func(c *gin.Context) {
		// 1. 从 query 参数获取 token
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "error": "missing token"})
			return
		}

		// 2. 验证 token
		claims, err := h.Validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "error": "invalid token"})
			return
		}

		// 3. 以员工记录上的业务单元为准
		actor, err := auth.ResolveActor(c.Request.Context(), claims, h.Policy, h.Lookup)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "error": "unknown user"})
			return
		}

		// 4. 升级连接, 失败时 upgrader 已写入响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		// 5. 创建并注册客户端
		client := NewClient(uuid.New().String(), actor.EmployeeID, actor.BusinessUnitID, h.Hub, conn, h.Logger)
		h.Hub.Register <- client

		// 6. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
