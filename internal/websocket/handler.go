package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/sirupsen/logrus"
)

// NewUpgrader 创建连接升级器,allowedOrigins 为空或包含 "*" 时允许任意来源
func NewUpgrader(allowedOrigins []string) gorillaWS.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}
	return gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// WebSocketHandler WebSocket 处理器
// 浏览器无法设置请求头,token 可以通过 query 参数传递
func WebSocketHandler(hub *Hub, authn auth.Authenticator, upgrader gorillaWS.Upgrader, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 认证
		actor, err := authn.Authenticate(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unauthorized"})
			return
		}

		// 2. 升级连接
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade 已写入错误响应
			return
		}

		// 3. 创建客户端,可选只订阅单个任务
		client := NewClient(uuid.New().String(), actor.ID, c.Query("task_id"), hub, conn, logger)

		// 4. 注册客户端
		if !hub.Join(client) {
			conn.Close()
			return
		}

		// 5. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
