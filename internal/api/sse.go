package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/websocket"
	"github.com/sirupsen/logrus"
)

// sseHeartbeat 心跳间隔,防止代理关闭空闲连接
const sseHeartbeat = 30 * time.Second

// SSEHandler SSE 处理器
// 与 WebSocket 共用 Hub,路径带任务 ID 时只推送该任务的快照
func SSEHandler(hub *websocket.Hub, authn auth.Authenticator, logger logrus.FieldLogger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(c *gin.Context) {
		// 1. 认证,EventSource 无法设置请求头,token 通过 query 参数传递
		actor, err := authn.Authenticate(c.Request)
		if err != nil {
			Error(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		// 2. 获取 Flusher
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			Error(c, http.StatusInternalServerError, "streaming not supported", "")
			return
		}

		// 3. 注册到 Hub
		taskID := c.Param("id")
		client := websocket.NewStreamClient(uuid.New().String(), actor.ID, taskID, hub)
		if !hub.Join(client) {
			Error(c, http.StatusServiceUnavailable, "push channel stopped", "")
			return
		}
		defer hub.Leave(client)

		// 4. 设置 SSE 响应头
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		// 5. 发送连接消息
		hello, _ := json.Marshal(gin.H{
			"event":  "connected",
			"taskId": taskID,
			"userId": actor.ID,
			"time":   time.Now().Unix(),
		})
		if err := writeSSE(c.Writer, "connected", hello); err != nil {
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(sseHeartbeat)
		defer ticker.Stop()

		// 6. 持续推送,直到客户端断开或 Hub 关闭
		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
				if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case message, ok := <-client.Send:
				if !ok {
					return
				}
				if err := writeSSE(c.Writer, "task:update", message); err != nil {
					logger.WithError(err).WithField("client_id", client.ID).Debug("SSE write failed")
					return
				}
				flusher.Flush()
			}
		}
	}
}

// writeSSE 写入一条 SSE 消息: event: <name>\ndata: <json>\n\n
func writeSSE(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
