package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 读超时时间
	pongWait = 60 * time.Second

	// ping 周期 (必须小于 pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送控制帧
	maxMessageSize = 4 * 1024

	// 每个客户端的发送缓冲
	sendBufferSize = 256
)

// Client 推送客户端
// Conn 为空时是 SSE 客户端,由 HTTP 处理器直接读取 Send
type Client struct {
	// ID 客户端 ID
	ID string

	// UserID 用户 ID
	UserID string

	// TaskID 只订阅该任务,为空时订阅全部任务
	TaskID string

	// Hub Hub 实例
	Hub *Hub

	// Conn WebSocket 连接
	Conn *websocket.Conn

	// Send 发送消息的 channel
	Send chan []byte

	logger logrus.FieldLogger
}

// NewClient 创建新的 WebSocket 客户端
func NewClient(id string, userID string, taskID string, hub *Hub, conn *websocket.Conn, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		ID:     id,
		UserID: userID,
		TaskID: taskID,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		logger: logger.WithFields(logrus.Fields{"client_id": id, "user_id": userID}),
	}
}

// NewStreamClient 创建 SSE 客户端
func NewStreamClient(id string, userID string, taskID string, hub *Hub) *Client {
	return NewClient(id, userID, taskID, hub, nil, nil)
}

// Wants 判断客户端是否订阅该任务
func (c *Client) Wants(taskID string) bool {
	return c.TaskID == "" || c.TaskID == taskID
}

// ReadPump 从 WebSocket 连接读取消息,只用于检测断开
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket closed unexpectedly")
			}
			break
		}
	}
}

// WritePump 向 WebSocket 连接写入消息,每个事件一帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了 channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WithError(err).Debug("WebSocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
