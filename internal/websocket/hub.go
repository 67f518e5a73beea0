package websocket

import (
	"errors"
	"sync"
)

// ErrHubStopped Hub 已停止
var ErrHubStopped = errors.New("hub stopped")

// message 待广播的任务事件
type message struct {
	taskID  string
	payload []byte
}

// Hub 管理所有推送连接(WebSocket 与 SSE)
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 广播任务事件
	broadcast chan message

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once

	// 互斥锁，保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 运行 Hub,直到 Stop 被调用
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			// 缓冲区已满的客户端被断开,重连后重新拉取任务状态
			h.mu.Lock()
			for client := range h.clients {
				if !client.Wants(msg.taskID) {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove 调用方需持有写锁
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// Stop 停止 Hub 并关闭所有客户端
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// BroadcastTask 广播任务事件,只投递给订阅了该任务或全部任务的客户端
func (h *Hub) BroadcastTask(taskID string, payload []byte) error {
	if h.stopped() {
		return ErrHubStopped
	}
	select {
	case <-h.done:
		return ErrHubStopped
	case h.broadcast <- message{taskID: taskID, payload: payload}:
		return nil
	}
}

// Join 注册客户端,Hub 停止后返回 false
func (h *Hub) Join(client *Client) bool {
	if h.stopped() {
		return false
	}
	select {
	case <-h.done:
		return false
	case h.Register <- client:
		return true
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Leave 注销客户端
func (h *Hub) Leave(client *Client) {
	select {
	case <-h.done:
	case h.Unregister <- client:
	}
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.ID == clientID {
			return true
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
