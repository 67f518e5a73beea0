package websocket_test

import (
	"testing"
	"time"

	"github.com/rithindattag/Annotara/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *websocket.Hub, id string, taskID string) *websocket.Client {
	return websocket.NewStreamClient(id, "user-"+id, taskID, hub)
}

// TestHub_Register 测试 Hub 注册客户端
func TestHub_Register(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	client := newTestClient(hub, "client-001", "")
	require.True(t, hub.Join(client))

	assert.Eventually(t, func() bool { return hub.HasClient(client.ID) }, time.Second, 10*time.Millisecond)
}

// TestHub_Unregister 测试 Hub 注销客户端
func TestHub_Unregister(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	client := newTestClient(hub, "client-001", "")
	require.True(t, hub.Join(client))
	hub.Leave(client)

	assert.Eventually(t, func() bool { return !hub.HasClient(client.ID) }, time.Second, 10*time.Millisecond)

	// Send 已关闭
	_, ok := <-client.Send
	assert.False(t, ok)
}

// TestHub_BroadcastTask 测试按任务过滤广播
func TestHub_BroadcastTask(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	all := newTestClient(hub, "all", "")
	scoped := newTestClient(hub, "scoped", "task-1")
	other := newTestClient(hub, "other", "task-2")
	for _, c := range []*websocket.Client{all, scoped, other} {
		require.True(t, hub.Join(c))
	}

	require.NoError(t, hub.BroadcastTask("task-1", []byte(`{"event":"task:update"}`)))

	for _, c := range []*websocket.Client{all, scoped} {
		select {
		case msg := <-c.Send:
			assert.JSONEq(t, `{"event":"task:update"}`, string(msg))
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive message", c.ID)
		}
	}

	select {
	case <-other.Send:
		t.Fatal("client subscribed to another task received message")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHub_SlowClientDisconnected 测试缓冲区满的客户端被断开
func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := newTestClient(hub, "slow", "")
	require.True(t, hub.Join(slow))

	for i := 0; i < cap(slow.Send)+1; i++ {
		require.NoError(t, hub.BroadcastTask("task-1", []byte(`{}`)))
	}

	assert.Eventually(t, func() bool { return !hub.HasClient(slow.ID) }, time.Second, 10*time.Millisecond)
}

// TestHub_Stop 测试停止后关闭所有客户端
func TestHub_Stop(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	client := newTestClient(hub, "client-001", "")
	require.True(t, hub.Join(client))
	hub.Stop()

	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, hub.BroadcastTask("task-1", []byte(`{}`)), websocket.ErrHubStopped)
	assert.False(t, hub.Join(newTestClient(hub, "late", "")))
}
