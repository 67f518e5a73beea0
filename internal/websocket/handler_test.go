package websocket_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, hub *websocket.Hub) *httptest.Server {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", websocket.WebSocketHandler(hub, auth.HeaderAuthenticator{}, websocket.NewUpgrader(nil), nil))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// TestWebSocketHandler_Unauthorized 测试缺少身份时拒绝连接
func TestWebSocketHandler_Unauthorized(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	server := newWSServer(t, hub)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	_, resp, err := gorillaWS.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestWebSocketHandler_ReceivesBroadcast 测试连接后收到任务事件
func TestWebSocketHandler_ReceivesBroadcast(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	server := newWSServer(t, hub)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?actor_id=user-1&actor_role=Annotator"

	conn, _, err := gorillaWS.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.BroadcastTask("task-1", []byte(`{"event":"task:update","data":{"id":"task-1"}}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"task:update","data":{"id":"task-1"}}`, string(msg))
}

// TestNewUpgrader_CheckOrigin 测试来源检查
func TestNewUpgrader_CheckOrigin(t *testing.T) {
	upgrader := websocket.NewUpgrader([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, upgrader.CheckOrigin(req))
}
