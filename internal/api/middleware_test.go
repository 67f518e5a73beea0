package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/api"
	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware...)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": c.GetString("request_id")})
	})
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestCORSMiddleware 测试允许的源和预检请求
func TestCORSMiddleware(t *testing.T) {
	router := newTestRouter(api.CORSMiddleware([]string{"http://localhost:3000"}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Actor-Role")

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	w = serve(router, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = serve(router, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

// TestCORSMiddleware_AllowAll 测试允许所有源时不携带 credentials
func TestCORSMiddleware_AllowAll(t *testing.T) {
	router := newTestRouter(api.CORSMiddleware([]string{"*"}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://any.example.com")
	w := serve(router, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

// TestRateLimitMiddleware 测试超过突发量后返回 429
func TestRateLimitMiddleware(t *testing.T) {
	router := newTestRouter(api.RateLimitMiddleware(1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		codes = append(codes, serve(router, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他客户端不受影响
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, serve(router, req).Code)
}

// TestRequestIDMiddleware 测试生成和透传请求 ID
func TestRequestIDMiddleware(t *testing.T) {
	router := newTestRouter(api.RequestIDMiddleware())

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	generated := w.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.Contains(t, w.Body.String(), generated)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = serve(router, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

// TestRequestLogMiddleware 测试请求日志字段
func TestRequestLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	router := newTestRouter(api.RequestIDMiddleware(), api.RequestLogMiddleware(log))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "req-log")
	serve(router, req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-log", entry["request_id"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
}

// TestSecurityHeadersMiddleware 测试安全头
func TestSecurityHeadersMiddleware(t *testing.T) {
	w := serve(newTestRouter(api.SecurityHeadersMiddleware(false)), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = serve(newTestRouter(api.SecurityHeadersMiddleware(true)), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

// TestStatusFor 测试错误到状态码的映射
func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: held by b", lifecycle.ErrLockConflict), http.StatusLocked},
		{lifecycle.ErrIllegalTransition, http.StatusConflict},
		{lifecycle.ErrNotFound, http.StatusNotFound},
		{lifecycle.ErrInvalidArgument, http.StatusBadRequest},
		{lifecycle.ErrProviderFailure, http.StatusBadGateway},
		{lifecycle.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{service.ErrUploadUnavailable, http.StatusServiceUnavailable},
		{utils.ErrEmptyID, http.StatusBadRequest},
		{api.WrapError(errors.New("x"), http.StatusTeapot, "teapot"), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code, _ := api.StatusFor(tt.err)
			assert.Equal(t, tt.want, code)
		})
	}
}

// TestErrorHandlerMiddleware 测试处理器记录的错误被统一响应
func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	router := gin.New()
	router.Use(api.ErrorHandlerMiddleware(log))
	router.GET("/locked", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("%w: task t1", lifecycle.ErrLockConflict))
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/locked", nil))
	assert.Equal(t, http.StatusLocked, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusLocked, resp.Code)
	assert.Contains(t, resp.Detail, "task t1")
}

// TestNewLoggerFromConfig 测试日志配置
func TestNewLoggerFromConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "annotara.log")
	log, err := api.NewLoggerFromConfig(&config.LogConfig{Level: "warn", Format: "json", Output: "file", File: file})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	api.SetLogLevel(log, "not-a-level")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	assert.Equal(t, logrus.InfoLevel, api.NewLogger().GetLevel())
}
