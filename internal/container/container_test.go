package container_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "annotara.db")
	cfg.Auth.Mode = auth.ModeHeader
	cfg.AI.Provider = "mock"
	cfg.Storage.Bucket = ""
	cfg.Fanout.NATSURL = ""
	cfg.Tracing.Enabled = false
	cfg.RateLimit.Enabled = false
	return cfg
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// TestContainer_NewContainer 测试使用 sqlite 创建完整容器
func TestContainer_NewContainer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ctr, err := container.NewContainer(context.Background(), testConfig(t), quietLogger())
	require.NoError(t, err)
	defer ctr.Close()

	assert.NotNil(t, ctr.DB())
	assert.NotNil(t, ctr.Engine())
	assert.NotNil(t, ctr.Hub())
	assert.NotNil(t, ctr.TaskService())
	assert.NotNil(t, ctr.QueryService())
	assert.NotNil(t, ctr.SuggestionService())

	router := ctr.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := []byte(`{"fileName":"cat.png","fileType":"image/png","storageKey":"uploads/cat.png"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderActorID, "alice")
	req.Header.Set(auth.HeaderActorRole, "annotator")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set(auth.HeaderActorID, "alice")
	req.Header.Set(auth.HeaderActorRole, "annotator")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uploads/cat.png")
}

// TestContainer_NewContainer_InvalidAuth 测试认证配置无效时返回错误
func TestContainer_NewContainer_InvalidAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Mode = "basic"

	ctr, err := container.NewContainer(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
	assert.Nil(t, ctr)
}

// TestContainer_NewContainer_Cancelled 测试上下文取消时不再重试连接
func TestContainer_NewContainer_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctr, err := container.NewContainer(ctx, cfg, quietLogger())
	assert.Error(t, err)
	assert.Nil(t, ctr)
}
