package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rithindattag/Annotara/internal/api"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/fanout"
	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/repository"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/storage"
	"github.com/rithindattag/Annotara/internal/suggestion"
	"github.com/rithindattag/Annotara/internal/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	annotator = model.Actor{ID: "annotator-a", Role: model.RoleAnnotator}
	other     = model.Actor{ID: "annotator-b", Role: model.RoleAnnotator}
	reviewer  = model.Actor{ID: "reviewer-r", Role: model.RoleReviewer}
	admin     = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
)

type memoryUploader struct{}

func (memoryUploader) Upload(_ context.Context, name string, _ string, _ int64, body io.Reader) (*storage.Object, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return nil, err
	}
	key := "1700000000000-" + name
	return &storage.Object{Key: key, URL: "https://media.example.com/" + key}, nil
}

type testServer struct {
	router *gin.Engine
	hub    *websocket.Hub
	db     *gorm.DB
}

func setupServer(t *testing.T, uploader storage.Uploader) *testServer {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.TaskModel{}, &model.AnnotationModel{}, &model.StateHistoryModel{}, &model.AuditLogModel{}))

	log := logrus.New()
	log.SetOutput(io.Discard)

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	fan := fanout.New(64, log, hub)
	fan.Start()
	t.Cleanup(fan.Stop)

	taskRepo := repository.NewTaskRepository(db)
	queryService := service.NewQueryService(taskRepo, repository.NewAnnotationRepository(db), repository.NewStateHistoryRepository(db))
	engine := lifecycle.NewEngine(repository.NewStore(db), fan, log)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	taskService := service.NewTaskService(engine, taskRepo, uploader, fan, audit, log)
	adapter := suggestion.NewAdapter(suggestion.NewMockProvider(), time.Second, log)

	cfg := config.Default()
	cfg.RateLimit.Enabled = false

	router := api.SetupRoutes(api.RouterDeps{
		Config:            cfg,
		Logger:            log,
		DB:                db,
		Hub:               hub,
		Authenticator:     auth.HeaderAuthenticator{},
		TaskService:       taskService,
		QueryService:      queryService,
		SuggestionService: service.NewSuggestionService(taskRepo, adapter, log),
	})
	return &testServer{router: router, hub: hub, db: db}
}

func (s *testServer) do(t *testing.T, actor *model.Actor, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(auth.HeaderActorID, actor.ID)
		req.Header.Set(auth.HeaderActorRole, string(actor.Role))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type taskEnvelope struct {
	Code int `json:"code"`
	Data struct {
		Task        model.TaskModel          `json:"task"`
		Annotations []*model.AnnotationModel `json:"annotations"`
	} `json:"data"`
}

func decodeTask(t *testing.T, w *httptest.ResponseRecorder) taskEnvelope {
	var resp taskEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (s *testServer) createTask(t *testing.T, assignedTo *string) model.TaskModel {
	w := s.do(t, &admin, http.MethodPost, "/api/v1/tasks", gin.H{
		"fileName":   "street.jpg",
		"fileType":   "image/jpeg",
		"fileSize":   2048,
		"storageKey": "1700000000000-street.jpg",
		"assignedTo": assignedTo,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeTask(t, w).Data.Task
}

// TestAPI_Unauthorized 测试缺少身份
func TestAPI_Unauthorized(t *testing.T) {
	s := setupServer(t, nil)

	w := s.do(t, nil, http.MethodGet, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, &model.Actor{ID: "x", Role: "Guest"}, http.MethodGet, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestAPI_ReviewFlow 测试领取、冲突、提交、审核的 HTTP 状态码
func TestAPI_ReviewFlow(t *testing.T) {
	s := setupServer(t, nil)
	task := s.createTask(t, nil)
	base := "/api/v1/tasks/" + task.ID

	w := s.do(t, &annotator, http.MethodPost, base+"/lock", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	locked := decodeTask(t, w).Data.Task
	assert.Equal(t, model.TaskStatusInProgress, locked.Status)
	assert.Equal(t, annotator.ID, locked.HolderID())

	w = s.do(t, &other, http.MethodPost, base+"/lock", nil)
	assert.Equal(t, http.StatusLocked, w.Code)

	w = s.do(t, &other, http.MethodPost, base+"/unlock", nil)
	assert.Equal(t, http.StatusLocked, w.Code)

	w = s.do(t, &other, http.MethodPost, "/api/v1/annotations/"+task.ID, gin.H{
		"annotations": []json.RawMessage{json.RawMessage(`{"label":"car"}`)},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, &annotator, http.MethodPost, "/api/v1/annotations/"+task.ID, gin.H{
		"annotations": []json.RawMessage{
			json.RawMessage(`{"x":1,"y":2,"width":3,"height":4,"label":"car"}`),
			json.RawMessage(`{"x":5,"y":6,"width":7,"height":8,"label":"tree"}`),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submitted := decodeTask(t, w)
	assert.Equal(t, model.TaskStatusAwaitingReview, submitted.Data.Task.Status)
	assert.Len(t, submitted.Data.Annotations, 2)

	w = s.do(t, &annotator, http.MethodPost, "/api/v1/annotations/"+task.ID+"/review", gin.H{"decision": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, &reviewer, http.MethodPost, "/api/v1/annotations/"+task.ID+"/review", gin.H{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, &reviewer, http.MethodPost, "/api/v1/annotations/"+task.ID+"/review", gin.H{"decision": "rejected", "notes": " missing bike "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := decodeTask(t, w).Data.Task
	assert.Equal(t, model.TaskStatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewNotes)
	assert.Equal(t, "missing bike", *rejected.ReviewNotes)

	w = s.do(t, &reviewer, http.MethodPost, "/api/v1/annotations/"+task.ID+"/review", gin.H{"decision": "approved"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, &annotator, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeTask(t, w).Data.Annotations, 2)

	w = s.do(t, &annotator, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Data struct {
			History []*model.StateHistoryModel `json:"history"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Data.History, 3)
}

// TestAPI_SubmitRequiresAnnotationsKey 测试缺少 annotations 字段时不会清空已有标注
func TestAPI_SubmitRequiresAnnotationsKey(t *testing.T) {
	s := setupServer(t, nil)
	task := s.createTask(t, nil)
	base := "/api/v1/tasks/" + task.ID
	submit := "/api/v1/annotations/" + task.ID

	w := s.do(t, &annotator, http.MethodPost, base+"/lock", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, &annotator, http.MethodPost, submit, gin.H{
		"annotations": []json.RawMessage{json.RawMessage(`{"label":"car"}`)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, &reviewer, http.MethodPost, submit+"/review", gin.H{"decision": "rejected"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, &annotator, http.MethodPost, base+"/lock", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, &annotator, http.MethodPost, submit, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, &annotator, http.MethodPost, submit, gin.H{"annotations": nil})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, &annotator, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	current := decodeTask(t, w).Data
	assert.Equal(t, model.TaskStatusInProgress, current.Task.Status)
	assert.Len(t, current.Annotations, 1)

	// 显式的空数组清空标注集合
	w = s.do(t, &annotator, http.MethodPost, submit, gin.H{"annotations": []json.RawMessage{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submitted := decodeTask(t, w).Data
	assert.Equal(t, model.TaskStatusAwaitingReview, submitted.Task.Status)
	assert.Empty(t, submitted.Annotations)
}

// TestAPI_NotFoundAndInvalidID 测试任务不存在和非法 ID
func TestAPI_NotFoundAndInvalidID(t *testing.T) {
	s := setupServer(t, nil)

	w := s.do(t, &annotator, http.MethodGet, "/api/v1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, &annotator, http.MethodPost, "/api/v1/tasks/missing/lock", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, &annotator, http.MethodGet, "/api/v1/tasks/bad%20id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// TestAPI_ListTasksByRole 测试按角色过滤列表
func TestAPI_ListTasksByRole(t *testing.T) {
	s := setupServer(t, nil)
	mine := annotator.ID
	theirs := other.ID
	s.createTask(t, nil)
	s.createTask(t, &mine)
	s.createTask(t, &theirs)

	tests := []struct {
		actor model.Actor
		want  int
	}{
		{actor: annotator, want: 2},
		{actor: reviewer, want: 0},
		{actor: admin, want: 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.actor.Role), func(t *testing.T) {
			w := s.do(t, &tt.actor, http.MethodGet, "/api/v1/tasks", nil)
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Data service.ListTasksResponse `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp.Data.Tasks, tt.want)
			assert.Equal(t, int64(tt.want), resp.Data.Total)
		})
	}
}

// TestAPI_AdminRoutes 测试管理员接口
func TestAPI_AdminRoutes(t *testing.T) {
	s := setupServer(t, nil)
	task := s.createTask(t, nil)

	w := s.do(t, &annotator, http.MethodPost, "/api/v1/admin/assign", gin.H{"taskId": task.ID, "userId": annotator.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, &admin, http.MethodPost, "/api/v1/admin/assign", gin.H{"taskId": task.ID, "userId": annotator.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assigned := decodeTask(t, w).Data.Task
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, annotator.ID, *assigned.AssignedTo)

	w = s.do(t, &reviewer, http.MethodPost, "/api/v1/tasks/"+task.ID+"/status", gin.H{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, &admin, http.MethodPost, "/api/v1/tasks/"+task.ID+"/status", gin.H{"status": "approved", "reason": "imported"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TaskStatusApproved, decodeTask(t, w).Data.Task.Status)

	w = s.do(t, &admin, http.MethodGet, "/api/v1/admin/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var export struct {
		Data service.ExportResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
	assert.Len(t, export.Data.Tasks, 1)

	w = s.do(t, &admin, http.MethodGet, "/api/v1/admin/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"approved":1`)
}

// TestAPI_Predict 测试预标注接口
func TestAPI_Predict(t *testing.T) {
	s := setupServer(t, nil)
	task := s.createTask(t, nil)

	w := s.do(t, &annotator, http.MethodPost, "/api/v1/ai/predict", gin.H{"taskId": task.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data suggestion.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, suggestion.MockModel, resp.Data.Model)
	assert.NotEmpty(t, resp.Data.Shapes)

	w = s.do(t, &annotator, http.MethodPost, "/api/v1/ai/predict", gin.H{"taskId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, &annotator, http.MethodPost, "/api/v1/ai/predict", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartUpload(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

// TestAPI_Upload 测试上传媒体
func TestAPI_Upload(t *testing.T) {
	s := setupServer(t, memoryUploader{})

	body, contentType := multipartUpload(t, "cat.png", []byte("png!"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.HeaderActorID, admin.ID)
	req.Header.Set(auth.HeaderActorRole, string(admin.Role))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decodeTask(t, w).Data.Task
	assert.Equal(t, "cat.png", task.FileName)
	assert.Equal(t, "1700000000000-cat.png", task.StorageKey)
	assert.Equal(t, model.TaskStatusPending, task.Status)
}

// TestAPI_UploadWithoutStorage 测试未配置对象存储时返回 503
func TestAPI_UploadWithoutStorage(t *testing.T) {
	s := setupServer(t, nil)

	body, contentType := multipartUpload(t, "cat.png", []byte("png!"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.HeaderActorID, admin.ID)
	req.Header.Set(auth.HeaderActorRole, string(admin.Role))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestAPI_Health 测试健康检查
func TestAPI_Health(t *testing.T) {
	s := setupServer(t, nil)

	w := s.do(t, nil, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestAPI_SSEReceivesTaskUpdate 测试 SSE 收到转换后的快照
func TestAPI_SSEReceivesTaskUpdate(t *testing.T) {
	s := setupServer(t, nil)
	task := s.createTask(t, nil)

	server := httptest.NewServer(s.router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	url := fmt.Sprintf("%s/sse/tasks/%s?actor_id=%s&actor_role=%s", server.URL, task.ID, reviewer.ID, reviewer.Role)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}

	event, _ := readEvent()
	require.Equal(t, "connected", event)

	w := s.do(t, &annotator, http.MethodPost, "/api/v1/tasks/"+task.ID+"/lock", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 创建任务时的初始快照可能晚于连接到达,跳过旧版本
	var update fanout.Event
	for i := 0; i < 3; i++ {
		event, data := readEvent()
		require.Equal(t, fanout.EventTaskUpdate, event)
		require.NoError(t, json.Unmarshal([]byte(data), &update))
		if update.Data != nil && update.Data.Version == 1 {
			break
		}
	}
	assert.Equal(t, fanout.EventTaskUpdate, update.Name)
	require.NotNil(t, update.Data)
	assert.Equal(t, task.ID, update.Data.ID)
	assert.Equal(t, model.TaskStatusInProgress, update.Data.Status)
	assert.Equal(t, int64(1), update.Data.Version)
}
