package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/test", func(c *gin.Context) {
		actor, _ := auth.ActorFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "role": actor.Role})
	})
	return router
}

// TestHeaderAuthenticator 测试请求头认证
func TestHeaderAuthenticator(t *testing.T) {
	authn := auth.HeaderAuthenticator{}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(auth.HeaderActorID, "user-1")
	req.Header.Set(auth.HeaderActorRole, "reviewer")
	actor, err := authn.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: "user-1", Role: model.RoleReviewer}, actor)

	// query 参数
	req = httptest.NewRequest(http.MethodGet, "/sse/tasks?actor_id=user-2&actor_role=Admin", nil)
	actor, err = authn.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, actor.Role)

	// 未知角色
	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(auth.HeaderActorID, "user-1")
	req.Header.Set(auth.HeaderActorRole, "owner")
	_, err = authn.Authenticate(req)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

// TestAuthMiddleware_MissingIdentity 测试缺少身份
func TestAuthMiddleware_MissingIdentity(t *testing.T) {
	router := newRouter(auth.AuthMiddleware(auth.HeaderAuthenticator{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRequireRoles 测试角色检查
func TestRequireRoles(t *testing.T) {
	router := newRouter(auth.AuthMiddleware(auth.HeaderAuthenticator{}), auth.RequireRoles(model.RoleAdmin))

	tests := []struct {
		role string
		code int
	}{
		{"Admin", http.StatusOK},
		{"Reviewer", http.StatusForbidden},
		{"Annotator", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(auth.HeaderActorID, "user-1")
		req.Header.Set(auth.HeaderActorRole, tt.role)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tt.code, w.Code, tt.role)
	}
}

// TestNewAuthenticator 测试根据模式创建认证器
func TestNewAuthenticator(t *testing.T) {
	authn, err := auth.NewAuthenticator(auth.ModeHeader, "")
	require.NoError(t, err)
	assert.IsType(t, auth.HeaderAuthenticator{}, authn)

	_, err = auth.NewAuthenticator(auth.ModeKeycloak, "")
	assert.Error(t, err)

	_, err = auth.NewAuthenticator("ldap", "")
	assert.Error(t, err)
}
