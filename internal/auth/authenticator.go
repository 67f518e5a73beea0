package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rithindattag/Annotara/internal/model"
)

const (
	// ModeKeycloak 通过 Keycloak JWT 认证
	ModeKeycloak = "keycloak"
	// ModeHeader 信任上游网关注入的身份头,仅用于开发和内网部署
	ModeHeader = "header"

	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"
)

// ErrUnauthenticated 缺少或无效的身份信息
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator 从请求中解析调用方身份
type Authenticator interface {
	Authenticate(r *http.Request) (model.Actor, error)
}

// KeycloakAuthenticator 基于 Keycloak Token 的认证
type KeycloakAuthenticator struct {
	validator *KeycloakTokenValidator
}

// NewKeycloakAuthenticator 创建 Keycloak 认证器
func NewKeycloakAuthenticator(validator *KeycloakTokenValidator) *KeycloakAuthenticator {
	return &KeycloakAuthenticator{validator: validator}
}

// Authenticate 从 Authorization 头或 token 参数读取 Token
func (a *KeycloakAuthenticator) Authenticate(r *http.Request) (model.Actor, error) {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return model.Actor{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	actor, err := claims.Actor()
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return actor, nil
}

// HeaderAuthenticator 信任请求头中的身份
type HeaderAuthenticator struct{}

// Authenticate 读取 X-Actor-ID/X-Actor-Role,WebSocket 与 SSE 可用 actor_id/actor_role 参数
func (HeaderAuthenticator) Authenticate(r *http.Request) (model.Actor, error) {
	id := r.Header.Get(HeaderActorID)
	roleValue := r.Header.Get(HeaderActorRole)
	if id == "" {
		id = r.URL.Query().Get("actor_id")
		roleValue = r.URL.Query().Get("actor_role")
	}
	if id == "" {
		return model.Actor{}, fmt.Errorf("%w: missing %s", ErrUnauthenticated, HeaderActorID)
	}

	role, ok := model.ParseRole(roleValue)
	if !ok {
		return model.Actor{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, roleValue)
	}
	return model.Actor{ID: id, Name: r.Header.Get(HeaderActorName), Role: role}, nil
}

// NewAuthenticator 根据模式创建认证器
func NewAuthenticator(mode string, issuer string) (Authenticator, error) {
	switch mode {
	case ModeHeader:
		return HeaderAuthenticator{}, nil
	case ModeKeycloak, "":
		if issuer == "" {
			return nil, errors.New("keycloak issuer is required")
		}
		return NewKeycloakAuthenticator(NewKeycloakTokenValidator(issuer)), nil
	default:
		return nil, fmt.Errorf("unknown auth mode: %s", mode)
	}
}
