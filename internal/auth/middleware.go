package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/model"
)

const actorContextKey = "actor"

// AuthMiddleware 认证中间件,将调用方身份存入上下文
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := authn.Authenticate(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "unauthorized",
				"detail":  err.Error(),
			})
			c.Abort()
			return
		}

		c.Set(actorContextKey, actor)
		c.Set("user_id", actor.ID)
		c.Set("role", string(actor.Role))
		c.Next()
	}
}

// ActorFromContext 获取当前调用方
func ActorFromContext(c *gin.Context) (model.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := value.(model.Actor)
	return actor, ok
}

// RequireRoles 角色检查中间件
func RequireRoles(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unauthorized"})
			c.Abort()
			return
		}
		if !actor.Is(roles...) {
			c.JSON(http.StatusForbidden, gin.H{"code": 403, "message": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
