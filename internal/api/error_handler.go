package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/utils"
	"github.com/sirupsen/logrus"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// StatusFor 将服务层错误映射为 HTTP 状态码和消息
func StatusFor(err error) (int, string) {
	var (
		apiErr   *APIError
		validErr *utils.ValidationError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code, apiErr.Message
	case errors.As(err, &validErr):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, lifecycle.ErrLockConflict):
		return http.StatusLocked, "task is locked by another user"
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		return http.StatusConflict, "transition not allowed"
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound, "task not found"
	case errors.Is(err, lifecycle.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, lifecycle.ErrProviderFailure):
		return http.StatusBadGateway, "suggestion provider failed"
	case errors.Is(err, service.ErrUploadUnavailable):
		return http.StatusServiceUnavailable, "upload not configured"
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// ErrorHandlerMiddleware 错误处理中间件,处理器通过 c.Error 记录错误后由这里统一响应
func ErrorHandlerMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		code, message := StatusFor(err)
		if code >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"request_id": c.GetString(requestIDKey),
				"path":       c.FullPath(),
			}).Error("Request failed")
		}
		Error(c, code, message, err.Error())
	}
}

// abortWithError 记录错误并中断处理链
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
