package utils

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// 长度限制
const (
	MaxIDLength       = 64
	MaxFileNameLength = 255
	MaxNotesLength    = 4000
)

// ValidateID 验证任务 ID 和用户 ID 格式
func ValidateID(id string) error {
	// 1. 检查是否为空
	if id == "" {
		return ErrEmptyID
	}

	// 2. 检查长度
	if len(id) > MaxIDLength {
		return ErrIDTooLong
	}

	// 3. 只允许字母、数字、连字符、下划线
	if !idPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}

	return nil
}

// CleanFileName 取上传文件名的最后一段并校验
func CleanFileName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return "", ErrEmptyName
	}
	if len(base) > MaxFileNameLength {
		return "", ErrNameTooLong
	}
	for _, r := range base {
		if unicode.IsControl(r) {
			return "", ErrDangerousChars
		}
	}
	return base, nil
}

// TrimAndValidate 去除首尾空白并校验长度,允许为空
func TrimAndValidate(s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", ErrStringTooLong
	}
	return trimmed, nil
}

// 错误定义
var (
	ErrEmptyName       = &ValidationError{Code: "EMPTY_NAME", Message: "name cannot be empty"}
	ErrNameTooLong     = &ValidationError{Code: "NAME_TOO_LONG", Message: "name exceeds maximum length"}
	ErrDangerousChars  = &ValidationError{Code: "DANGEROUS_CHARS", Message: "name contains control characters"}
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrStringTooLong   = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
