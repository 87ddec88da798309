package service

import (
	"errors"
	"fmt"
)

// ==================== 错误定义 ====================

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrInvalidToken       = errors.New("Token 无效")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrForbidden          = errors.New("无权限访问")
	ErrNotFound           = errors.New("文件不存在")
	ErrPathEscapes        = errors.New("路径越出存储根目录")
	ErrInvalidPath        = errors.New("路径格式非法")
	ErrAssistantDisabled  = errors.New("助手未配置")
)

// ValidationError 表单校验错误，Message 直接展示给用户
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// newValidationError 创建校验错误
func newValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError 判断是否为表单校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
