package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 所有失败都限定在当前会话内，调用方根据错误码决定跳转或重试
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal error"
}

// IsLoadError 加载阶段错误（需要整体重新进入会话）
func IsLoadError(err error) bool {
	switch GetCode(err) {
	case CodeAuthRequired, CodeRecipientNotFound, CodeConversationCreateFailed, CodeMessageLoadFailed:
		return true
	}
	return false
}

// ============== 错误码定义 ==============

const (
	// 会话身份 10000-10999
	CodeAuthRequired = 10001
	CodeTokenInvalid = 10002
	CodeTokenExpired = 10003

	// 快照加载 11000-11999
	CodeRecipientNotFound        = 11001
	CodeConversationCreateFailed = 11002
	CodeMessageLoadFailed        = 11003
	CodeNoConversation           = 11004

	// 加载后操作 12000-12999
	CodeSendFailed        = 12001
	CodeReadAckFailed     = 12002
	CodeSubscriptionError = 12003
	CodeDeleteFailed      = 12004
	CodeNotMessageOwner   = 12005
	CodeInvalidParams     = 12006
	CodeContactExists     = 12007

	// 系统错误 50000-50999
	CodeServerError = 50001
)

// ============== 预定义错误 ==============

// 身份相关
var (
	ErrAuthRequired = NewError(CodeAuthRequired, "Sign in required")
	ErrTokenInvalid = NewError(CodeTokenInvalid, "Token is invalid")
	ErrTokenExpired = NewError(CodeTokenExpired, "Token has expired")
)

// 加载相关
var (
	ErrRecipientNotFound        = NewError(CodeRecipientNotFound, "Recipient not found")
	ErrConversationCreateFailed = NewError(CodeConversationCreateFailed, "Failed to create chat")
	ErrMessageLoadFailed        = NewError(CodeMessageLoadFailed, "Failed to load messages")
	ErrNoConversation           = NewError(CodeNoConversation, "No chat is open")
)

// 加载后操作相关
var (
	ErrSendFailed        = NewError(CodeSendFailed, "Failed to send message")
	ErrReadAckFailed     = NewError(CodeReadAckFailed, "Failed to mark messages as read")
	ErrSubscriptionError = NewError(CodeSubscriptionError, "Live updates unavailable")
	ErrDeleteFailed      = NewError(CodeDeleteFailed, "Failed to delete message")
	ErrNotMessageOwner   = NewError(CodeNotMessageOwner, "Only your own messages can be deleted")
	ErrInvalidParams     = NewError(CodeInvalidParams, "Invalid parameters")
	ErrContactExists     = NewError(CodeContactExists, "You have already added this contact")
)

// 系统相关
var (
	ErrServerError = NewError(CodeServerError, "Internal error")
)
