package types

import (
	"errors"
	"fmt"
)

// 定义包级别的错误
var (
	// Message 相关错误
	ErrInvalidMessageID   = errors.New("invalid message id")
	ErrInvalidMessageType = errors.New("invalid message type")

	// 构建相关错误
	ErrInvalidHost      = errors.New("invalid host")
	ErrInvalidPort      = errors.New("invalid port")
	ErrInvalidService   = errors.New("invalid service name")
	ErrInvalidMethod    = errors.New("invalid operation name")
	ErrEmptyContract    = errors.New("contract has no operations")
	ErrInvalidContract  = errors.New("invalid contract")
	ErrInvalidAddress   = errors.New("malformed remote address")
	ErrMissingCodec     = errors.New("codec is required")
	ErrMissingStub      = errors.New("stub constructor is required")
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// 调度相关错误
	ErrNotBound         = errors.New("interceptor is not bound to a service proxy")
	ErrUnknownOperation = errors.New("unknown proxy operation")
	ErrNoHandle         = errors.New("service proxy has no forwarding handle")
)

// ConfigurationError 代理构建期的配置错误，构建失败时不会返回代理
type ConfigurationError struct {
	Field string
	Cause error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("remoting configuration: %v", e.Cause)
	}
	return fmt.Sprintf("remoting configuration: %s: %v", e.Field, e.Cause)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(field string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Cause: cause}
}

// InvocationError 转发失败且原因不是 error 值时使用的通用错误，保留原始原因用于诊断
type InvocationError struct {
	Contract  string
	Operation string
	Cause     any
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s.%s: %v", e.Contract, e.Operation, e.Cause)
}

// Unwrap 原因本身是 error 时返回它
func (e *InvocationError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// RemoteOperationError 远程服务执行时抛出的业务错误，原样返回给调用方
type RemoteOperationError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *RemoteOperationError) Error() string {
	msg := e.Message
	if e.Type != "" {
		msg = e.Type + ": " + msg
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	return msg
}

// CommunicationError 通信层失败（连接、超时、状态码、编解码）
type CommunicationError struct {
	Address    string
	Op         string
	StatusCode int
	Cause      error
}

func (e *CommunicationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remoting %s %s: status %d: %v", e.Op, e.Address, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("remoting %s %s: %v", e.Op, e.Address, e.Cause)
}

func (e *CommunicationError) Unwrap() error {
	return e.Cause
}

// IsCommunicationError 判断错误链中是否存在通信层失败
func IsCommunicationError(err error) bool {
	var ce *CommunicationError
	return errors.As(err, &ce)
}

// TargetInvocationError 底层调用的间接包装层，Target 是目标抛出的原始原因（不一定是 error）
type TargetInvocationError struct {
	Target any
}

func (e *TargetInvocationError) Error() string {
	return fmt.Sprintf("target invocation failed: %v", e.Target)
}
