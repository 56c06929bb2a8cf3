package types

import "time"

// MessageType 消息类型
type MessageType uint8

const (
	// REQUEST 请求消息
	REQUEST MessageType = iota + 1
	// RESPONSE 响应消息
	RESPONSE
)

// 响应元数据键
const (
	MetaError     = "error"
	MetaErrorKind = "error-kind"
)

// 远程错误种类
const (
	// ErrorKindException 远程业务错误
	ErrorKindException = "exception"
	// ErrorKindFault 远程抛出的非错误原因（如崩溃）
	ErrorKindFault = "fault"
)

// Message 线上传递的消息结构，参数和结果以 JSON 编码在 Body 中
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	Service   string            `json:"service"`
	Contract  string            `json:"contract,omitempty"`
	Method    string            `json:"method"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Body      []byte            `json:"body"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessage 创建新消息
func NewMessage(msgType MessageType, id, service, method string) *Message {
	return &Message{
		ID:        id,
		Type:      msgType,
		Service:   service,
		Method:    method,
		Metadata:  make(map[string]string),
		Timestamp: time.Now(),
	}
}

// Validate 验证消息结构
func (m *Message) Validate() error {
	if m.ID == "" {
		return ErrInvalidMessageID
	}
	if m.Type < REQUEST || m.Type > RESPONSE {
		return ErrInvalidMessageType
	}
	if m.Type == REQUEST && m.Service == "" {
		return ErrInvalidService
	}
	return nil
}

// IsError 响应是否携带远程错误
func (m *Message) IsError() bool {
	return m.Metadata[MetaError] == "true"
}

// RemoteFault 远程抛出的非错误原因，不实现 error 接口
type RemoteFault struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}
