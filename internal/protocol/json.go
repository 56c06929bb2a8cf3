package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"remoting/internal/types"
)

// JSONCodec JSON 编解码器，Body 以原始 JSON 内嵌
type JSONCodec struct{}

// NewJSONCodec 创建 JSON 编解码器
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Name 编解码器名称
func (c *JSONCodec) Name() string {
	return "json"
}

// ContentType HTTP 内容类型
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// jsonMessage 消息的 JSON 表示
type jsonMessage struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Service   string            `json:"service,omitempty"`
	Contract  string            `json:"contract,omitempty"`
	Method    string            `json:"method"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Body      json.RawMessage   `json:"body"`
	Timestamp string            `json:"timestamp"`
}

// Encode 编码消息为 JSON
func (c *JSONCodec) Encode(msg types.Message) ([]byte, error) {
	body := json.RawMessage("null")
	if len(msg.Body) > 0 {
		if !json.Valid(msg.Body) {
			return nil, fmt.Errorf("message body is not valid JSON")
		}
		body = json.RawMessage(msg.Body)
	}

	data, err := json.Marshal(jsonMessage{
		ID:        msg.ID,
		Type:      messageTypeToString(msg.Type),
		Service:   msg.Service,
		Contract:  msg.Contract,
		Method:    msg.Method,
		Metadata:  msg.Metadata,
		Body:      body,
		Timestamp: msg.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Decode 解码 JSON 为消息
func (c *JSONCodec) Decode(data []byte) (types.Message, error) {
	var m jsonMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return types.Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		timestamp = time.Now()
	}

	var body []byte
	if len(m.Body) > 0 && string(m.Body) != "null" {
		body = []byte(m.Body)
	}

	return types.Message{
		ID:        m.ID,
		Type:      stringToMessageType(m.Type),
		Service:   m.Service,
		Contract:  m.Contract,
		Method:    m.Method,
		Metadata:  m.Metadata,
		Body:      body,
		Timestamp: timestamp,
	}, nil
}

func messageTypeToString(t types.MessageType) string {
	switch t {
	case types.REQUEST:
		return "REQUEST"
	case types.RESPONSE:
		return "RESPONSE"
	default:
		return strconv.Itoa(int(t))
	}
}

func stringToMessageType(s string) types.MessageType {
	switch s {
	case "REQUEST":
		return types.REQUEST
	case "RESPONSE":
		return types.RESPONSE
	default:
		if i, err := strconv.Atoi(s); err == nil {
			return types.MessageType(i)
		}
		// 未知类型交给 Validate 拒绝
		return 0
	}
}
