package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"remoting/internal/types"
)

// MaxMessageSize 最大消息长度 (10MB)
const MaxMessageSize = 10 * 1024 * 1024

// BinaryCodec 长度前缀的二进制编解码器
type BinaryCodec struct{}

// NewBinaryCodec 创建二进制编解码器
func NewBinaryCodec() *BinaryCodec {
	return &BinaryCodec{}
}

// Name 编解码器名称
func (c *BinaryCodec) Name() string {
	return "binary"
}

// ContentType HTTP 内容类型
func (c *BinaryCodec) ContentType() string {
	return "application/x-remoting-binary"
}

// Encode 编码消息为二进制格式
// 格式: [Length:4][Type:1][Timestamp:8][ID][Service][Contract][Method][Metadata][Body]
// 字符串均为 [长度:2][内容]
func (c *BinaryCodec) Encode(msg types.Message) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, 4))
	buf.WriteByte(byte(msg.Type))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(msg.Timestamp.UnixNano()))
	buf.Write(ts[:])

	for _, f := range []struct{ name, value string }{
		{"id", msg.ID},
		{"service", msg.Service},
		{"contract", msg.Contract},
		{"method", msg.Method},
	} {
		if err := writeString(buf, f.value); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	if err := writeMetadata(buf, msg.Metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	buf.Write(msg.Body)

	data := buf.Bytes()
	if len(data)-4 > MaxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes (max %d)", len(data)-4, MaxMessageSize)
	}
	binary.BigEndian.PutUint32(data[:4], uint32(len(data)-4))
	return data, nil
}

// Decode 解码二进制数据为消息
func (c *BinaryCodec) Decode(data []byte) (types.Message, error) {
	if len(data) < 4 {
		return types.Message{}, fmt.Errorf("data too short: need at least 4 bytes for length")
	}

	length := binary.BigEndian.Uint32(data[:4])
	if length > MaxMessageSize {
		return types.Message{}, fmt.Errorf("message too large: %d bytes (max %d)", length, MaxMessageSize)
	}
	if uint32(len(data)-4) < length {
		return types.Message{}, fmt.Errorf("incomplete message: expected %d bytes, got %d", length, len(data)-4)
	}

	reader := bytes.NewReader(data[4 : 4+length])

	typeByte, err := reader.ReadByte()
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to read message type: %w", err)
	}
	var nanos uint64
	if err := binary.Read(reader, binary.BigEndian, &nanos); err != nil {
		return types.Message{}, fmt.Errorf("failed to read timestamp: %w", err)
	}

	fields := make([]string, 4)
	for i, name := range []string{"id", "service", "contract", "method"} {
		if fields[i], err = readString(reader); err != nil {
			return types.Message{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}

	metadata, err := readMetadata(reader)
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) == 0 {
		body = nil
	}

	return types.Message{
		ID:        fields[0],
		Type:      types.MessageType(typeByte),
		Service:   fields[1],
		Contract:  fields[2],
		Method:    fields[3],
		Metadata:  metadata,
		Body:      body,
		Timestamp: time.Unix(0, int64(nanos)),
	}, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return fmt.Errorf("string too long: %d bytes (max 65535)", len(s))
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return "", err
	}
	return string(data), nil
}

// writeMetadata 按键排序写入，保证编码结果稳定
func writeMetadata(buf *bytes.Buffer, metadata map[string]string) error {
	if len(metadata) > 65535 {
		return fmt.Errorf("too many metadata entries: %d", len(metadata))
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(metadata))); err != nil {
		return err
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := writeString(buf, k); err != nil {
			return err
		}
		if err := writeString(buf, metadata[k]); err != nil {
			return err
		}
	}
	return nil
}

func readMetadata(reader *bytes.Reader) (map[string]string, error) {
	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	metadata := make(map[string]string, count)
	for i := uint16(0); i < count; i++ {
		key, err := readString(reader)
		if err != nil {
			return nil, err
		}
		value, err := readString(reader)
		if err != nil {
			return nil, err
		}
		metadata[key] = value
	}
	return metadata, nil
}
