// Package protocol 远程调用消息的编解码
package protocol

import (
	"fmt"
	"strings"

	"remoting/internal/types"
)

// Codec 编解码器接口
type Codec interface {
	Name() string
	ContentType() string
	Encode(msg types.Message) ([]byte, error)
	Decode(data []byte) (types.Message, error)
}

// NewCodec 按名称创建编解码器，格式为 "基础[+压缩]"，如 "json+zstd"
func NewCodec(name string) (Codec, error) {
	base, algo, compressed := strings.Cut(strings.ToLower(strings.TrimSpace(name)), "+")

	var codec Codec
	switch base {
	case "", "json":
		codec = NewJSONCodec()
	case "binary":
		codec = NewBinaryCodec()
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedCodec, name)
	}

	if !compressed {
		return codec, nil
	}
	compressor, err := NewCompressor(algo)
	if err != nil {
		return nil, err
	}
	return NewCompressed(codec, compressor), nil
}
