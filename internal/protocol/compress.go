package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"

	"remoting/internal/types"
)

// Compressor 压缩算法
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// NewCompressor 按名称创建压缩算法
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case "gzip":
		return gzipCompressor{}, nil
	case "zstd":
		return newZstdCompressor()
	case "lz4":
		return lz4Compressor{}, nil
	default:
		return nil, fmt.Errorf("%w: compression %q", types.ErrUnsupportedCodec, name)
	}
}

// Compressed 在编码结果外层加压缩
type Compressed struct {
	codec      Codec
	compressor Compressor
}

// NewCompressed 包装编解码器
func NewCompressed(codec Codec, compressor Compressor) *Compressed {
	return &Compressed{codec: codec, compressor: compressor}
}

// Name 形如 json+zstd
func (c *Compressed) Name() string {
	return c.codec.Name() + "+" + c.compressor.Name()
}

// ContentType 与内层编解码器相同，压缩方式由 Content-Encoding 表达
func (c *Compressed) ContentType() string {
	return c.codec.ContentType()
}

// Encoding HTTP Content-Encoding 取值
func (c *Compressed) Encoding() string {
	return c.compressor.Name()
}

// Encode 编码后压缩
func (c *Compressed) Encode(msg types.Message) ([]byte, error) {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return nil, err
	}
	out, err := c.compressor.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("%s compress: %w", c.compressor.Name(), err)
	}
	return out, nil
}

// Decode 解压后解码
func (c *Compressed) Decode(data []byte) (types.Message, error) {
	raw, err := c.compressor.Decompress(data)
	if err != nil {
		return types.Message{}, fmt.Errorf("%s decompress: %w", c.compressor.Name(), err)
	}
	return c.codec.Decode(raw)
}

type gzipCompressor struct{}

func (gzipCompressor) Name() string { return "gzip" }

func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
}

// zstdCompressor 编解码器实例可并发复用
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxMessageSize))
	if err != nil {
		return nil, err
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (z *zstdCompressor) Name() string { return "zstd" }

func (z *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	return z.dec.DecodeAll(data, nil)
}

type lz4Compressor struct{}

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), MaxMessageSize+1))
}
