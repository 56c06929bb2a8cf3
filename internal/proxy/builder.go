// Package proxy 根据远程位置和服务描述构建服务代理
package proxy

import (
	"context"
	"strconv"

	"remoting/internal/metrics"
	"remoting/internal/protocol"
	"remoting/internal/types"
	"remoting/internal/utils"
)

// 地址路径前缀
const remotingPath = "/remoting/"

// Address 计算远程服务地址，各部分原样拼接，不做 URL 编码
func Address(scheme string, loc types.RemoteLocation, serviceName string) string {
	return scheme + "://" + loc.Host + ":" + strconv.Itoa(loc.Port) + remotingPath + serviceName
}

// Invoker 调用拦截器
type Invoker interface {
	Invoke(ctx context.Context, inv *types.Invocation) (any, error)
}

// HandleFactory 为地址创建转发句柄，不能做网络 I/O
type HandleFactory func(address string, codec protocol.Codec) (types.Handle, error)

// Builder 代理构建器，构建结果只取决于输入，可重复调用
type Builder struct {
	scheme      string
	handles     HandleFactory
	interceptor Invoker
	logger      utils.Logger
	metrics     *metrics.Metrics
}

// Option 构建器选项
type Option func(*Builder)

// WithScheme 设置地址协议，默认 http
func WithScheme(scheme string) Option {
	return func(b *Builder) {
		b.scheme = scheme
	}
}

// WithLogger 设置日志
func WithLogger(logger utils.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithMetrics 记录默认值降级次数
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// NewBuilder 创建构建器
func NewBuilder(interceptor Invoker, handles HandleFactory, opts ...Option) *Builder {
	b := &Builder{
		scheme:      "http",
		handles:     handles,
		interceptor: interceptor,
		logger:      utils.DefaultLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Proxy 校验输入并构建代理，失败时返回 *types.ConfigurationError
func (b *Builder) Proxy(loc types.RemoteLocation, desc types.ServiceDescriptor, codec protocol.Codec) (*Proxy, error) {
	if err := b.validate(loc, desc, codec); err != nil {
		return nil, err
	}

	address := Address(b.scheme, loc, desc.ServiceName)
	handle, err := b.handles(address, codec)
	if err != nil {
		return nil, types.NewConfigurationError("handle", err)
	}

	p := &Proxy{
		descriptor:  cloneDescriptor(desc),
		location:    loc,
		address:     address,
		interceptor: b.interceptor,
		logger:      b.logger,
		metrics:     b.metrics,
	}
	p.handle.Store(&handleRef{handle: handle})

	b.logger.Debug("service proxy built",
		utils.String("service", desc.ServiceName),
		utils.String("address", address),
		utils.String("codec", codec.Name()))
	return p, nil
}

func (b *Builder) validate(loc types.RemoteLocation, desc types.ServiceDescriptor, codec protocol.Codec) error {
	if b.scheme != "http" && b.scheme != "https" {
		return types.NewConfigurationError("scheme", types.ErrInvalidAddress)
	}
	if b.interceptor == nil || b.handles == nil {
		return types.NewConfigurationError("builder", types.ErrNotBound)
	}
	if err := loc.Validate(); err != nil {
		return types.NewConfigurationError("location", err)
	}
	if err := desc.Contract.Validate(); err != nil {
		return types.NewConfigurationError("contract", err)
	}
	if err := types.ValidateServiceName(desc.ServiceName); err != nil {
		return types.NewConfigurationError("service", err)
	}
	if codec == nil {
		return types.NewConfigurationError("codec", types.ErrMissingCodec)
	}
	return nil
}

// Build 构建代理并绑定类型化的存根
func Build[T any](b *Builder, loc types.RemoteLocation, desc types.ServiceDescriptor, codec protocol.Codec, stub func(*Proxy) T) (T, error) {
	var zero T
	if stub == nil {
		return zero, types.NewConfigurationError("stub", types.ErrMissingStub)
	}
	p, err := b.Proxy(loc, desc, codec)
	if err != nil {
		return zero, err
	}
	return stub(p), nil
}

func cloneDescriptor(desc types.ServiceDescriptor) types.ServiceDescriptor {
	desc.Contract.Operations = append([]string(nil), desc.Contract.Operations...)
	return desc
}
