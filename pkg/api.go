// Package pkg 远程服务调用的公开入口
package pkg

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"remoting/internal/config"
	"remoting/internal/dispatch"
	"remoting/internal/execctx"
	"remoting/internal/metrics"
	"remoting/internal/protocol"
	"remoting/internal/proxy"
	"remoting/internal/repository"
	"remoting/internal/transport"
	"remoting/internal/types"
	"remoting/internal/utils"
	"remoting/internal/worker"
)

// 对外公开的数据类型
type (
	RemoteLocation       = types.RemoteLocation
	Contract             = types.Contract
	ServiceDescriptor    = types.ServiceDescriptor
	ConfigurationError   = types.ConfigurationError
	InvocationError      = types.InvocationError
	RemoteOperationError = types.RemoteOperationError
	CommunicationError   = types.CommunicationError
	Proxy                = proxy.Proxy
	ServiceProxy         = proxy.ServiceProxy
	Token                = execctx.Token
	Loop                 = execctx.Loop
)

// NewToken 创建执行上下文标识
func NewToken() Token {
	return execctx.NewToken()
}

// WithToken 标记 ctx 所属的执行上下文
func WithToken(ctx context.Context, tok Token) context.Context {
	return execctx.WithToken(ctx, tok)
}

// NewLoop 创建特权事件循环
func NewLoop() *Loop {
	return execctx.NewLoop()
}

// Stats 客户端统计信息
type Stats struct {
	Transport transport.Stats
	Pool      worker.Stats
}

// Client 组装好的远程调用客户端
type Client struct {
	cfg       *config.Config
	logger    utils.Logger
	logFile   io.Closer
	codec     protocol.Codec
	pool      *worker.Pool
	transport *transport.Client
	builder   *proxy.Builder
	registry  *prometheus.Registry
}

// Option 客户端选项
type Option func(*options)

type options struct {
	logger   utils.Logger
	detector *execctx.Detector
	registry *prometheus.Registry
	tracer   trace.TracerProvider
}

// WithLogger 使用指定日志器，忽略配置中的日志设置
func WithLogger(logger utils.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPrivileged 登记特权上下文标识
func WithPrivileged(tok Token) Option {
	return func(o *options) {
		o.detector = execctx.NewDetector(tok)
	}
}

// WithLoop 以事件循环作为特权上下文
func WithLoop(loop *Loop) Option {
	return func(o *options) {
		o.detector = loop.Detector()
	}
}

// WithRegistry 指标注册到指定的 registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithTracerProvider 指定链路追踪提供者，默认使用 otel 全局提供者
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// NewClient 按配置组装客户端，cfg 为 nil 时使用默认配置
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{cfg: cfg, logger: o.logger}
	if c.logger == nil {
		logger, closer, err := newLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		c.logger, c.logFile = logger, closer
	}

	codec, err := protocol.NewCodec(cfg.Remoting.Codec)
	if err != nil {
		c.closeLog()
		return nil, types.NewConfigurationError("codec", err)
	}
	c.codec = codec

	c.pool = worker.NewPool(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, worker.WithLogger(c.logger))

	var (
		m           *metrics.Metrics
		middlewares = []dispatch.Middleware{dispatch.LoggingMiddleware(c.logger)}
	)
	if cfg.Metrics.Enabled {
		c.registry = o.registry
		if c.registry == nil {
			c.registry = prometheus.NewRegistry()
		}
		if m, err = metrics.New(c.registry, cfg.Metrics.Namespace); err == nil {
			err = metrics.RegisterPool(c.registry, cfg.Metrics.Namespace, c.pool)
		}
		if err != nil {
			c.pool.Close()
			c.closeLog()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		middlewares = append(middlewares, dispatch.MetricsMiddleware(m))
	}
	if cfg.Tracing.Enabled {
		tp := o.tracer
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		middlewares = append(middlewares, dispatch.TracingMiddleware(tp.Tracer("remoting")))
	}

	ic := dispatch.NewInterceptor(c.pool,
		dispatch.WithDetector(o.detector),
		dispatch.WithDiagnosticSink(c.logger),
		dispatch.WithDevelopment(cfg.IsDevelopment()),
		dispatch.WithMetrics(m),
		dispatch.WithMiddleware(middlewares...),
	)

	c.transport = transport.NewClient(cfg, transport.WithLogger(c.logger))
	c.builder = proxy.NewBuilder(ic, func(address string, codec protocol.Codec) (types.Handle, error) {
		return c.transport.Handle(address, codec), nil
	},
		proxy.WithScheme(cfg.Remoting.Scheme),
		proxy.WithLogger(c.logger),
		proxy.WithMetrics(m),
	)

	c.logger.Info("remoting client ready",
		utils.String("scheme", cfg.Remoting.Scheme),
		utils.String("codec", codec.Name()),
		utils.Int("workers", cfg.Dispatch.Workers),
		utils.Bool("development", cfg.IsDevelopment()))
	return c, nil
}

// Build 构建代理并绑定类型化存根
func Build[T any](c *Client, loc RemoteLocation, desc ServiceDescriptor, stub func(*Proxy) T) (T, error) {
	return proxy.Build(c.builder, loc, desc, c.codec, stub)
}

// Call 调用有返回值的契约操作
func Call[R any](ctx context.Context, p *Proxy, op string, args ...any) (R, error) {
	return proxy.Call[R](ctx, p, op, args...)
}

// CallVoid 调用无返回值的契约操作
func CallVoid(ctx context.Context, p *Proxy, op string, args ...any) error {
	return proxy.CallVoid(ctx, p, op, args...)
}

// Builder 底层代理构建器
func (c *Client) Builder() *proxy.Builder {
	return c.builder
}

// Codec 配置的编解码器
func (c *Client) Codec() protocol.Codec {
	return c.codec
}

// Logger 客户端日志器
func (c *Client) Logger() utils.Logger {
	return c.logger
}

// Registry 指标 registry，未启用指标时为 nil
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// NewRepository 为远程位置创建代理仓库
func (c *Client) NewRepository(loc RemoteLocation) *repository.Repository {
	return repository.New(loc, repository.WithLogger(c.logger))
}

// Stats 统计信息
func (c *Client) Stats() Stats {
	return Stats{
		Transport: c.transport.Stats(),
		Pool:      c.pool.Stats(),
	}
}

// Close 等待进行中的调用结束并释放连接
func (c *Client) Close() error {
	err := c.pool.Close()
	c.transport.Close()
	c.logger.Info("remoting client closed")
	c.closeLog()
	return err
}

func (c *Client) closeLog() {
	if c.logFile != nil {
		c.logFile.Close()
		c.logFile = nil
	}
}

// newLogger 按日志配置创建日志器，输出为 stdout、stderr 或文件路径
func newLogger(cfg config.LogConfig) (utils.Logger, io.Closer, error) {
	level, err := utils.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	opts := []utils.LoggerOption{utils.WithLevel(level), utils.WithPrefix("remoting")}
	var closer io.Closer
	switch cfg.Output {
	case "", "stdout":
		opts = append(opts, utils.WithOutput(os.Stdout))
	case "stderr":
		opts = append(opts, utils.WithOutput(os.Stderr))
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output: %w", err)
		}
		opts = append(opts, utils.WithOutput(f))
		closer = f
	}
	if !cfg.WithColor {
		opts = append(opts, utils.WithoutColor())
	}
	if cfg.WithLocation {
		opts = append(opts, utils.WithLocation())
	}
	return utils.NewLogger(opts...), closer, nil
}
