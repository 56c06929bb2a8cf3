// Package transport 基于 HTTP 的转发句柄
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"remoting/internal/config"
	"remoting/internal/protocol"
	"remoting/internal/transport/retry"
	"remoting/internal/types"
	"remoting/internal/utils"
)

// Stats 传输层统计信息
type Stats struct {
	RequestCount  int64
	ResponseCount int64
	ErrorCount    int64
	RetryCount    int64
	AvgLatency    time.Duration
}

// Client 所有转发句柄共享的 HTTP 客户端
type Client struct {
	http    *http.Client
	retry   retry.RetryPolicy
	logger  utils.Logger
	stats   Stats
	statsMu sync.RWMutex
}

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(logger utils.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient 创建传输客户端
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: cfg.Transport.Timeout.Std(),
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.Transport.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.Transport.MaxIdleConns,
				IdleConnTimeout:     cfg.Transport.IdleConnTimeout.Std(),
			},
		},
		logger: utils.DefaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.retry = retry.NewRetryPolicy(cfg,
		retry.WithRetryIf(retryable),
		retry.WithOnRetry(func(attempt int, err error) {
			c.updateStats(func(s *Stats) { s.RetryCount++ })
			c.logger.Debug("retrying remote invocation",
				utils.Int("attempt", attempt),
				utils.ErrorField(err))
		}),
	)
	return c
}

// Handle 返回指向某个地址的转发句柄，不建立连接
func (c *Client) Handle(address string, codec protocol.Codec) *HTTPHandle {
	return &HTTPHandle{client: c, address: address, codec: codec}
}

// Stats 获取统计信息
func (c *Client) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// Close 释放空闲连接
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) updateStats(fn func(*Stats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(&c.stats)
}

// retryable 只有通信层失败值得重试，远程业务错误直接返回
func retryable(err error) bool {
	var ce *types.CommunicationError
	if !errors.As(err, &ce) {
		return false
	}
	// 4xx 说明请求本身有问题，重试没有意义
	return ce.StatusCode == 0 || ce.StatusCode >= http.StatusInternalServerError
}

// HTTPHandle 单个远程服务的转发句柄，只读，可并发使用
type HTTPHandle struct {
	client  *Client
	address string
	codec   protocol.Codec
}

// Address 远程服务地址
func (h *HTTPHandle) Address() string {
	return h.address
}

// Invoke 编组参数、发送请求并解组结果
func (h *HTTPHandle) Invoke(ctx context.Context, inv *types.Invocation) (any, error) {
	c := h.client
	start := time.Now()
	c.updateStats(func(s *Stats) { s.RequestCount++ })

	payload, err := h.encodeRequest(inv)
	if err != nil {
		c.updateStats(func(s *Stats) { s.ErrorCount++ })
		return nil, err
	}

	var resp types.Message
	err = c.retry.Execute(ctx, func() error {
		var rerr error
		resp, rerr = h.roundTrip(ctx, payload)
		return rerr
	})
	if err != nil {
		c.updateStats(func(s *Stats) { s.ErrorCount++ })
		if !types.IsCommunicationError(err) {
			// 重试期间上下文结束
			err = &types.CommunicationError{Address: h.address, Op: "invoke", Cause: err}
		}
		return nil, err
	}

	latency := time.Since(start)
	c.updateStats(func(s *Stats) {
		s.ResponseCount++
		if s.AvgLatency == 0 {
			s.AvgLatency = latency
		} else {
			s.AvgLatency = (s.AvgLatency + latency) / 2
		}
	})

	result, err := h.decodeResult(inv, resp)
	if err != nil {
		c.updateStats(func(s *Stats) { s.ErrorCount++ })
		return nil, err
	}
	return result, nil
}

func (h *HTTPHandle) encodeRequest(inv *types.Invocation) ([]byte, error) {
	args := inv.Args
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, &types.CommunicationError{Address: h.address, Op: "encode", Cause: errors.Wrap(err, "marshal arguments")}
	}

	id := inv.ID
	if id == "" {
		id = uuid.NewString()
	}
	msg := types.NewMessage(types.REQUEST, id, serviceOf(h.address), inv.Operation)
	msg.Contract = inv.Contract.Name
	msg.Body = body

	data, err := h.codec.Encode(*msg)
	if err != nil {
		return nil, &types.CommunicationError{Address: h.address, Op: "encode", Cause: errors.Wrap(err, "encode request")}
	}
	return data, nil
}

func (h *HTTPHandle) roundTrip(ctx context.Context, payload []byte) (types.Message, error) {
	fail := func(status int, cause error) (types.Message, error) {
		return types.Message{}, &types.CommunicationError{Address: h.address, Op: "post", StatusCode: status, Cause: cause}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.address, bytes.NewReader(payload))
	if err != nil {
		return fail(0, errors.Wrap(err, "build request"))
	}
	req.Header.Set("Content-Type", h.codec.ContentType())
	// 显式声明编码，避免 net/http 自动解压 gzip
	encoding := "identity"
	if cc, ok := h.codec.(*protocol.Compressed); ok {
		encoding = cc.Encoding()
		req.Header.Set("Content-Encoding", encoding)
	}
	req.Header.Set("Accept-Encoding", encoding)

	res, err := h.client.http.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, protocol.MaxMessageSize+1))
	if err != nil {
		return fail(res.StatusCode, errors.Wrap(err, "read response"))
	}
	if res.StatusCode != http.StatusOK {
		return fail(res.StatusCode, errors.Errorf("unexpected status %q", res.Status))
	}

	msg, err := h.codec.Decode(data)
	if err != nil {
		return fail(res.StatusCode, errors.Wrap(err, "decode response"))
	}
	if err := msg.Validate(); err != nil || msg.Type != types.RESPONSE {
		return fail(res.StatusCode, errors.Errorf("invalid response message (type %d): %v", msg.Type, err))
	}
	return msg, nil
}

// decodeResult 远程错误包装成 TargetInvocationError，由拦截器解包一层
func (h *HTTPHandle) decodeResult(inv *types.Invocation, resp types.Message) (any, error) {
	decodeFail := func(cause error) error {
		return &types.CommunicationError{Address: h.address, Op: "decode", Cause: cause}
	}

	if resp.IsError() {
		switch kind := resp.Metadata[types.MetaErrorKind]; kind {
		case types.ErrorKindFault:
			var fault types.RemoteFault
			if err := json.Unmarshal(resp.Body, &fault); err != nil {
				return nil, decodeFail(errors.Wrap(err, "unmarshal remote fault"))
			}
			return nil, &types.TargetInvocationError{Target: fault}
		case "", types.ErrorKindException:
			remote := &types.RemoteOperationError{}
			if err := json.Unmarshal(resp.Body, remote); err != nil {
				return nil, decodeFail(errors.Wrap(err, "unmarshal remote error"))
			}
			return nil, &types.TargetInvocationError{Target: remote}
		default:
			return nil, decodeFail(errors.Errorf("unknown error kind %q", kind))
		}
	}

	if inv.Reply == nil || len(resp.Body) == 0 {
		return inv.Reply, nil
	}
	if err := json.Unmarshal(resp.Body, inv.Reply); err != nil {
		return nil, decodeFail(errors.Wrap(err, "unmarshal result"))
	}
	return inv.Reply, nil
}

// serviceOf 取地址最后一段作为服务名
func serviceOf(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '/' {
			return address[i+1:]
		}
	}
	return address
}
