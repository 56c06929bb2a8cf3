// Package retry 指数退避重试
package retry

import (
	"context"
	"time"

	"remoting/internal/config"
)

// RetryPolicy 重试策略接口
type RetryPolicy interface {
	// Execute 执行带重试的操作，返回最后一次错误
	Execute(ctx context.Context, operation func() error) error
}

// Option 重试策略选项
type Option func(*exponentialBackoff)

// WithRetryIf 只重试满足条件的错误，其余错误立即返回
func WithRetryIf(retryable func(error) bool) Option {
	return func(e *exponentialBackoff) {
		e.retryable = retryable
	}
}

// WithOnRetry 每次等待重试前回调
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(e *exponentialBackoff) {
		e.onRetry = fn
	}
}

// exponentialBackoff 指数退避策略实现
type exponentialBackoff struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	retryable       func(error) bool
	onRetry         func(attempt int, err error)
}

// NewRetryPolicy 根据传输层配置创建重试策略
func NewRetryPolicy(cfg *config.Config, opts ...Option) RetryPolicy {
	e := &exponentialBackoff{
		maxAttempts:     cfg.Transport.RetryCount,
		initialInterval: cfg.Transport.InitialBackoff.Std(),
		maxInterval:     cfg.Transport.MaxBackoff.Std(),
	}
	if e.maxAttempts < 0 {
		e.maxAttempts = 0
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 执行带重试的操作，至少执行一次
func (e *exponentialBackoff) Execute(ctx context.Context, operation func() error) error {
	var err error
	interval := e.initialInterval

	for attempt := 0; attempt <= e.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = operation()
		if err == nil {
			return nil
		}
		if e.retryable != nil && !e.retryable(err) {
			return err
		}
		if attempt >= e.maxAttempts {
			break
		}
		if e.onRetry != nil {
			e.onRetry(attempt+1, err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			interval *= 2
			if interval > e.maxInterval {
				interval = e.maxInterval
			}
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return err
}
