package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"remoting/internal/metrics"
	"remoting/internal/types"
	"remoting/internal/utils"
)

// 失败种类
const (
	KindCommunication = "communication"
	KindRemote        = "remote"
	KindInvocation    = "invocation"
	KindOther         = "other"
)

// ErrorKind 返回错误的种类，成功时为空
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		remote *types.RemoteOperationError
		inv    *types.InvocationError
	)
	switch {
	case types.IsCommunicationError(err):
		return KindCommunication
	case errors.As(err, &remote):
		return KindRemote
	case errors.As(err, &inv):
		return KindInvocation
	default:
		return KindOther
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware(logger utils.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *types.Invocation) (any, error) {
			start := time.Now()
			logger.Debug("invocation started",
				utils.String("invocation", inv.ID),
				utils.String("service", inv.Signature()))

			result, err := next(ctx, inv)

			if err != nil {
				logger.Warn("invocation failed",
					utils.String("invocation", inv.ID),
					utils.String("service", inv.Signature()),
					utils.String("kind", ErrorKind(err)),
					utils.ErrorField(err),
					utils.Duration("duration", time.Since(start)))
			} else {
				logger.Debug("invocation completed",
					utils.String("invocation", inv.ID),
					utils.Duration("duration", time.Since(start)))
			}
			return result, err
		}
	}
}

// MetricsMiddleware 指标中间件
func MetricsMiddleware(m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *types.Invocation) (any, error) {
			start := time.Now()
			result, err := next(ctx, inv)
			m.ObserveResult(inv.Contract.Name, inv.Operation, time.Since(start), ErrorKind(err))
			return result, err
		}
	}
}

// TracingMiddleware 为每次转发创建客户端 span
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *types.Invocation) (any, error) {
			ctx, span := tracer.Start(ctx, inv.Signature(),
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("rpc.system", "remoting"),
					attribute.String("rpc.service", inv.Contract.Name),
					attribute.String("rpc.method", inv.Operation),
					attribute.String("remoting.invocation_id", inv.ID),
				))
			defer span.End()

			result, err := next(ctx, inv)
			if err != nil {
				span.RecordError(err)
				span.SetAttributes(attribute.String("remoting.error_kind", ErrorKind(err)))
				span.SetStatus(codes.Error, err.Error())
			}
			return result, err
		}
	}
}
