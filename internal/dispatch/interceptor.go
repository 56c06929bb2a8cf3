// Package dispatch 服务代理的调用拦截与调度
//
// 拦截器对每次调用做分类：代理自身的生命周期操作在本地执行；契约操作
// 如果来自特权上下文（UI/事件循环），会被转移到工作池执行，调用方阻塞
// 等待结果；其余情况直接在调用方上下文转发。
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"remoting/internal/execctx"
	"remoting/internal/metrics"
	"remoting/internal/types"
	"remoting/internal/utils"
	"remoting/internal/worker"
)

// DiagnosticMessage 开发模式下特权上下文调用契约操作时输出的诊断
const DiagnosticMessage = "A service operation has been called in the privileged context. " +
	"The call was moved to a worker and the privileged context is blocked until it completes"

// HandlerFunc 转发处理函数
type HandlerFunc func(ctx context.Context, inv *types.Invocation) (any, error)

// Middleware 转发中间件，包裹在实际转发之外，在执行转发的上下文中运行
type Middleware func(next HandlerFunc) HandlerFunc

// Classifier 判断一次调用是否为契约操作
type Classifier interface {
	IsServiceOperation(inv *types.Invocation) bool
}

// ClassifierFunc 函数形式的 Classifier
type ClassifierFunc func(inv *types.Invocation) bool

// IsServiceOperation 实现 Classifier
func (f ClassifierFunc) IsServiceOperation(inv *types.Invocation) bool {
	return f(inv)
}

// ContractClassifier 默认分类：属于服务契约且不是代理自身的操作
var ContractClassifier = ClassifierFunc(func(inv *types.Invocation) bool {
	return inv.Contract.Name != types.ProxyContractName && inv.Contract.Has(inv.Operation)
})

// Dispatcher 工作池，Submit 返回可等待的任务
type Dispatcher interface {
	Submit(ctx context.Context, unit worker.Unit) *worker.Task
}

// Interceptor 调用拦截器，无可变状态，可被任意多个代理并发共享
type Interceptor struct {
	classifier  Classifier
	detector    *execctx.Detector
	dispatcher  Dispatcher
	sink        utils.Logger
	development bool
	metrics     *metrics.Metrics
	forward     HandlerFunc
}

// Option 拦截器选项
type Option func(*interceptorOptions)

type interceptorOptions struct {
	classifier  Classifier
	detector    *execctx.Detector
	sink        utils.Logger
	development bool
	metrics     *metrics.Metrics
	middlewares []Middleware
}

// WithClassifier 替换契约操作分类器
func WithClassifier(c Classifier) Option {
	return func(o *interceptorOptions) {
		o.classifier = c
	}
}

// WithDetector 设置特权上下文检测器
func WithDetector(d *execctx.Detector) Option {
	return func(o *interceptorOptions) {
		o.detector = d
	}
}

// WithDiagnosticSink 设置诊断输出
func WithDiagnosticSink(sink utils.Logger) Option {
	return func(o *interceptorOptions) {
		o.sink = sink
	}
}

// WithDevelopment 开发模式下输出特权上下文诊断
func WithDevelopment(enabled bool) Option {
	return func(o *interceptorOptions) {
		o.development = enabled
	}
}

// WithMetrics 记录调用路径
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *interceptorOptions) {
		o.metrics = m
	}
}

// WithMiddleware 追加转发中间件，先加入的在外层
func WithMiddleware(mws ...Middleware) Option {
	return func(o *interceptorOptions) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// NewInterceptor 创建拦截器，dispatcher 不能为 nil
func NewInterceptor(dispatcher Dispatcher, opts ...Option) *Interceptor {
	if dispatcher == nil {
		panic("dispatch: nil dispatcher")
	}

	o := interceptorOptions{
		classifier: ContractClassifier,
		sink:       utils.DefaultLogger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	handler := HandlerFunc(forward)
	for i := len(o.middlewares) - 1; i >= 0; i-- {
		handler = o.middlewares[i](handler)
	}

	return &Interceptor{
		classifier:  o.classifier,
		detector:    o.detector,
		dispatcher:  dispatcher,
		sink:        o.sink,
		development: o.development,
		metrics:     o.metrics,
		forward:     handler,
	}
}

// Invoke 调度一次调用
func (i *Interceptor) Invoke(ctx context.Context, inv *types.Invocation) (any, error) {
	if inv.Target == nil {
		return nil, types.ErrNotBound
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}

	if !i.classifier.IsServiceOperation(inv) {
		if inv.Proceed == nil {
			return nil, fmt.Errorf("%w: %s", types.ErrUnknownOperation, inv.Signature())
		}
		i.metrics.ObserveInvocation(inv.Contract.Name, inv.Operation, metrics.RouteLocal)
		return inv.Proceed()
	}

	if i.detector.IsPrivileged(ctx) {
		if i.development {
			i.sink.Log(utils.WARN, DiagnosticMessage,
				utils.String("service", inv.Signature()),
				utils.String("invocation", inv.ID))
			i.metrics.ObserveDiagnostic()
		}
		i.metrics.ObserveInvocation(inv.Contract.Name, inv.Operation, metrics.RouteRelocated)

		task := i.dispatcher.Submit(execctx.Detach(ctx), func(ctx context.Context) (any, error) {
			return i.forward(ctx, inv)
		})
		return task.Wait()
	}

	i.metrics.ObserveInvocation(inv.Contract.Name, inv.Operation, metrics.RouteInline)
	return i.forward(ctx, inv)
}

// forward 通过代理的转发句柄执行调用，失败时解包一层
func forward(ctx context.Context, inv *types.Invocation) (result any, err error) {
	handle := inv.Target.ForwardingHandle()
	if handle == nil {
		return nil, types.ErrNoHandle
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, unwrap(inv, &types.TargetInvocationError{Target: r})
		}
	}()

	result, err = handle.Invoke(ctx, inv)
	if err != nil {
		return nil, unwrap(inv, err)
	}
	return result, nil
}

// unwrap 只剥掉最外层的 TargetInvocationError
func unwrap(inv *types.Invocation, err error) error {
	tie, ok := err.(*types.TargetInvocationError)
	if !ok {
		return err
	}
	if cause, ok := tie.Target.(error); ok {
		return cause
	}
	return &types.InvocationError{
		Contract:  inv.Contract.Name,
		Operation: inv.Operation,
		Cause:     tie.Target,
	}
}
