package proxy

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"remoting/internal/metrics"
	"remoting/internal/types"
	"remoting/internal/utils"
)

// 代理自身的操作，不属于任何服务契约
const (
	OpDescriptor = "Descriptor"
	OpLocation   = "Location"
	OpAddress    = "Address"
	OpService    = "Service"
)

var lifecycleContract = types.Contract{
	Name:       types.ProxyContractName,
	Operations: []string{OpDescriptor, OpLocation, OpAddress, OpService},
}

// ServiceProxy 所有类型化存根都暴露的代理自身操作
type ServiceProxy interface {
	Descriptor() types.ServiceDescriptor
	Location() types.RemoteLocation
	Address() string
	Service() string
}

type handleRef struct {
	handle types.Handle
}

// Proxy 服务代理，构建后只有转发句柄可以替换
type Proxy struct {
	descriptor  types.ServiceDescriptor
	location    types.RemoteLocation
	address     string
	handle      atomic.Pointer[handleRef]
	interceptor Invoker
	logger      utils.Logger
	metrics     *metrics.Metrics
}

var _ ServiceProxy = (*Proxy)(nil)

// ForwardingHandle 当前的转发句柄
func (p *Proxy) ForwardingHandle() types.Handle {
	if ref := p.handle.Load(); ref != nil {
		return ref.handle
	}
	return nil
}

// Rebind 替换转发句柄，进行中的调用继续使用旧句柄
func (p *Proxy) Rebind(handle types.Handle) {
	p.handle.Store(&handleRef{handle: handle})
	p.logger.Info("service proxy rebound", utils.String("address", p.address))
}

// Descriptor 服务描述
func (p *Proxy) Descriptor() types.ServiceDescriptor {
	return lifecycle(p, OpDescriptor, func() types.ServiceDescriptor { return cloneDescriptor(p.descriptor) })
}

// Location 远程位置
func (p *Proxy) Location() types.RemoteLocation {
	return lifecycle(p, OpLocation, func() types.RemoteLocation { return p.location })
}

// Address 构建时计算的远程地址
func (p *Proxy) Address() string {
	return lifecycle(p, OpAddress, func() string { return p.address })
}

// Service 服务名
func (p *Proxy) Service() string {
	return lifecycle(p, OpService, func() string { return p.descriptor.ServiceName })
}

// lifecycle 代理自身的操作同样经过拦截器，由拦截器决定在本地执行
func lifecycle[R any](p *Proxy, op string, local func() R) R {
	result, err := p.interceptor.Invoke(context.Background(), &types.Invocation{
		Contract:  lifecycleContract,
		Operation: op,
		Target:    p,
		Proceed:   func() (any, error) { return local(), nil },
	})
	if r, ok := result.(R); ok && err == nil {
		return r
	}
	return local()
}

// Call 调用有返回值的契约操作
func Call[R any](ctx context.Context, p *Proxy, op string, args ...any) (R, error) {
	var reply R
	result, err := p.interceptor.Invoke(ctx, p.invocation(op, args, &reply))
	if err != nil {
		var zero R
		return zero, p.fallback(ctx, op, err)
	}

	// 句柄可以把结果解码进 Reply，也可以直接返回值
	switch v := result.(type) {
	case nil:
	case *R:
		if v != nil {
			reply = *v
		}
	case R:
		reply = v
	default:
		var zero R
		return zero, &types.InvocationError{
			Contract:  p.descriptor.Contract.Name,
			Operation: op,
			Cause:     fmt.Errorf("unexpected result type %T, want %T", result, zero),
		}
	}
	return reply, nil
}

// CallVoid 调用无返回值的契约操作
func CallVoid(ctx context.Context, p *Proxy, op string, args ...any) error {
	if _, err := p.interceptor.Invoke(ctx, p.invocation(op, args, nil)); err != nil {
		return p.fallback(ctx, op, err)
	}
	return nil
}

func (p *Proxy) invocation(op string, args []any, reply any) *types.Invocation {
	return &types.Invocation{
		ID:        uuid.NewString(),
		Contract:  p.descriptor.Contract,
		Operation: op,
		Args:      args,
		Reply:     reply,
		Target:    p,
	}
}

// fallback 开启 DefaultValueOnError 时，通信失败返回零值，远程业务错误照常返回
// 调用方自己的 ctx 已结束时不算通信失败
func (p *Proxy) fallback(ctx context.Context, op string, err error) error {
	if !p.descriptor.DefaultValueOnError || !types.IsCommunicationError(err) || ctx.Err() != nil {
		return err
	}
	p.logger.Warn("remote call failed, returning default value",
		utils.String("service", p.descriptor.Contract.Name+"."+op),
		utils.String("address", p.address),
		utils.ErrorField(err))
	p.metrics.ObserveFallback(p.descriptor.Contract.Name, op)
	return nil
}
