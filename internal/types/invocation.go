package types

import "context"

// ExecutionContext 调用所在执行上下文的分类
type ExecutionContext uint8

const (
	// Ordinary 普通工作上下文
	Ordinary ExecutionContext = iota
	// Privileged 唯一的特权上下文（UI/事件循环），不允许阻塞在网络 I/O 上
	Privileged
)

func (c ExecutionContext) String() string {
	if c == Privileged {
		return "privileged"
	}
	return "ordinary"
}

// Handle 底层转发机制，负责编组参数、网络往返和解组结果
type Handle interface {
	Invoke(ctx context.Context, inv *Invocation) (any, error)
}

// HandleFunc 函数形式的 Handle
type HandleFunc func(ctx context.Context, inv *Invocation) (any, error)

// Invoke 实现 Handle
func (f HandleFunc) Invoke(ctx context.Context, inv *Invocation) (any, error) {
	return f(ctx, inv)
}

// ServiceHolder 拦截器通过它取得服务代理的转发句柄
type ServiceHolder interface {
	ForwardingHandle() Handle
}

// Invocation 一次调用的瞬时描述，只在一次调度期间存在
type Invocation struct {
	ID        string
	Contract  Contract
	Operation string
	Args      []any
	// Reply 结果解码目标（指针），无返回值的操作为 nil
	Reply  any
	Target ServiceHolder
	// Proceed 代理自身操作的本地执行体
	Proceed func() (any, error)
}

// Signature 返回 契约.操作
func (inv *Invocation) Signature() string {
	return inv.Contract.Name + "." + inv.Operation
}
