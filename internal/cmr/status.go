package cmr

import (
	"context"
	"time"

	"remoting/internal/protocol"
	"remoting/internal/proxy"
	"remoting/internal/types"
)

// ServerStatus 契约
const (
	ServerStatusService = "ServerStatus"

	OpGetStatus = "GetStatus"
	OpIsAlive   = "IsAlive"
)

// Status CMR 运行状态
type Status struct {
	State   string    `json:"state"`
	Version string    `json:"version"`
	Started time.Time `json:"started"`
}

// ServerStatusContract 服务器状态契约
var ServerStatusContract = types.Contract{
	Name:       ServerStatusService,
	Operations: []string{OpGetStatus, OpIsAlive},
}

// ServerStatusDescriptor 状态查询失败需要让调用方知道，不使用默认值
func ServerStatusDescriptor() types.ServiceDescriptor {
	return types.ServiceDescriptor{
		Contract:    ServerStatusContract,
		ServiceName: ServerStatusService,
	}
}

// ServerStatus 服务器状态服务
type ServerStatus interface {
	proxy.ServiceProxy
	GetStatus(ctx context.Context) (Status, error)
	IsAlive(ctx context.Context) (bool, error)
}

type serverStatus struct {
	*proxy.Proxy
}

// NewServerStatus 绑定代理
func NewServerStatus(p *proxy.Proxy) ServerStatus {
	return serverStatus{Proxy: p}
}

// BuildServerStatus 构建服务器状态服务代理
func BuildServerStatus(b *proxy.Builder, loc types.RemoteLocation, codec protocol.Codec) (ServerStatus, error) {
	return proxy.Build(b, loc, ServerStatusDescriptor(), codec, NewServerStatus)
}

func (s serverStatus) GetStatus(ctx context.Context) (Status, error) {
	return proxy.Call[Status](ctx, s.Proxy, OpGetStatus)
}

func (s serverStatus) IsAlive(ctx context.Context) (bool, error) {
	return proxy.Call[bool](ctx, s.Proxy, OpIsAlive)
}
