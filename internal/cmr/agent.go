// Package cmr 中心管理仓库（CMR）对外提供的服务契约
package cmr

import (
	"context"
	"time"

	"remoting/internal/protocol"
	"remoting/internal/proxy"
	"remoting/internal/types"
)

// AgentStorage 契约
const (
	AgentStorageService = "AgentStorage"

	OpGetAgents   = "GetAgents"
	OpGetAgent    = "GetAgent"
	OpDeleteAgent = "DeleteAgent"
)

// Agent 已连接的探针
type Agent struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IP       string    `json:"ip"`
	Version  string    `json:"version"`
	LastSeen time.Time `json:"lastSeen"`
}

// AgentStorageContract 探针存储契约
var AgentStorageContract = types.Contract{
	Name:       AgentStorageService,
	Operations: []string{OpGetAgents, OpGetAgent, OpDeleteAgent},
}

// AgentStorageDescriptor 探针列表在 CMR 不可达时按空处理
func AgentStorageDescriptor() types.ServiceDescriptor {
	return types.ServiceDescriptor{
		Contract:            AgentStorageContract,
		ServiceName:         AgentStorageService,
		DefaultValueOnError: true,
	}
}

// AgentStorage 探针存储服务
type AgentStorage interface {
	proxy.ServiceProxy
	GetAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
	DeleteAgent(ctx context.Context, id string) error
}

type agentStorage struct {
	*proxy.Proxy
}

// NewAgentStorage 绑定代理
func NewAgentStorage(p *proxy.Proxy) AgentStorage {
	return agentStorage{Proxy: p}
}

// BuildAgentStorage 构建探针存储服务代理
func BuildAgentStorage(b *proxy.Builder, loc types.RemoteLocation, codec protocol.Codec) (AgentStorage, error) {
	return proxy.Build(b, loc, AgentStorageDescriptor(), codec, NewAgentStorage)
}

func (s agentStorage) GetAgents(ctx context.Context) ([]Agent, error) {
	return proxy.Call[[]Agent](ctx, s.Proxy, OpGetAgents)
}

func (s agentStorage) GetAgent(ctx context.Context, id string) (Agent, error) {
	return proxy.Call[Agent](ctx, s.Proxy, OpGetAgent, id)
}

func (s agentStorage) DeleteAgent(ctx context.Context, id string) error {
	return proxy.CallVoid(ctx, s.Proxy, OpDeleteAgent, id)
}
