package cmr_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remoting/internal/cmr"
	"remoting/internal/config"
	"remoting/internal/dispatch"
	"remoting/internal/execctx"
	"remoting/internal/protocol"
	"remoting/internal/proxy"
	"remoting/internal/transport"
	"remoting/internal/types"
	"remoting/internal/utils"
	"remoting/internal/worker"
)

// fakeCMR 模拟远程 CMR 进程
type fakeCMR struct {
	mu     sync.Mutex
	agents map[string]cmr.Agent
	paths  []string
}

func (f *fakeCMR) serve(codec protocol.Codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		req, err := codec.Decode(data)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var args []json.RawMessage
		_ = json.Unmarshal(req.Body, &args)

		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		resp := types.NewMessage(types.RESPONSE, req.ID, req.Service, req.Method)
		switch req.Method {
		case cmr.OpGetAgents:
			list := make([]cmr.Agent, 0, len(f.agents))
			for _, id := range []string{"a1", "a2"} {
				if a, ok := f.agents[id]; ok {
					list = append(list, a)
				}
			}
			resp.Body, _ = json.Marshal(list)
		case cmr.OpGetAgent, cmr.OpDeleteAgent:
			var id string
			_ = json.Unmarshal(args[0], &id)
			a, ok := f.agents[id]
			if !ok {
				resp.Metadata[types.MetaError] = "true"
				resp.Metadata[types.MetaErrorKind] = types.ErrorKindException
				resp.Body, _ = json.Marshal(types.RemoteOperationError{Type: "AgentNotFound", Message: id + " not found"})
			} else if req.Method == cmr.OpGetAgent {
				resp.Body, _ = json.Marshal(a)
			} else {
				delete(f.agents, id)
			}
		case cmr.OpGetStatus:
			resp.Body, _ = json.Marshal(cmr.Status{State: "RUNNING", Version: "2.0"})
		case cmr.OpIsAlive:
			resp.Body = []byte("true")
		}
		f.mu.Unlock()

		out, _ := codec.Encode(*resp)
		w.Write(out)
	})
}

type stack struct {
	builder *proxy.Builder
	loop    *execctx.Loop
	loc     types.RemoteLocation
	fake    *fakeCMR
}

func newStack(t *testing.T, codecName string) (*stack, protocol.Codec) {
	t.Helper()
	codec, err := protocol.NewCodec(codecName)
	require.NoError(t, err)

	fake := &fakeCMR{agents: map[string]cmr.Agent{
		"a1": {ID: "a1", Name: "checkout", IP: "10.0.0.21"},
		"a2": {ID: "a2", Name: "billing", IP: "10.0.0.22"},
	}}
	srv := httptest.NewServer(fake.serve(codec))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	quiet := utils.NewLogger(utils.WithOutput(io.Discard))
	cfg := config.DefaultConfig()
	cfg.Transport.RetryCount = 0
	client := transport.NewClient(cfg, transport.WithLogger(quiet))
	t.Cleanup(func() { client.Close() })

	pool := worker.NewPool(2, 4, worker.WithLogger(quiet))
	t.Cleanup(func() { pool.Close() })
	loop := execctx.NewLoop()
	t.Cleanup(loop.Close)

	ic := dispatch.NewInterceptor(pool,
		dispatch.WithDetector(loop.Detector()),
		dispatch.WithDiagnosticSink(quiet),
		dispatch.WithDevelopment(true))
	b := proxy.NewBuilder(ic, func(address string, codec protocol.Codec) (types.Handle, error) {
		return client.Handle(address, codec), nil
	}, proxy.WithLogger(quiet))

	return &stack{builder: b, loop: loop, loc: types.RemoteLocation{Host: host, Port: port}, fake: fake}, codec
}

// 测试探针存储端到端调用
func TestAgentStorage(t *testing.T) {
	for _, name := range []string{"json", "binary+zstd"} {
		t.Run(name, func(t *testing.T) {
			s, codec := newStack(t, name)
			agents, err := cmr.BuildAgentStorage(s.builder, s.loc, codec)
			require.NoError(t, err)
			assert.Equal(t, "http://"+s.loc.String()+"/remoting/AgentStorage", agents.Address())

			ctx := context.Background()
			list, err := agents.GetAgents(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "checkout", list[0].Name)

			// 特权上下文中的调用
			var (
				agent  cmr.Agent
				getErr error
			)
			require.NoError(t, s.loop.Sync(ctx, func(ctx context.Context) {
				agent, getErr = agents.GetAgent(ctx, "a2")
			}))
			require.NoError(t, getErr)
			assert.Equal(t, "billing", agent.Name)

			require.NoError(t, agents.DeleteAgent(ctx, "a1"))

			_, err = agents.GetAgent(ctx, "a1")
			var remote *types.RemoteOperationError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, "AgentNotFound", remote.Type)

			s.fake.mu.Lock()
			assert.Contains(t, s.fake.paths, "/remoting/AgentStorage")
			s.fake.mu.Unlock()
		})
	}
}

// 测试 CMR 不可达时探针列表为空
func TestAgentStorage_Unreachable(t *testing.T) {
	s, codec := newStack(t, "json")

	// 占用一个端口后立即释放，保证连接被拒绝
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	agents, err := cmr.BuildAgentStorage(s.builder, types.RemoteLocation{Host: "127.0.0.1", Port: port}, codec)
	require.NoError(t, err)

	list, err := agents.GetAgents(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, list)

	status, err := cmr.BuildServerStatus(s.builder, types.RemoteLocation{Host: "127.0.0.1", Port: port}, codec)
	require.NoError(t, err)
	_, err = status.IsAlive(context.Background())
	assert.True(t, types.IsCommunicationError(err))
}

// 测试调用方取消时不返回空列表
func TestAgentStorage_CallerCanceled(t *testing.T) {
	s, codec := newStack(t, "json")
	agents, err := cmr.BuildAgentStorage(s.builder, s.loc, codec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	list, err := agents.GetAgents(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, list)

	var loopErr error
	require.NoError(t, s.loop.Sync(ctx, func(ctx context.Context) {
		list, loopErr = agents.GetAgents(ctx)
	}))
	assert.ErrorIs(t, loopErr, context.Canceled)
	assert.Nil(t, list)

	// 同一代理在未取消的 ctx 上照常工作
	list, err = agents.GetAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// 测试服务器状态
func TestServerStatus(t *testing.T) {
	s, codec := newStack(t, "json+gzip")
	status, err := cmr.BuildServerStatus(s.builder, s.loc, codec)
	require.NoError(t, err)
	assert.Equal(t, cmr.ServerStatusService, status.Service())
	assert.False(t, status.Descriptor().DefaultValueOnError)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alive, err := status.IsAlive(ctx)
	require.NoError(t, err)
	assert.True(t, alive)

	var st cmr.Status
	require.NoError(t, s.loop.Sync(ctx, func(ctx context.Context) {
		st, err = status.GetStatus(ctx)
	}))
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", st.State)
}

// 测试契约描述
func TestDescriptors(t *testing.T) {
	require.NoError(t, cmr.AgentStorageContract.Validate())
	require.NoError(t, cmr.ServerStatusContract.Validate())
	assert.True(t, cmr.AgentStorageDescriptor().DefaultValueOnError)
	assert.Equal(t, cmr.ServerStatusService, cmr.ServerStatusDescriptor().ServiceName)
}
