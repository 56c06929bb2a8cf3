package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"remoting/internal/cmr"
	"remoting/internal/types"
	"remoting/internal/utils"
	"remoting/pkg"
)

// MockServerStatus 模拟状态服务存根
type MockServerStatus struct {
	mock.Mock
}

func (m *MockServerStatus) Descriptor() types.ServiceDescriptor {
	return cmr.ServerStatusDescriptor()
}
func (m *MockServerStatus) Location() types.RemoteLocation {
	return types.RemoteLocation{Host: "cmr", Port: 8080}
}
func (m *MockServerStatus) Address() string { return "http://cmr:8080/remoting/ServerStatus" }
func (m *MockServerStatus) Service() string { return cmr.ServerStatusService }

func (m *MockServerStatus) GetStatus(ctx context.Context) (cmr.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(cmr.Status), args.Error(1)
}

func (m *MockServerStatus) IsAlive(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// MockClient 模拟客户端关闭
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Close() error { return m.Called().Error(0) }

func quiet() utils.Logger {
	return utils.NewLogger(utils.WithOutput(io.Discard))
}

func TestProbe(t *testing.T) {
	loop := pkg.NewLoop()
	defer loop.Close()
	privileged := loop.Detector()

	t.Run("普通与特权上下文", func(t *testing.T) {
		status := &MockServerStatus{}
		status.On("GetStatus", mock.Anything).Return(cmr.Status{State: "RUNNING"}, nil).Run(func(args mock.Arguments) {
			assert.False(t, privileged.IsPrivileged(args.Get(0).(context.Context)))
		})
		status.On("IsAlive", mock.Anything).Return(true, nil).Run(func(args mock.Arguments) {
			assert.True(t, privileged.IsPrivileged(args.Get(0).(context.Context)))
		})

		p := &prober{status: status, loop: loop, logger: quiet()}
		require.NoError(t, p.probe(context.Background()))
		status.AssertExpectations(t)
	})

	t.Run("GetStatus失败不再调用IsAlive", func(t *testing.T) {
		boom := &types.CommunicationError{Op: "invoke", Cause: errors.New("refused")}
		status := &MockServerStatus{}
		status.On("GetStatus", mock.Anything).Return(cmr.Status{}, boom)

		p := &prober{status: status, loop: loop, logger: quiet()}
		assert.ErrorIs(t, p.probe(context.Background()), boom)
		status.AssertNotCalled(t, "IsAlive", mock.Anything)
	})

	t.Run("IsAlive失败", func(t *testing.T) {
		boom := errors.New("down")
		status := &MockServerStatus{}
		status.On("GetStatus", mock.Anything).Return(cmr.Status{State: "RUNNING"}, nil)
		status.On("IsAlive", mock.Anything).Return(false, boom)

		p := &prober{status: status, loop: loop, logger: quiet()}
		assert.ErrorIs(t, p.probe(context.Background()), boom)
	})
}

func TestRun(t *testing.T) {
	loop := pkg.NewLoop()
	defer loop.Close()

	status := &MockServerStatus{}
	status.On("GetStatus", mock.Anything).Return(cmr.Status{State: "RUNNING"}, nil)
	probed := make(chan struct{}, 1)
	status.On("IsAlive", mock.Anything).Return(true, nil).Run(func(mock.Arguments) {
		select {
		case probed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, &prober{status: status, loop: loop, logger: quiet()}, time.Millisecond)
	}()

	select {
	case <-probed:
	case <-time.After(time.Second):
		t.Fatal("未执行探测")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("探测循环未退出")
	}
}

func TestMainShutdown(t *testing.T) {
	t.Run("正常关闭", func(t *testing.T) {
		client := &MockClient{}
		client.On("Close").Return(nil)
		loop := pkg.NewLoop()

		shutdown(client, loop, quiet())

		client.AssertCalled(t, "Close")
		assert.Error(t, loop.Sync(context.Background(), func(context.Context) {}))
	})

	t.Run("客户端关闭失败仍关闭事件循环", func(t *testing.T) {
		client := &MockClient{}
		client.On("Close").Return(errors.New("busy"))
		loop := pkg.NewLoop()

		shutdown(client, loop, quiet())

		client.AssertCalled(t, "Close")
		assert.Error(t, loop.Sync(context.Background(), func(context.Context) {}))
	})
}

// TestStartupParameters 验证启动参数解析功能
func TestStartupParameters(t *testing.T) {
	originalArgs := os.Args
	originalFlagSet := flag.CommandLine
	defer func() {
		os.Args = originalArgs
		flag.CommandLine = originalFlagSet
	}()

	os.Args = []string{"main", "--config", "../configs/test_config.yaml", "--host", "cmr.local", "--port", "9090", "--service", "Status2", "--interval", "1s"}
	flag.CommandLine = flag.NewFlagSet("main", flag.ExitOnError)
	opts := parseFlags()
	assert.Equal(t, "../configs/test_config.yaml", opts.configPath)
	assert.Equal(t, "cmr.local", opts.host)
	assert.Equal(t, 9090, opts.port)
	assert.Equal(t, "Status2", opts.service)
	assert.Equal(t, time.Second, opts.interval)

	os.Args = []string{"main"}
	flag.CommandLine = flag.NewFlagSet("main", flag.ExitOnError)
	opts = parseFlags()
	assert.Equal(t, "configs/default.yml", opts.configPath)
	assert.Equal(t, cmr.ServerStatusService, opts.service)
}

func TestLoadConfig(t *testing.T) {
	t.Run("文件不存在使用默认配置", func(t *testing.T) {
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yml"), quiet())
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.Remoting.Codec)
	})

	t.Run("文件覆盖默认配置", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "probe.yml")
		require.NoError(t, os.WriteFile(path, []byte("remoting:\n  codec: binary+zstd\nmode: debug\n"), 0o644))

		cfg, err := loadConfig(path, quiet())
		require.NoError(t, err)
		assert.Equal(t, "binary+zstd", cfg.Remoting.Codec)
		assert.True(t, cfg.IsDevelopment())
		assert.Equal(t, "http", cfg.Remoting.Scheme)
	})

	t.Run("配置无效", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte("dispatch:\n  workers: 0\n"), 0o644))

		_, err := loadConfig(path, quiet())
		assert.Error(t, err)
	})
}
