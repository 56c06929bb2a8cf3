package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remoting/internal/config"
	"remoting/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试默认配置
func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "http", cfg.Remoting.Scheme)
	assert.Equal(t, "json", cfg.Remoting.Codec)
	assert.Equal(t, config.Duration(30*time.Second), cfg.Transport.Timeout)
	assert.Equal(t, 2, cfg.Transport.RetryCount)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 64, cfg.Dispatch.QueueSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "release", cfg.Mode)
	assert.False(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

// 测试配置验证
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr bool
	}{
		{"有效配置", func(c *config.Config) {}, false},
		{"https", func(c *config.Config) { c.Remoting.Scheme = "https" }, false},
		{"无效协议", func(c *config.Config) { c.Remoting.Scheme = "ftp" }, true},
		{"空编解码器", func(c *config.Config) { c.Remoting.Codec = "" }, true},
		{"无效传输超时", func(c *config.Config) { c.Transport.Timeout = 0 }, true},
		{"负重试次数", func(c *config.Config) { c.Transport.RetryCount = -1 }, true},
		{"退避倒置", func(c *config.Config) {
			c.Transport.InitialBackoff = config.Duration(time.Second)
			c.Transport.MaxBackoff = config.Duration(time.Millisecond)
		}, true},
		{"零工作协程", func(c *config.Config) { c.Dispatch.Workers = 0 }, true},
		{"负队列", func(c *config.Config) { c.Dispatch.QueueSize = -1 }, true},
		{"无效日志级别", func(c *config.Config) { c.Log.Level = "verbose" }, true},
		{"warning级别", func(c *config.Config) { c.Log.Level = "warning" }, false},
		{"大写级别", func(c *config.Config) { c.Log.Level = "WARN" }, false},
		{"无效模式", func(c *config.Config) { c.Mode = "prod" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// 配置验证与日志器接受同一组级别名称
func TestValidate_LogLevelsMatchLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "Error", "trace", "fatal"} {
		t.Run(level, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Log.Level = level
			_, parseErr := utils.ParseLevel(level)
			assert.Equal(t, parseErr == nil, cfg.Validate() == nil)
		})
	}
}

// 测试从文件加载
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "remoting.yaml")
		content := `
remoting:
  scheme: https
  codec: json+zstd
transport:
  timeout: 5s
  retry_count: 1
dispatch:
  workers: 2
mode: debug
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "https", cfg.Remoting.Scheme)
		assert.Equal(t, "json+zstd", cfg.Remoting.Codec)
		assert.Equal(t, 5*time.Second, cfg.Transport.Timeout.Std())
		assert.Equal(t, 1, cfg.Transport.RetryCount)
		assert.Equal(t, 2, cfg.Dispatch.Workers)
		// 未出现的字段保持默认值
		assert.Equal(t, 64, cfg.Dispatch.QueueSize)
		assert.True(t, cfg.IsDevelopment())
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "remoting.json")
		content := `{"transport": {"timeout": "2s"}, "log": {"level": "debug"}}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := config.LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, cfg.Transport.Timeout.Std())
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := config.LoadFromFile(filepath.Join(dir, "missing.yaml"))
		assert.ErrorIs(t, err, config.ErrConfigFileNotFound)
	})

	t.Run("不支持的格式", func(t *testing.T) {
		path := filepath.Join(dir, "remoting.toml")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		_, err := config.LoadFromFile(path)
		assert.ErrorIs(t, err, config.ErrConfigParseFailed)
	})

	t.Run("非法时长", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("transport:\n  timeout: soon\n"), 0o644))
		_, err := config.LoadFromFile(path)
		assert.Error(t, err)
	})
}

// 测试环境变量覆盖
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REMOTING_SCHEME", "https")
	t.Setenv("REMOTING_TRANSPORT_TIMEOUT", "750ms")
	t.Setenv("REMOTING_DISPATCH_WORKERS", "8")
	t.Setenv("REMOTING_METRICS_ENABLED", "false")
	t.Setenv("REMOTING_MODE", "test")

	cfg := config.DefaultConfig()
	require.NoError(t, config.LoadFromEnv(cfg))

	assert.Equal(t, "https", cfg.Remoting.Scheme)
	assert.Equal(t, 750*time.Millisecond, cfg.Transport.Timeout.Std())
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "test", cfg.Mode)

	t.Run("非法整数", func(t *testing.T) {
		t.Setenv("REMOTING_DISPATCH_WORKERS", "many")
		assert.Error(t, config.LoadFromEnv(config.DefaultConfig()))
	})
}

// 测试 map 解码
func TestFromMap(t *testing.T) {
	cfg, err := config.FromMap(map[string]interface{}{
		"remoting": map[string]interface{}{"codec": "binary+lz4"},
		"transport": map[string]interface{}{
			"timeout":     "3s",
			"max_backoff": 5 * time.Second,
			"retry_count": "4",
		},
		"mode": "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "binary+lz4", cfg.Remoting.Codec)
	assert.Equal(t, "http", cfg.Remoting.Scheme)
	assert.Equal(t, 3*time.Second, cfg.Transport.Timeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Transport.MaxBackoff.Std())
	assert.Equal(t, 4, cfg.Transport.RetryCount)
	assert.True(t, cfg.IsDevelopment())

	t.Run("未知键", func(t *testing.T) {
		_, err := config.FromMap(map[string]interface{}{"registry": map[string]interface{}{}})
		assert.ErrorIs(t, err, config.ErrConfigParseFailed)
	})
}

// 测试配置管理器
func TestManager(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "remoting.yml")
	require.NoError(t, os.WriteFile(path, []byte("dispatch:\n  workers: 3\nmode: test\n"), 0o644))

	t.Setenv("REMOTING_DISPATCH_QUEUE_SIZE", "7")

	memory := config.NewMemoryProvider(nil)
	memory.Set("mode", "debug")

	m := config.NewManager(utils.NewLogger(utils.WithOutput(&discard{})))
	m.AddProvider(&config.FileProvider{Path: path})
	m.AddProvider(memory)
	m.AddProvider(config.EnvProvider{})
	m.AddProvider(&config.FileProvider{Path: filepath.Join(dir, "absent.yml"), Optional: true})

	var wg sync.WaitGroup
	wg.Add(1)
	var notified *config.Config
	m.Watch(func(c *config.Config) {
		notified = c
		wg.Done()
	})

	cfg, err := m.Load()
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, 3, cfg.Dispatch.Workers)
	assert.Equal(t, 7, cfg.Dispatch.QueueSize)
	// 后添加的提供者覆盖先添加的
	assert.Equal(t, "debug", cfg.Mode)
	assert.Same(t, cfg, m.Get())
	assert.Same(t, cfg, notified)

	t.Run("无效结果不替换当前配置", func(t *testing.T) {
		memory.Set("mode", "prod")
		_, err := m.Load()
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
		assert.Same(t, cfg, m.Get())
	})
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
