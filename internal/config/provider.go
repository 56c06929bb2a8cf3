package config

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"remoting/internal/utils"
)

// Provider 配置提供者，按添加顺序叠加到配置上
type Provider interface {
	Name() string
	Apply(cfg *Config) error
}

// FileProvider 文件配置提供者（yaml/json）
type FileProvider struct {
	Path string
	// Optional 为 true 时文件不存在不算错误
	Optional bool
}

// Name 返回提供者名称
func (p *FileProvider) Name() string {
	return "file:" + p.Path
}

// Apply 解析文件覆盖到配置上，文件中未出现的字段保持原值
func (p *FileProvider) Apply(cfg *Config) error {
	err := decodeFile(p.Path, cfg)
	if err != nil && p.Optional && isNotFound(err) {
		return nil
	}
	return err
}

// EnvProvider 环境变量配置提供者
type EnvProvider struct{}

// Name 返回提供者名称
func (EnvProvider) Name() string {
	return "env"
}

// Apply 应用环境变量覆盖
func (EnvProvider) Apply(cfg *Config) error {
	return LoadFromEnv(cfg)
}

// MemoryProvider 内存配置提供者，键结构与 yaml 一致（用于测试和嵌入式宿主）
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewMemoryProvider 创建内存配置提供者
func NewMemoryProvider(data map[string]interface{}) *MemoryProvider {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &MemoryProvider{data: data}
}

// Name 返回提供者名称
func (p *MemoryProvider) Name() string {
	return "memory"
}

// Set 设置顶层配置段
func (p *MemoryProvider) Set(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
}

// Apply 解码内存数据覆盖到配置上
func (p *MemoryProvider) Apply(cfg *Config) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return decodeMap(p.data, cfg)
}

// FromMap 以默认配置为基础解码 map
func FromMap(data map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()
	if err := decodeMap(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeMap(data map[string]interface{}, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       durationHook,
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigParseFailed, err)
	}
	return nil
}

// durationHook 支持 "30s" 字符串、整数纳秒和 time.Duration
func durationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, err
		}
		return Duration(d), nil
	case time.Duration:
		return Duration(v), nil
	case int:
		return Duration(v), nil
	case int64:
		return Duration(v), nil
	default:
		return data, nil
	}
}

// Manager 配置管理器
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	providers []Provider
	watchers  []func(*Config)
	logger    utils.Logger
}

// NewManager 创建配置管理器
func NewManager(logger utils.Logger) *Manager {
	if logger == nil {
		logger = utils.DefaultLogger
	}
	return &Manager{
		config: DefaultConfig(),
		logger: logger,
	}
}

// AddProvider 添加配置提供者
func (m *Manager) AddProvider(provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// Load 从默认配置开始依次应用所有提供者，验证通过后替换当前配置
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := DefaultConfig()
	for _, provider := range m.providers {
		if err := provider.Apply(cfg); err != nil {
			return nil, fmt.Errorf("provider %s: %w", provider.Name(), err)
		}
		m.logger.Debug("config provider applied", utils.String("provider", provider.Name()))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.config = cfg
	for _, watcher := range m.watchers {
		go watcher(cfg)
	}
	return cfg, nil
}

// Get 获取当前配置
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Watch 监听配置变化
func (m *Manager) Watch(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, callback)
}
