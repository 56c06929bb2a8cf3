package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"remoting/internal/utils"
)

// Duration 自定义Duration类型，支持JSON/YAML中的 "30s" 写法
type Duration time.Duration

// UnmarshalJSON 实现JSON反序列化
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON 实现JSON序列化
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML 实现YAML反序列化
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	dur, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML 实现YAML序列化
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std 转换为 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RemotingConfig 远程调用配置
type RemotingConfig struct {
	// Scheme 地址协议，http 或 https
	Scheme string `yaml:"scheme" json:"scheme" env:"REMOTING_SCHEME"`
	// Codec 编解码器名称，如 json、binary、json+zstd
	Codec string `yaml:"codec" json:"codec" env:"REMOTING_CODEC"`
}

// TransportConfig 传输层配置
type TransportConfig struct {
	Timeout         Duration `yaml:"timeout" json:"timeout" env:"REMOTING_TRANSPORT_TIMEOUT"`
	RetryCount      int      `yaml:"retry_count" json:"retry_count" env:"REMOTING_TRANSPORT_RETRY_COUNT"`
	InitialBackoff  Duration `yaml:"initial_backoff" json:"initial_backoff" env:"REMOTING_TRANSPORT_INITIAL_BACKOFF"`
	MaxBackoff      Duration `yaml:"max_backoff" json:"max_backoff" env:"REMOTING_TRANSPORT_MAX_BACKOFF"`
	MaxIdleConns    int      `yaml:"max_idle_conns" json:"max_idle_conns" env:"REMOTING_TRANSPORT_MAX_IDLE_CONNS"`
	IdleConnTimeout Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout" env:"REMOTING_TRANSPORT_IDLE_CONN_TIMEOUT"`
}

// DispatchConfig 工作池配置
type DispatchConfig struct {
	Workers   int `yaml:"workers" json:"workers" env:"REMOTING_DISPATCH_WORKERS"`
	QueueSize int `yaml:"queue_size" json:"queue_size" env:"REMOTING_DISPATCH_QUEUE_SIZE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled" env:"REMOTING_METRICS_ENABLED"`
	Namespace string `yaml:"namespace" json:"namespace" env:"REMOTING_METRICS_NAMESPACE"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"REMOTING_TRACING_ENABLED"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level        string `yaml:"level" json:"level" env:"REMOTING_LOG_LEVEL"`
	Output       string `yaml:"output" json:"output" env:"REMOTING_LOG_OUTPUT"`
	WithColor    bool   `yaml:"with_color" json:"with_color" env:"REMOTING_LOG_WITH_COLOR"`
	WithLocation bool   `yaml:"with_location" json:"with_location" env:"REMOTING_LOG_WITH_LOCATION"`
}

// Config 主配置结构
type Config struct {
	Remoting  RemotingConfig  `yaml:"remoting" json:"remoting"`
	Transport TransportConfig `yaml:"transport" json:"transport"`
	Dispatch  DispatchConfig  `yaml:"dispatch" json:"dispatch"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Mode      string          `yaml:"mode" json:"mode" env:"REMOTING_MODE"` // debug/release/test
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Remoting: RemotingConfig{
			Scheme: "http",
			Codec:  "json",
		},
		Transport: TransportConfig{
			Timeout:         Duration(30 * time.Second),
			RetryCount:      2,
			InitialBackoff:  Duration(100 * time.Millisecond),
			MaxBackoff:      Duration(2 * time.Second),
			MaxIdleConns:    16,
			IdleConnTimeout: Duration(90 * time.Second),
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "remoting",
		},
		Log: LogConfig{
			Level:     "info",
			Output:    "stdout",
			WithColor: true,
		},
		Mode: "release",
	}
}

// IsDevelopment 开发模式下会对特权上下文中的服务调用给出诊断
func (c *Config) IsDevelopment() bool {
	return c.Mode == "debug"
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Remoting.Scheme != "http" && c.Remoting.Scheme != "https" {
		return fmt.Errorf("%w: remoting scheme must be http or https, got %q", ErrInvalidConfig, c.Remoting.Scheme)
	}
	if c.Remoting.Codec == "" {
		return fmt.Errorf("%w: remoting codec cannot be empty", ErrInvalidConfig)
	}

	if c.Transport.Timeout <= 0 {
		return fmt.Errorf("%w: transport timeout must be positive", ErrInvalidConfig)
	}
	if c.Transport.RetryCount < 0 {
		return fmt.Errorf("%w: transport retry count cannot be negative", ErrInvalidConfig)
	}
	if c.Transport.InitialBackoff < 0 || c.Transport.MaxBackoff < c.Transport.InitialBackoff {
		return fmt.Errorf("%w: transport backoff must satisfy 0 <= initial <= max", ErrInvalidConfig)
	}

	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("%w: dispatch workers must be positive", ErrInvalidConfig)
	}
	if c.Dispatch.QueueSize < 0 {
		return fmt.Errorf("%w: dispatch queue size cannot be negative", ErrInvalidConfig)
	}

	if _, err := utils.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: invalid log level: %s", ErrInvalidConfig, c.Log.Level)
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Mode] {
		return fmt.Errorf("%w: invalid mode: %s", ErrInvalidConfig, c.Mode)
	}

	return nil
}

// LoadFromFile 从文件加载配置，之后应用环境变量覆盖
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := (&FileProvider{Path: path}).Apply(cfg); err != nil {
		return nil, err
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile 根据扩展名解析配置文件
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: yaml: %v", ErrConfigParseFailed, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: json: %v", ErrConfigParseFailed, err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file format: %s", ErrConfigParseFailed, ext)
	}
	return nil
}

// LoadFromEnv 从环境变量加载配置
func LoadFromEnv(config *Config) error {
	return loadStructFromEnv(reflect.ValueOf(config).Elem())
}

// loadStructFromEnv 递归从环境变量加载结构体
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		envTag := fieldType.Tag.Get("env")

		// 处理嵌套结构体
		if field.Kind() == reflect.Struct && envTag == "" {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		if envTag == "" {
			continue
		}
		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(envValue)
		case reflect.Int, reflect.Int64:
			if field.Type() == reflect.TypeOf(Duration(0)) {
				duration, err := time.ParseDuration(envValue)
				if err != nil {
					return fmt.Errorf("invalid duration for %s: %w", envTag, err)
				}
				field.SetInt(int64(duration))
			} else {
				intValue, err := strconv.ParseInt(envValue, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid int for %s: %w", envTag, err)
				}
				field.SetInt(intValue)
			}
		case reflect.Float64:
			floatValue, err := strconv.ParseFloat(envValue, 64)
			if err != nil {
				return fmt.Errorf("invalid float for %s: %w", envTag, err)
			}
			field.SetFloat(floatValue)
		case reflect.Bool:
			boolValue, err := strconv.ParseBool(envValue)
			if err != nil {
				return fmt.Errorf("invalid bool for %s: %w", envTag, err)
			}
			field.SetBool(boolValue)
		}
	}

	return nil
}
