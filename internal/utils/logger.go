package utils

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	// DEBUG 调试级别
	DEBUG LogLevel = iota
	// INFO 信息级别
	INFO
	// WARN 警告级别
	WARN
	// ERROR 错误级别
	ERROR
)

// String 返回级别名称
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析配置中的日志级别
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", s)
	}
}

// Field 日志字段
type Field struct {
	Key   string
	Value interface{}
}

// Logger 日志接口
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Log 以指定级别记录，作为诊断输出使用
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	SetLevel(level LogLevel)
}

// StructuredLogger 结构化日志实现
type StructuredLogger struct {
	mu       *sync.Mutex
	output   io.Writer
	level    LogLevel
	fields   []Field
	prefix   string
	colored  bool
	location bool // 是否记录调用位置
}

// LoggerOption 日志选项
type LoggerOption func(*StructuredLogger)

// NewLogger 创建新的日志记录器
func NewLogger(options ...LoggerOption) Logger {
	logger := &StructuredLogger{
		mu:      &sync.Mutex{},
		output:  os.Stdout,
		level:   INFO,
		colored: true,
	}

	for _, opt := range options {
		opt(logger)
	}

	return logger
}

// WithOutput 设置输出
func WithOutput(output io.Writer) LoggerOption {
	return func(l *StructuredLogger) {
		l.output = output
	}
}

// WithLevel 设置日志级别
func WithLevel(level LogLevel) LoggerOption {
	return func(l *StructuredLogger) {
		l.level = level
	}
}

// WithPrefix 设置前缀
func WithPrefix(prefix string) LoggerOption {
	return func(l *StructuredLogger) {
		l.prefix = prefix
	}
}

// WithoutColor 禁用颜色
func WithoutColor() LoggerOption {
	return func(l *StructuredLogger) {
		l.colored = false
	}
}

// WithLocation 启用位置记录
func WithLocation() LoggerOption {
	return func(l *StructuredLogger) {
		l.location = true
	}
}

// SetLevel 设置日志级别
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// WithFields 创建带字段的新日志器，与父日志器共用输出锁
func (l *StructuredLogger) WithFields(fields ...Field) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := *l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return &child
}

// Debug 记录调试日志
func (l *StructuredLogger) Debug(msg string, fields ...Field) {
	l.write(DEBUG, msg, fields)
}

// Info 记录信息日志
func (l *StructuredLogger) Info(msg string, fields ...Field) {
	l.write(INFO, msg, fields)
}

// Warn 记录警告日志
func (l *StructuredLogger) Warn(msg string, fields ...Field) {
	l.write(WARN, msg, fields)
}

// Error 记录错误日志
func (l *StructuredLogger) Error(msg string, fields ...Field) {
	l.write(ERROR, msg, fields)
}

// Log 以指定级别记录日志
func (l *StructuredLogger) Log(level LogLevel, msg string, fields ...Field) {
	l.write(level, msg, fields)
}

func (l *StructuredLogger) write(level LogLevel, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteByte(' ')
	if l.prefix != "" {
		sb.WriteString("[" + l.prefix + "] ")
	}
	sb.WriteString(l.levelTag(level))

	if l.location {
		// write <- Debug/Info/Log <- 调用方
		if _, file, line, ok := runtime.Caller(2); ok {
			if i := strings.LastIndexAny(file, `/\`); i >= 0 {
				file = file[i+1:]
			}
			fmt.Fprintf(&sb, " [%s:%d]", file, line)
		}
	}

	sb.WriteByte(' ')
	sb.WriteString(msg)

	all := append(append([]Field(nil), l.fields...), fields...)
	if len(all) > 0 {
		sb.WriteString(" {")
		for i, f := range all {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", f.Key, f.Value)
		}
		sb.WriteByte('}')
	}
	sb.WriteByte('\n')

	io.WriteString(l.output, sb.String())
}

// levelTag 获取级别标签
func (l *StructuredLogger) levelTag(level LogLevel) string {
	tag := "[" + level.String() + "]"
	if !l.colored {
		return tag
	}
	switch level {
	case DEBUG:
		return "\033[36m" + tag + "\033[0m" // 青色
	case INFO:
		return "\033[32m" + tag + "\033[0m" // 绿色
	case WARN:
		return "\033[33m" + tag + "\033[0m" // 黄色
	case ERROR:
		return "\033[31m" + tag + "\033[0m" // 红色
	default:
		return tag
	}
}

// String 字符串字段
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int 整数字段
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool 布尔字段
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// ErrorField 错误字段
func ErrorField(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration 时间字段
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// DefaultLogger 默认日志器
var DefaultLogger = NewLogger()

// SetDefaultLogger 设置默认日志器
func SetDefaultLogger(logger Logger) {
	DefaultLogger = logger
}
