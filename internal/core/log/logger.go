// Package log 提供统一的日志接口和实现
// 组件通过 Logger 接口记录日志，测试时可注入 NopLogger / TestLogger
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger 日志接口
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// 带字段的日志
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger
}

// Config 日志配置
type Config struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
	File   string `json:"file" yaml:"file"`     // 为空时输出到 stderr
}

// ============================================================================
// logrusLogger - 基于 logrus 的 Logger 实现
// ============================================================================

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger 创建基于 logrus 的 Logger
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}

func (l *logrusLogger) WithContext(ctx context.Context) Logger {
	return &logrusLogger{entry: l.entry.WithContext(ctx)}
}

// ============================================================================
// NopLogger - 静默日志（用于测试）
// ============================================================================

// NopLogger 静默日志，不输出任何内容
type NopLogger struct{}

func (NopLogger) Debug(args ...interface{})                         {}
func (NopLogger) Info(args ...interface{})                          {}
func (NopLogger) Warn(args ...interface{})                          {}
func (NopLogger) Error(args ...interface{})                         {}
func (NopLogger) Debugf(format string, args ...interface{})         {}
func (NopLogger) Infof(format string, args ...interface{})          {}
func (NopLogger) Warnf(format string, args ...interface{})          {}
func (NopLogger) Errorf(format string, args ...interface{})         {}
func (n NopLogger) WithField(key string, value interface{}) Logger  { return n }
func (n NopLogger) WithFields(fields map[string]interface{}) Logger { return n }
func (n NopLogger) WithError(err error) Logger                      { return n }
func (n NopLogger) WithContext(ctx context.Context) Logger          { return n }

// NewNopLogger 创建静默日志
func NewNopLogger() Logger {
	return NopLogger{}
}

// ============================================================================
// TestLogger - 测试日志（输出到 testing.T）
// ============================================================================

// TestingT 测试接口（兼容 *testing.T）
type TestingT interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
}

// TestLogger 测试日志，输出到 testing.T
type TestLogger struct {
	t      TestingT
	fields map[string]interface{}
}

// NewTestLogger 创建测试日志
func NewTestLogger(t TestingT) Logger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Debug(args ...interface{}) { l.log("[DEBUG]", args...) }
func (l *TestLogger) Info(args ...interface{})  { l.log("[INFO]", args...) }
func (l *TestLogger) Warn(args ...interface{})  { l.log("[WARN]", args...) }
func (l *TestLogger) Error(args ...interface{}) { l.log("[ERROR]", args...) }

func (l *TestLogger) Debugf(format string, args ...interface{}) {
	l.t.Logf("[DEBUG] "+format, args...)
}

func (l *TestLogger) Infof(format string, args ...interface{}) {
	l.t.Logf("[INFO] "+format, args...)
}

func (l *TestLogger) Warnf(format string, args ...interface{}) {
	l.t.Logf("[WARN] "+format, args...)
}

func (l *TestLogger) Errorf(format string, args ...interface{}) {
	l.t.Logf("[ERROR] "+format, args...)
}

func (l *TestLogger) log(level string, args ...interface{}) {
	l.t.Log(append([]interface{}{level}, args...)...)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

func (l *TestLogger) WithError(err error) Logger {
	return l.WithField("error", err)
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

// ============================================================================
// 默认 Logger 管理
// ============================================================================

var (
	defaultLogger     Logger
	defaultLoggerOnce sync.Once
	defaultLoggerMu   sync.RWMutex
	currentLogFile    *os.File
)

// initDefaultLogger 初始化默认 Logger，未配置前只输出警告以上级别
func initDefaultLogger() {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	defaultLogger = NewLogrusLogger(l)
}

// Default 获取默认 Logger
func Default() Logger {
	defaultLoggerOnce.Do(initDefaultLogger)
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefault 设置默认 Logger
func SetDefault(l Logger) {
	defaultLoggerOnce.Do(initDefaultLogger)
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// SetDefaultFromLogrus 从 logrus.Logger 设置默认 Logger
func SetDefaultFromLogrus(l *logrus.Logger) {
	SetDefault(NewLogrusLogger(l))
}

// NewLogrus 按配置构建 logrus.Logger
// 返回的 io.Closer 用于关闭日志文件（输出到 stderr 时为 nil）
func NewLogrus(cfg Config) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, nil, err
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	if cfg.File == "" {
		l.SetOutput(os.Stderr)
		return l, nil, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	l.SetOutput(f)
	return l, f, nil
}

// Configure 按配置替换默认 Logger
func Configure(cfg Config) error {
	l, closer, err := NewLogrus(cfg)
	if err != nil {
		return err
	}

	defaultLoggerMu.Lock()
	prev := currentLogFile
	if f, ok := closer.(*os.File); ok {
		currentLogFile = f
	} else {
		currentLogFile = nil
	}
	defaultLoggerMu.Unlock()

	SetDefaultFromLogrus(l)
	if prev != nil {
		prev.Close()
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
