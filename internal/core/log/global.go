package log

// ============================================================================
// 全局便捷函数（内部调用 Default()）
// ============================================================================

// Debugf 记录格式化调试日志
func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

// Infof 记录格式化信息日志
func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

// Warnf 记录格式化警告日志
func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

// Errorf 记录格式化错误日志
func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}

// WithField 创建带字段的日志
func WithField(key string, value interface{}) Logger {
	return Default().WithField(key, value)
}

// WithError 创建带错误的日志
func WithError(err error) Logger {
	return Default().WithError(err)
}

// OrDefault 返回 l，l 为 nil 时返回默认 Logger
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}
