package metrics

// Metrics 指标收集接口
// 目前只有内存实现，接口保持与 Prometheus 客户端相近的形状
type Metrics interface {
	// Counter 操作
	IncrementCounter(name string, labels map[string]string) error
	AddCounter(name string, value float64, labels map[string]string) error
	GetCounter(name string, labels map[string]string) (float64, error)

	// Gauge 操作
	SetGauge(name string, value float64, labels map[string]string) error
	GetGauge(name string, labels map[string]string) (float64, error)

	// 关闭指标收集器
	Close() error
}
