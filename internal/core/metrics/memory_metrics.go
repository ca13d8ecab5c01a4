package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"syncio-client/internal/core/dispose"
)

// MemoryMetrics 内存指标实现
type MemoryMetrics struct {
	dispose.Dispose

	counters map[string]*atomic.Uint64 // float64 位模式
	gauges   map[string]float64
	mu       sync.RWMutex
}

// NewMemoryMetrics 创建内存指标收集器
func NewMemoryMetrics(parentCtx context.Context) *MemoryMetrics {
	m := &MemoryMetrics{
		counters: make(map[string]*atomic.Uint64),
		gauges:   make(map[string]float64),
	}
	m.SetCtx(parentCtx, nil)
	return m
}

// IncrementCounter 计数器加一
func (m *MemoryMetrics) IncrementCounter(name string, labels map[string]string) error {
	return m.AddCounter(name, 1, labels)
}

// AddCounter 计数器增加 value，value 必须非负
func (m *MemoryMetrics) AddCounter(name string, value float64, labels map[string]string) error {
	if value < 0 || math.IsNaN(value) {
		return fmt.Errorf("metrics: counter %s cannot decrease (got %v)", name, value)
	}
	counter := m.counter(BuildKey(name, labels))
	for {
		old := counter.Load()
		next := math.Float64bits(math.Float64frombits(old) + value)
		if counter.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// GetCounter 获取计数器值，不存在时为 0
func (m *MemoryMetrics) GetCounter(name string, labels map[string]string) (float64, error) {
	key := BuildKey(name, labels)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if counter, exists := m.counters[key]; exists {
		return math.Float64frombits(counter.Load()), nil
	}
	return 0, nil
}

// SetGauge 设置 Gauge 值
func (m *MemoryMetrics) SetGauge(name string, value float64, labels map[string]string) error {
	key := BuildKey(name, labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[key] = value
	return nil
}

// GetGauge 获取 Gauge 值，不存在时为 0
func (m *MemoryMetrics) GetGauge(name string, labels map[string]string) (float64, error) {
	key := BuildKey(name, labels)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[key], nil
}

// Snapshot 返回全部指标的副本，键为 BuildKey 生成的名称
func (m *MemoryMetrics) Snapshot() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.counters)+len(m.gauges))
	for key, counter := range m.counters {
		out[key] = math.Float64frombits(counter.Load())
	}
	for key, value := range m.gauges {
		out[key] = value
	}
	return out
}

func (m *MemoryMetrics) counter(key string) *atomic.Uint64 {
	m.mu.RLock()
	counter, exists := m.counters[key]
	m.mu.RUnlock()
	if exists {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if counter, exists = m.counters[key]; !exists {
		counter = &atomic.Uint64{}
		m.counters[key] = counter
	}
	return counter
}

// BuildKey 构建指标键名，标签按键名排序
func BuildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := name
	for _, k := range keys {
		key = fmt.Sprintf("%s{%s=%s}", key, k, labels[k])
	}
	return key
}
