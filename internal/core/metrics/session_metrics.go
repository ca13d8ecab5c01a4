package metrics

// 会话指标名称
const (
	PacketsSent       = "packets_sent"        // 标签 channel=tcp|udp
	PacketsReceived   = "packets_received"    // 标签 channel=tcp|udp
	DatagramsDropped  = "datagrams_dropped"   // 速率限制丢弃
	Handshakes        = "handshakes"          // 标签 result
	UDPHandshakes     = "udp_handshakes"      // 标签 result
	Disconnects       = "disconnects"         // 标签 reason=closed|error
	RemoteCallsFailed = "remote_calls_failed" // 连接拆除时被终止的调用
	ConnectedGauge    = "connected"           // 1 已连接 / 0 未连接
)

// ChannelLabels 通道标签
func ChannelLabels(channel string) map[string]string {
	return map[string]string{"channel": channel}
}

// ResultLabels 结果标签
func ResultLabels(result string) map[string]string {
	return map[string]string{"result": result}
}

// Inc 计数器加一，m 为 nil 时忽略
func Inc(m Metrics, name string, labels map[string]string) {
	if m == nil {
		return
	}
	_ = m.IncrementCounter(name, labels)
}

// Add 计数器增加 value，m 为 nil 时忽略
func Add(m Metrics, name string, value float64, labels map[string]string) {
	if m == nil {
		return
	}
	_ = m.AddCounter(name, value, labels)
}

// Set 设置 Gauge，m 为 nil 时忽略
func Set(m Metrics, name string, value float64, labels map[string]string) {
	if m == nil {
		return
	}
	_ = m.SetGauge(name, value, labels)
}

// Counter 读取计数器，m 为 nil 时返回 0
func Counter(m Metrics, name string, labels map[string]string) float64 {
	if m == nil {
		return 0
	}
	v, _ := m.GetCounter(name, labels)
	return v
}
