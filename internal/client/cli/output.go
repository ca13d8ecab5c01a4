package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"syncio-client/internal/packet"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 彩色输出工具
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorEvent   = color.New(color.FgMagenta).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

// Output 提供结构化的输出接口
type Output struct {
	w io.Writer
}

// NewOutput 创建输出工具，w 为空时输出到 stdout
func NewOutput(w io.Writer, noColor bool) *Output {
	if w == nil {
		w = os.Stdout
	}
	if noColor {
		color.NoColor = true
	}
	return &Output{w: w}
}

// Success 输出成功消息
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorSuccess("[ok]"), fmt.Sprintf(format, args...))
}

// Error 输出错误消息
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorError("[error]"), fmt.Sprintf(format, args...))
}

// Warning 输出警告消息
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorWarning("[warn]"), fmt.Sprintf(format, args...))
}

// Info 输出信息消息
func (o *Output) Info(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorInfo("[info]"), fmt.Sprintf(format, args...))
}

// Plain 输出普通消息
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Header 输出标题
func (o *Output) Header(title string) {
	fmt.Fprintln(o.w)
	fmt.Fprintln(o.w, colorBold(title))
	fmt.Fprintln(o.w, strings.Repeat("━", len(title)))
}

// KeyValue 输出键值对
func (o *Output) KeyValue(key, value string) {
	fmt.Fprintf(o.w, "  %-20s %s\n", colorBold(key+":"), value)
}

// Packet 输出收到的数据包
func (o *Output) Packet(p packet.Packet) {
	body, err := json.Marshal(p)
	if err != nil {
		body = []byte(fmt.Sprintf("%v", p))
	}
	fmt.Fprintf(o.w, "%s %s %s\n", colorEvent("<<"), colorBold(p.PacketName()), body)
}
