package cli

import (
	"encoding/json"
	"fmt"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// 通用工具函数
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ParseValues 把命令参数解析为数组字段
// 合法的 JSON 字面量按 JSON 解析（数字、布尔、null、带引号的字符串、对象、数组），其余按原样作为字符串
func ParseValues(tokens []string) []any {
	values := make([]any, 0, len(tokens))
	for _, token := range tokens {
		var v any
		if err := json.Unmarshal([]byte(token), &v); err != nil {
			values = append(values, token)
			continue
		}
		values = append(values, v)
	}
	return values
}

// FormatDuration 格式化时长
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
