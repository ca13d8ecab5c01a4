package cli

import (
	"strings"

	"github.com/chzyer/readline"
)

// BuildCompleter 构建 readline 补全器
func BuildCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("status"),
		readline.PcItem("send"),
		readline.PcItem("udp"),
		readline.PcItem("call"),
		readline.PcItem("open-udp"),
		readline.PcItem("reconfirm"),
	)
}

// FilterCommands 过滤匹配前缀的命令
func FilterCommands(prefix string, commands []string) []string {
	prefix = strings.ToLower(prefix)
	matches := make([]string, 0)
	for _, cmd := range commands {
		if strings.HasPrefix(strings.ToLower(cmd), prefix) {
			matches = append(matches, cmd)
		}
	}
	return matches
}

// GetAllCommands 获取所有命令及别名
func GetAllCommands() []string {
	return []string{
		"help", "h", "?",
		"exit", "quit", "q",
		"status", "st",
		"send",
		"udp",
		"call",
		"open-udp",
		"reconfirm",
	}
}
