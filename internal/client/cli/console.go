package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"syncio-client/internal/client"
	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
	"syncio-client/internal/core/metrics"
	"syncio-client/internal/core/safe"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Console - 会话交互式命令行
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	consolePrompt = "\033[32msyncio>\033[0m "

	// DefaultCallTimeout call 命令的等待上限
	DefaultCallTimeout = 30 * time.Second
)

// Console 交互式命令行
type Console struct {
	session     *client.Session
	ctx         context.Context
	readline    *readline.Instance
	output      *Output
	startTime   time.Time
	callTimeout time.Duration
}

// NewConsole 创建交互式命令行，要求 stdin 为终端
func NewConsole(ctx context.Context, session *client.Session) (*Console, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return nil, coreerrors.New(coreerrors.CodeInvalidState,
			"stdin is not a terminal (TTY required for interactive console)")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          consolePrompt,
		HistoryFile:     os.ExpandEnv("$HOME/.syncio_history"),
		HistoryLimit:    500,
		AutoComplete:    BuildCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInternal, "failed to initialize readline")
	}

	c := newConsole(ctx, session, NewOutput(rl.Stdout(), false))
	c.readline = rl
	return c, nil
}

func newConsole(ctx context.Context, session *client.Session, output *Output) *Console {
	return &Console{
		session:     session,
		ctx:         ctx,
		output:      output,
		startTime:   time.Now(),
		callTimeout: DefaultCallTimeout,
	}
}

// Output 控制台输出，异步事件也应写到这里以免打乱提示符
func (c *Console) Output() *Output {
	return c.output
}

// Start 启动读取循环，直到 quit、EOF 或 ctx 结束
func (c *Console) Start() {
	c.printWelcome()
	defer c.Stop()

	for {
		if c.ctx.Err() != nil {
			corelog.Infof("Console: context cancelled, shutting down")
			return
		}

		line, err := c.readline.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				c.output.Info("Use 'exit' or 'quit' to exit")
			}
			continue
		} else if err == io.EOF {
			return
		} else if err != nil {
			corelog.Errorf("Console: readline error: %v", err)
			return
		}

		if !c.Execute(line) {
			return
		}
	}
}

// Stop 关闭 readline，可重复调用
func (c *Console) Stop() {
	if c.readline != nil {
		_ = c.readline.Close()
		c.readline = nil
	}
}

func (c *Console) printWelcome() {
	c.output.Header("syncio client console")
	c.output.Plain("  Type 'help' to see available commands")
	c.output.Plain("  Type 'exit' or 'quit' to quit")
	c.output.Plain("")
}

// Execute 执行一行命令，返回 false 表示退出
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "h", "?":
		c.cmdHelp()
	case "exit", "quit", "q":
		return false
	case "status", "st":
		c.cmdStatus()
	case "send":
		c.cmdSend(args)
	case "udp":
		c.cmdUDP(args)
	case "call":
		c.cmdCall(args)
	case "open-udp":
		c.cmdOpenUDP()
	case "reconfirm":
		c.cmdReconfirm()
	default:
		c.output.Error("Unknown command: %s", cmd)
		c.output.Info("Type 'help' to see available commands")
	}
	return true
}

func (c *Console) cmdHelp() {
	c.output.Header("Commands")
	c.output.KeyValue("status", "show session state")
	c.output.KeyValue("send <v>...", "send an object array over the stream channel")
	c.output.KeyValue("udp <v>...", "send an object array over the udp side channel")
	c.output.KeyValue("call <name> <v>...", "invoke a remote function and print its result")
	c.output.KeyValue("open-udp", "open the udp side channel and wait for confirmation")
	c.output.KeyValue("reconfirm", "re-send the udp handshake")
	c.output.KeyValue("quit", "leave the console")
	c.output.Plain("")
	c.output.Plain("  Values that parse as JSON are sent as JSON, everything else as strings.")
}

func (c *Console) cmdStatus() {
	cfg := c.session.Config()
	identity := "-"
	if id := c.session.Identity(); id != uuid.Nil {
		identity = id.String()
	}

	c.output.Header("Session")
	c.output.KeyValue("Server", cfg.Server.Address)
	c.output.KeyValue("Protocol", cfg.Server.Protocol)
	c.output.KeyValue("Connected", yesNo(c.session.Connected()))
	c.output.KeyValue("Identity", identity)
	c.output.KeyValue("UDP", yesNo(c.session.HasUDP()))
	c.output.KeyValue("Pending calls", strconv.Itoa(c.session.PendingRemoteCalls()))
	c.output.KeyValue("Uptime", FormatDuration(time.Since(c.startTime)))

	m := c.session.Metrics()
	tcp, udp := metrics.ChannelLabels("tcp"), metrics.ChannelLabels("udp")
	c.output.KeyValue("Sent tcp/udp", fmt.Sprintf("%.0f / %.0f",
		metrics.Counter(m, metrics.PacketsSent, tcp), metrics.Counter(m, metrics.PacketsSent, udp)))
	c.output.KeyValue("Received tcp/udp", fmt.Sprintf("%.0f / %.0f",
		metrics.Counter(m, metrics.PacketsReceived, tcp), metrics.Counter(m, metrics.PacketsReceived, udp)))
	c.output.KeyValue("UDP dropped", fmt.Sprintf("%.0f", metrics.Counter(m, metrics.DatagramsDropped, nil)))

	stats := safe.GetStats()
	c.output.KeyValue("Goroutines", fmt.Sprintf("%d active / %d total / %d panics", stats.Active, stats.Total, stats.PanicCount))
}

func (c *Console) cmdSend(args []string) {
	if len(args) == 0 {
		c.output.Error("Usage: send <value>...")
		return
	}
	if !c.session.Connected() {
		c.output.Error("Not connected")
		return
	}
	values := ParseValues(args)
	c.session.SendArrayWithCompletion(values, func(err error) {
		if err != nil {
			corelog.Warnf("Console: send failed: %v", err)
		}
	})
	c.output.Success("Queued %d value(s) on the stream channel", len(values))
}

func (c *Console) cmdUDP(args []string) {
	if len(args) == 0 {
		c.output.Error("Usage: udp <value>...")
		return
	}
	if !c.session.HasUDP() {
		c.output.Error("UDP side channel not confirmed, run 'open-udp' first")
		return
	}
	values := ParseValues(args)
	c.session.SendUDPArray(values...)
	c.output.Success("Sent %d value(s) over udp", len(values))
}

func (c *Console) cmdCall(args []string) {
	if len(args) == 0 {
		c.output.Error("Usage: call <name> <value>...")
		return
	}

	fn, err := client.GetRemoteFunction[json.RawMessage](c.session, args[0])
	if err != nil {
		c.output.Error("%v", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
	defer cancel()

	result, err := fn.Call(ctx, ParseValues(args[1:])...)
	if err != nil {
		c.output.Error("%s failed: %v", args[0], err)
		return
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	c.output.Success("%s = %s", args[0], result)
}

func (c *Console) cmdOpenUDP() {
	if err := c.session.TryOpenUDPConnection(); err != nil {
		c.output.Error("Failed to open udp side channel: %v", err)
		return
	}
	c.reportUDP(c.session.WaitForUDPResult(c.ctx))
}

func (c *Console) cmdReconfirm() {
	if err := c.session.SendUDPHandshake(); err != nil {
		c.output.Error("Failed to re-send udp handshake: %v", err)
		return
	}
	c.reportUDP(c.session.WaitForUDPResult(c.ctx))
}

func (c *Console) reportUDP(result client.PhaseResult) {
	if result == client.PhaseSucceeded {
		c.output.Success("UDP side channel confirmed")
		return
	}
	c.output.Warning("UDP side channel not confirmed: %s", result)
}
