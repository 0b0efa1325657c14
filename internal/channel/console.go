package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"calcbot/internal/domain"
)

// Console implements domain.Channel on stdin/stdout so the gateway can be
// tried without a chat account. Lines are triaged like channel messages;
// "/calc <expr>" forces a calculation.
type Console struct {
	bus    domain.MessageBus
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex
}

type ConsoleConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Console{logger: cfg.Logger, in: cfg.In, out: cfg.Out}
}

func (c *Console) Name() string { return "console" }

// Start reads lines until EOF, "/quit" or ctx cancellation.
func (c *Console) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus
	bus.OnOutbound("console", func(msg domain.OutboundMessage) {
		_ = c.Send(ctx, msg.ChatID, msg.Content)
	})

	c.println("calcbot console. Type a message, /calc <expression>, or /quit.")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit" || line == "/q":
			c.logger.Info("console quit requested")
			return nil
		}

		msg, ok := parseConsoleLine(line)
		if !ok {
			c.println("unknown command")
			continue
		}
		bus.Publish(msg)
	}
}

// parseConsoleLine maps one input line to an inbound message.
func parseConsoleLine(line string) (domain.InboundMessage, bool) {
	msg := domain.InboundMessage{
		Channel:  "console",
		ChatID:   "local",
		SenderID: "user",
		Content:  line,
	}
	if !strings.HasPrefix(line, "/") {
		return msg, true
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	if !isCalculateCommand(name) {
		return msg, false
	}
	msg.Content = strings.TrimSpace(rest)
	msg.Forced = true
	return msg, true
}

// Stop is a no-op; the console exits when Start returns.
func (c *Console) Stop() error { return nil }

func (c *Console) Send(_ context.Context, _ string, content string) error {
	c.println(content)
	return nil
}

func (c *Console) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintln(c.out, s)
}
