package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/config/channel"
)

// SenderIDCLI identifies the local console user.
const SenderIDCLI = "user"

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel wires the terminal (stdin/stdout) into the bridge. Every line
// typed is one inbound message; replies are printed again each time they
// change.
type CLIChannel struct {
	Base
	chatID string
	in     io.Reader
	out    io.Writer
	onExit func()

	mu       sync.Mutex
	rendered map[string]string // message id -> last printed text
}

// NewCLIChannel creates a CLIChannel reading os.Stdin and writing os.Stdout.
func NewCLIChannel(cfg *channel.CLIConfig, b bus.Bus) *CLIChannel {
	return newCLIChannel(cfg, b, os.Stdin, os.Stdout)
}

func newCLIChannel(cfg *channel.CLIConfig, b bus.Bus, in io.Reader, out io.Writer) *CLIChannel {
	chatID := cfg.ChatID
	if chatID == "" {
		chatID = "direct"
	}
	return &CLIChannel{
		Base:     NewBase(bus.ChannelCLI, b, nil),
		chatID:   chatID,
		in:       in,
		out:      out,
		rendered: make(map[string]string),
	}
}

func (c *CLIChannel) Name() string { return bus.ChannelCLI.String() }

// OnExit registers fn to run when the user quits or stdin closes.
func (c *CLIChannel) OnExit(fn func()) { c.onExit = fn }

func (c *CLIChannel) exit() {
	if c.onExit != nil {
		c.onExit()
	}
}

// Start runs the stdin REPL and publishes each non-empty line.
// Blocks until ctx is cancelled, stdin is closed or an exit command is typed.
func (c *CLIChannel) Start(ctx context.Context) error {
	c.printf("CLI channel ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(c.in)

	for {
		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				c.printf("\nGoodbye!\n")
				c.exit()
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if cliExitCommands[strings.ToLower(line)] {
			c.printf("Goodbye!\n")
			c.exit()
			return nil
		}

		c.HandleMessage(ctx, SenderIDCLI, c.chatID, line, nil, nil)
	}
}

func (c *CLIChannel) Stop(_ context.Context) error { return nil }

func (c *CLIChannel) SendText(_ context.Context, _, text string) (string, error) {
	id := uuid.NewString()
	c.render(id, text)
	return id, nil
}

func (c *CLIChannel) UpdateText(_ context.Context, _, messageID, text string) error {
	if messageID == "" {
		return nil
	}
	c.render(messageID, text)
	return nil
}

func (c *CLIChannel) UpdateStatusAndText(_ context.Context, _, messageID, status, body string) error {
	if messageID == "" {
		return nil
	}
	text := body
	switch {
	case status != "" && body != "":
		text = status + "\n\n" + body
	case status != "":
		text = status
	case body == "":
		text = emptyCardText
	}
	c.render(messageID, text)
	return nil
}

// render prints text under a short message tag unless it is unchanged.
func (c *CLIChannel) render(messageID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.rendered[messageID]; ok && prev == text {
		return
	}
	c.rendered[messageID] = text
	tag := messageID
	if len(tag) > 8 {
		tag = tag[:8]
	}
	fmt.Fprintf(c.out, "\n[%s]\n%s\n", tag, text)
}

func (c *CLIChannel) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
