package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/config/channel"
	"github.com/crystaldolphin/chatbridge/internal/schema"
)

// Manager owns all enabled channels.
type Manager struct {
	channels []schema.Channel
	byName   map[string]schema.Channel
}

// NewManager creates a Manager and initialises all enabled channels.
func NewManager(cfg channel.ChannelsConfig, b bus.Bus) *Manager {
	m := &Manager{byName: make(map[string]schema.Channel)}

	if cfg.Feishu.Enabled {
		m.Register(NewFeishuChannel(&cfg.Feishu, b))
	}
	if cfg.Telegram.Enabled {
		m.Register(NewTelegramChannel(&cfg.Telegram, b))
	}
	if cfg.Slack.Enabled {
		m.Register(NewSlackChannel(&cfg.Slack, b))
	}
	if cfg.CLI.Enabled {
		m.Register(NewCLIChannel(&cfg.CLI, b))
	}

	return m
}

// Register adds ch. A second channel with the same name replaces the first.
func (m *Manager) Register(ch schema.Channel) {
	name := ch.Name()
	if _, ok := m.byName[name]; ok {
		for i, existing := range m.channels {
			if existing.Name() == name {
				m.channels = append(m.channels[:i], m.channels[i+1:]...)
				break
			}
		}
	}
	m.byName[name] = ch
	m.channels = append(m.channels, ch)
	slog.Info("channel enabled", "name", name)
}

// Channels returns the registered channels in registration order.
func (m *Manager) Channels() []schema.Channel {
	out := make([]schema.Channel, len(m.channels))
	copy(out, m.channels)
	return out
}

// Get returns the channel registered under name.
func (m *Manager) Get(name string) (schema.Channel, bool) {
	ch, ok := m.byName[name]
	return ch, ok
}

// EnabledChannels returns the names of all enabled channels.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// StartAll starts all channels concurrently. A channel that exits with an
// error is logged and does not affect the others.
// Blocks until ctx is cancelled and every channel has returned.
func (m *Manager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range m.channels {
		wg.Add(1)
		go func(c schema.Channel) {
			defer wg.Done()
			slog.Info("starting channel", "name", c.Name())
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", c.Name(), "err", err)
			}
		}(ch)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// StopAll stops every channel and joins their errors.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
