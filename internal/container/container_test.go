package container

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatbridge/internal/bridge"
	"github.com/crystaldolphin/chatbridge/internal/config"
	"github.com/crystaldolphin/chatbridge/internal/cron"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Bridge.SessionDir = t.TempDir()
	cfg.Channels.CLI.Enabled = true
	return &cfg
}

func TestNew_WiresServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bridge.Prune.Schedule = "0 0 4 * * *"

	c, err := New(cfg)
	require.NoError(t, err)

	assert.Same(t, cfg, c.Config())
	assert.NotNil(t, c.MessageBus())
	assert.NotNil(t, c.Engine())
	assert.Equal(t, bridge.StateIdle, c.Engine().State())
	assert.Equal(t, cfg.Backend.ServerURL, c.Backend().BaseURL())
	assert.Equal(t, []string{"cli"}, c.Channels().EnabledChannels())
	assert.Equal(t, 0, c.SessionStore().Len())
	assert.NotNil(t, c.Heartbeat())

	jobs := c.CronService().ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, cron.PruneJobName, jobs[0].Name)
}

func TestNew_NoPruneScheduleNoHeartbeat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bridge.HeartbeatMinutes = 0

	c, err := New(cfg)
	require.NoError(t, err)
	assert.Empty(t, c.CronService().ListJobs())
	assert.Nil(t, c.Heartbeat())
}

func TestNew_InvalidPruneSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bridge.Prune.Schedule = "every tuesday"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestEngineOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.Agent = "research"
	cfg.Backend.Model = "anthropic/claude"
	cfg.Bridge.ThrottleMs = 250
	cfg.Bridge.Texts.Placeholder = "Thinking..."

	opts := EngineOptions(&cfg)
	assert.Equal(t, "research", opts.Agent)
	assert.Equal(t, "anthropic/claude", opts.Model)
	assert.Equal(t, 250*time.Millisecond, opts.Throttle)
	assert.Equal(t, 3*time.Second, opts.ReconnectDelay)
	assert.Equal(t, "Thinking...", opts.Texts.Placeholder)
	assert.Empty(t, opts.Texts.EmptyReply, "unset texts fall back inside the engine")
}
