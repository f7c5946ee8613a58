// Package container wires core chatbridge services using go.uber.org/dig.
package container

import (
	"path/filepath"
	"time"

	"go.uber.org/dig"

	"github.com/crystaldolphin/chatbridge/internal/backend"
	"github.com/crystaldolphin/chatbridge/internal/bridge"
	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/channels"
	"github.com/crystaldolphin/chatbridge/internal/config"
	bridgecfg "github.com/crystaldolphin/chatbridge/internal/config/bridge"
	"github.com/crystaldolphin/chatbridge/internal/cron"
	"github.com/crystaldolphin/chatbridge/internal/heartbeat"
	"github.com/crystaldolphin/chatbridge/internal/session"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg       *config.Config
	msgBus    *bus.MessageBus
	store     *session.Store
	client    *backend.HTTPClient
	channels  *channels.Manager
	engine    *bridge.Engine
	cronSvc   *cron.Service
	heartbeat *heartbeat.Service
}

func (c *Container) Config() *config.Config        { return c.cfg }
func (c *Container) MessageBus() *bus.MessageBus   { return c.msgBus }
func (c *Container) SessionStore() *session.Store  { return c.store }
func (c *Container) Backend() *backend.HTTPClient  { return c.client }
func (c *Container) Channels() *channels.Manager   { return c.channels }
func (c *Container) Engine() *bridge.Engine        { return c.engine }
func (c *Container) CronService() *cron.Service    { return c.cronSvc }
func (c *Container) Heartbeat() *heartbeat.Service { return c.heartbeat }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		newMessageBus,
		newSessionStore,
		newBackendClient,
		newChannelManager,
		newEngine,
		newCronService,
		newHeartbeat,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		msgBus *bus.MessageBus,
		store *session.Store,
		client *backend.HTTPClient,
		mgr *channels.Manager,
		engine *bridge.Engine,
		cronSvc *cron.Service,
		hb *heartbeat.Service,
	) {
		result = &Container{
			cfg:       cfg,
			msgBus:    msgBus,
			store:     store,
			client:    client,
			channels:  mgr,
			engine:    engine,
			cronSvc:   cronSvc,
			heartbeat: hb,
		}
	})
	return result, err
}

func newMessageBus(cfg *config.Config) *bus.MessageBus {
	size := cfg.Bridge.InboundBuffer
	if size <= 0 {
		size = 100
	}
	return bus.NewMessageBus(size)
}

func newSessionStore(cfg *config.Config) *session.Store {
	return session.NewStore(cfg.SessionDirPath())
}

func newBackendClient(cfg *config.Config) *backend.HTTPClient {
	return backend.NewHTTPClient(cfg.Backend.ServerURL, cfg.Backend.ExtraHeaders)
}

func newChannelManager(cfg *config.Config, b *bus.MessageBus) *channels.Manager {
	return channels.NewManager(cfg.Channels, b)
}

func newEngine(
	cfg *config.Config,
	client *backend.HTTPClient,
	store *session.Store,
	mgr *channels.Manager,
) *bridge.Engine {
	return bridge.New(client, store, mgr.Channels(), EngineOptions(cfg))
}

// EngineOptions converts the config file settings into engine options.
func EngineOptions(cfg *config.Config) bridge.Options {
	return bridge.Options{
		Agent:          cfg.Backend.Agent,
		Model:          cfg.Backend.Model,
		Throttle:       time.Duration(cfg.Bridge.ThrottleMs) * time.Millisecond,
		ReconnectDelay: time.Duration(cfg.Bridge.ReconnectDelayMs) * time.Millisecond,
		Texts:          engineTexts(cfg.Bridge.Texts),
	}
}

func engineTexts(t bridgecfg.TextsConfig) bridge.Texts {
	return bridge.Texts{
		Placeholder:   t.Placeholder,
		CreateFailed:  t.CreateFailed,
		PromptFailed:  t.PromptFailed,
		ErrorPrefix:   t.ErrorPrefix,
		UnknownError:  t.UnknownError,
		EmptyReply:    t.EmptyReply,
		RunningMarker: t.RunningMarker,
		DoneMarker:    t.DoneMarker,
	}
}

// newCronService registers the session prune job when a schedule is set.
func newCronService(cfg *config.Config, store *session.Store) (*cron.Service, error) {
	svc := cron.NewService(filepath.Join(cfg.SessionDirPath(), "cron", "jobs.json"))
	prune := cfg.Bridge.Prune
	if prune.Schedule == "" {
		return svc, nil
	}
	maxAge := time.Duration(prune.MaxAgeHours) * time.Hour
	if err := svc.AddJob(cron.PruneJobName, prune.Schedule, cron.PruneJob(store, maxAge)); err != nil {
		return nil, err
	}
	return svc, nil
}

// newHeartbeat returns nil when heartbeatMinutes is not positive.
func newHeartbeat(cfg *config.Config, engine *bridge.Engine, store *session.Store, b *bus.MessageBus) *heartbeat.Service {
	if cfg.Bridge.HeartbeatMinutes <= 0 {
		return nil
	}
	return heartbeat.NewService(func() heartbeat.Snapshot {
		return heartbeat.Snapshot{
			LoopState:     engine.State().String(),
			ActiveTurns:   engine.ActiveTurns(),
			Sessions:      store.Len(),
			QueuedInbound: b.InboundSize(),
		}
	}, time.Duration(cfg.Bridge.HeartbeatMinutes)*time.Minute)
}
