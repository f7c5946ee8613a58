// Package bridge connects chat conversations to agent backend sessions.
//
// The Engine resolves each inbound message to a backend session, posts a
// placeholder reply, submits the prompt, and then edits that reply as the
// backend's event stream reports text and tool progress. Text-driven edits
// are throttled; tool changes and finished parts are shown immediately.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crystaldolphin/chatbridge/internal/backend"
	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/schema"
)

// ErrNoAdapter is logged when an inbound message names an unregistered channel.
var ErrNoAdapter = errors.New("no adapter registered for channel")

// SessionStore is the persistent conversation → backend session mapping.
type SessionStore interface {
	Get(channel bus.Channel, chatID string) (string, bool)
	Set(channel bus.Channel, chatID, sessionID string) error
	Touch(channel bus.Channel, chatID string) error
}

// Engine owns the adapters, the active turn map and the event loop.
type Engine struct {
	client   backend.Client
	store    SessionStore
	adapters map[bus.Channel]schema.Channel
	opts     Options
	model    *backend.Model

	mu     sync.Mutex
	active map[string]*activeSession // backend session id → turn

	loop loopState
}

// New creates an Engine. Adapters are keyed by their Name.
func New(client backend.Client, store SessionStore, adapters []schema.Channel, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		client:   client,
		store:    store,
		adapters: make(map[bus.Channel]schema.Channel, len(adapters)),
		opts:     opts,
		active:   make(map[string]*activeSession),
	}
	for _, a := range adapters {
		e.adapters[bus.Channel(a.Name())] = a
	}
	if opts.Model != "" {
		m, err := backend.ParseModel(opts.Model)
		if err != nil {
			slog.Warn("bridge: ignoring model hint", "model", opts.Model, "err", err)
		} else {
			e.model = &m
		}
	}
	return e
}

// ActiveTurns reports how many turns are currently in progress.
func (e *Engine) ActiveTurns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// ConsumeInbound handles messages from b until ctx is cancelled. Each message
// is handled on its own goroutine so a slow backend never stalls other chats.
func (e *Engine) ConsumeInbound(ctx context.Context, b bus.Bus) error {
	for {
		select {
		case msg := <-b.InboundChan():
			go e.HandleInbound(context.WithoutCancel(ctx), msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HandleInbound runs the inbound path for one message: resolve or create the
// backend session, post the placeholder, register the turn, submit the prompt.
func (e *Engine) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	channel, chatID := msg.Channel(), msg.ChatId()
	adapter, ok := e.adapters[channel]
	if !ok {
		slog.Debug("bridge: dropping message", "channel", channel, "err", ErrNoAdapter)
		return
	}
	slog.Info("bridge: inbound", "channel", channel, "chat", chatID, "sender", msg.SenderId(), "text", msg.Preview())

	sessionID, ok := e.resolveSession(ctx, adapter, channel, chatID)
	if !ok {
		return
	}

	messageID, err := adapter.SendText(ctx, chatID, e.opts.Texts.Placeholder)
	if err != nil {
		slog.Warn("bridge: placeholder not sent", "channel", channel, "chat", chatID, "err", err)
		messageID = ""
	}

	st := newActiveSession(sessionID, chatID, messageID, adapter)
	e.mu.Lock()
	e.active[sessionID] = st
	e.mu.Unlock()

	req := backend.PromptRequest{
		SessionID: sessionID,
		Text:      msg.Content(),
		Agent:     e.opts.Agent,
		Model:     e.model,
	}
	if err := e.client.Prompt(ctx, req); err != nil {
		slog.Error("bridge: prompt failed", "session", sessionID, "err", err)
		if messageID != "" {
			st.mu.Lock()
			_ = adapter.UpdateText(ctx, chatID, messageID, e.opts.Texts.PromptFailed) // best effort
			st.mu.Unlock()
		}
		e.release(sessionID, st)
	}
}

// resolveSession returns the backend session for the conversation, creating
// and storing one when none exists. On creation failure the user is told and
// ok is false.
func (e *Engine) resolveSession(ctx context.Context, adapter schema.Channel, channel bus.Channel, chatID string) (string, bool) {
	if sessionID, ok := e.store.Get(channel, chatID); ok {
		if err := e.store.Touch(channel, chatID); err != nil {
			slog.Warn("bridge: session store touch failed", "err", err)
		}
		return sessionID, true
	}

	title := fmt.Sprintf("Bridge %s:%s", channel, chatID)
	sessionID, err := e.client.CreateSession(ctx, title)
	if err != nil {
		slog.Error("bridge: create session failed", "channel", channel, "chat", chatID, "err", err)
		_, _ = adapter.SendText(ctx, chatID, e.opts.Texts.CreateFailed) // best effort
		return "", false
	}
	slog.Info("bridge: session created", "session", sessionID, "title", title)
	if err := e.store.Set(channel, chatID, sessionID); err != nil {
		slog.Warn("bridge: session store write failed", "err", err)
	}
	return sessionID, true
}

func (e *Engine) lookup(sessionID string) *activeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[sessionID]
}

// release drops the turn if it is still the one registered for sessionID.
func (e *Engine) release(sessionID string, st *activeSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[sessionID] == st {
		delete(e.active, sessionID)
	}
}
