package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crystaldolphin/chatbridge/internal/backend"
)

// LoopState is the phase of the event loop.
type LoopState int32

const (
	StateIdle LoopState = iota // Run not called yet
	StateConnecting
	StateStreaming
	StateDraining
	StateStopped
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type loopState struct{ v atomic.Int32 }

func (l *loopState) set(s LoopState) { l.v.Store(int32(s)) }
func (l *loopState) get() LoopState  { return LoopState(l.v.Load()) }

// State reports the current event loop phase.
func (e *Engine) State() LoopState { return e.loop.get() }

// Run consumes the backend event stream until ctx is cancelled, re-subscribing
// after a fixed delay whenever the stream fails or ends. Events are handled one
// at a time in arrival order; cancellation takes effect between events.
func (e *Engine) Run(ctx context.Context) error {
	delay := e.opts.ReconnectDelay
	slog.Info("bridge: event loop started", "reconnectDelay", delay, "throttle", e.opts.Throttle)

	for {
		e.loop.set(StateConnecting)
		err := e.streamOnce(ctx)
		if ctx.Err() != nil {
			break
		}
		e.loop.set(StateConnecting)
		slog.Warn("bridge: event stream lost, reconnecting", "delay", delay, "err", err)

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		if ctx.Err() != nil {
			break
		}
	}

	e.loop.set(StateDraining)
	slog.Info("bridge: event loop stopping", "activeTurns", e.ActiveTurns())
	e.loop.set(StateStopped)
	return ctx.Err()
}

// streamOnce subscribes and dispatches events until the stream fails.
func (e *Engine) streamOnce(ctx context.Context) error {
	stream, err := e.client.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	e.loop.set(StateStreaming)
	slog.Info("bridge: event stream connected")

	// Handlers finish even if ctx is cancelled mid-event.
	handleCtx := context.WithoutCancel(ctx)
	for {
		ev, err := stream.Next()
		if errors.Is(err, backend.ErrStreamClosed) {
			slog.Info("bridge: event stream closed by server")
			return err
		}
		if err != nil {
			return err
		}
		e.dispatch(handleCtx, ev)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev backend.Event) {
	switch ev := ev.(type) {
	case backend.PartialResponse:
		e.onPartial(ctx, ev)
	case backend.ToolUpdate:
		e.onTool(ctx, ev)
	case backend.SessionIdle:
		e.onIdle(ctx, ev)
	case backend.PermissionRequest:
		e.onPermission(ctx, ev)
	case backend.SessionError:
		e.onError(ctx, ev)
	}
}

func (e *Engine) onPartial(ctx context.Context, ev backend.PartialResponse) {
	st := e.lookup(ev.SessionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if ev.Text != "" {
		st.buffer = ev.Text
	}
	if ev.Final || e.opts.Now().Sub(st.lastFlush) >= e.opts.Throttle {
		e.flushLocked(ctx, st)
	}
}

func (e *Engine) onTool(ctx context.Context, ev backend.ToolUpdate) {
	st := e.lookup(ev.SessionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	switch ev.Status {
	case backend.ToolRunning:
		st.running.set(ev.CallID, ev.Label)
	case backend.ToolCompleted:
		label, _ := st.running.remove(ev.CallID)
		if ev.Label != "" {
			label = ev.Label
		}
		st.completed = append(st.completed, label)
	case backend.ToolError:
		st.running.remove(ev.CallID)
	default:
		return
	}
	e.flushLocked(ctx, st)
}

func (e *Engine) onIdle(ctx context.Context, ev backend.SessionIdle) {
	st := e.lookup(ev.SessionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	// Tools still running at idle are dropped, not reported as failed.
	st.running.clear()
	if st.messageID != "" {
		body := st.buffer
		if body == "" {
			body = e.opts.Texts.EmptyReply
		}
		err := st.adapter.UpdateStatusAndText(ctx, st.chatID, st.messageID, renderStatus(st, e.opts.Texts), body)
		if err != nil {
			slog.Debug("bridge: final update failed", "session", st.sessionID, "err", err)
		}
	}
	st.mu.Unlock()

	e.release(ev.SessionID, st)
	slog.Info("bridge: turn finished", "session", ev.SessionID)
}

func (e *Engine) onPermission(ctx context.Context, ev backend.PermissionRequest) {
	if err := e.client.ReplyPermission(ctx, ev.ID, backend.PermissionReject); err != nil {
		slog.Warn("bridge: permission reply failed", "request", ev.ID, "session", ev.SessionID, "err", err)
		return
	}
	slog.Info("bridge: permission rejected", "request", ev.ID, "session", ev.SessionID)
}

func (e *Engine) onError(ctx context.Context, ev backend.SessionError) {
	st := e.lookup(ev.SessionID)
	if st == nil {
		return
	}
	slog.Warn("bridge: backend session error", "session", ev.SessionID, "message", ev.Message)

	st.mu.Lock()
	if st.messageID != "" {
		msg := ev.Message
		if msg == "" {
			msg = e.opts.Texts.UnknownError
		}
		_ = st.adapter.UpdateText(ctx, st.chatID, st.messageID, e.opts.Texts.ErrorPrefix+msg) // best effort
	}
	st.mu.Unlock()

	e.release(ev.SessionID, st)
}

// flushLocked pushes the current status and body to the placeholder message.
// lastFlush records the attempt, successful or not. Caller holds st.mu.
func (e *Engine) flushLocked(ctx context.Context, st *activeSession) {
	if st.messageID == "" {
		return
	}
	st.lastFlush = e.opts.Now()
	err := st.adapter.UpdateStatusAndText(ctx, st.chatID, st.messageID, renderStatus(st, e.opts.Texts), st.buffer)
	if err != nil {
		slog.Debug("bridge: update failed", "session", st.sessionID, "err", err)
	}
}
