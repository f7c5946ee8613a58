package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatbridge/internal/backend"
)

func runEngine(t *testing.T, e *Engine) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestRunReconnectsWithoutTouchingActiveTurns(t *testing.T) {
	h := newHarness(t, Options{ReconnectDelay: time.Millisecond})
	h.startTurn("c1", "s1")

	first := newFakeStream(backend.PartialResponse{SessionID: "s1", Text: "a"})
	first.err = errors.New("connection reset")
	close(first.events)
	h.backend.streams <- first

	_, done := runEngine(t, h.engine)

	second := newFakeStream()
	h.backend.streams <- second
	require.Eventually(t, func() bool { return h.backend.Subscribed() == 2 }, time.Second, time.Millisecond)

	assert.Len(t, h.channel.Updates(), 1, "disconnect alone emits nothing")
	assert.Equal(t, 1, h.engine.ActiveTurns(), "disconnect keeps the turn")

	second.events <- backend.PartialResponse{SessionID: "s1", Text: "ab", Final: true}
	second.events <- backend.SessionIdle{SessionID: "s1"}
	require.Eventually(t, func() bool { return h.engine.ActiveTurns() == 0 }, time.Second, time.Millisecond)

	updates := h.channel.Updates()
	require.Len(t, updates, 3)
	assert.Equal(t, "ab", updates[2].Body)

	select {
	case err := <-done:
		t.Fatalf("loop exited early: %v", err)
	default:
	}
}

func TestRunReconnectsAfterCleanClose(t *testing.T) {
	h := newHarness(t, Options{ReconnectDelay: time.Millisecond})
	for i := 0; i < 3; i++ {
		s := newFakeStream()
		close(s.events)
		h.backend.streams <- s
	}

	runEngine(t, h.engine)
	require.Eventually(t, func() bool { return h.backend.Subscribed() == 3 }, time.Second, time.Millisecond)
}

func TestRunWaitsFixedDelay(t *testing.T) {
	h := newHarness(t, Options{ReconnectDelay: 200 * time.Millisecond})
	s := newFakeStream()
	close(s.events)
	h.backend.streams <- s
	h.backend.streams <- newFakeStream()

	runEngine(t, h.engine)
	require.Eventually(t, func() bool { return h.backend.Subscribed() == 1 }, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.backend.Subscribed(), "no reconnect before the delay")
	require.Eventually(t, func() bool { return h.backend.Subscribed() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRunProcessesEventsInOrder(t *testing.T) {
	h := newHarness(t, Options{ReconnectDelay: time.Millisecond})
	h.startTurn("c1", "s1")

	h.backend.streams <- newFakeStream(
		backend.ToolUpdate{SessionID: "s1", CallID: "x", Label: "search", Status: backend.ToolRunning},
		backend.ToolUpdate{SessionID: "s1", CallID: "x", Label: "search", Status: backend.ToolCompleted},
		backend.SessionIdle{SessionID: "s1"},
	)
	runEngine(t, h.engine)

	require.Eventually(t, func() bool { return h.engine.ActiveTurns() == 0 }, time.Second, time.Millisecond)
	updates := h.channel.Updates()
	require.Len(t, updates, 3)
	assert.Equal(t, "⏳ search", updates[0].Status)
	assert.Equal(t, "✅ search", updates[1].Status)
	assert.Equal(t, "✅ search", updates[2].Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, Options{ReconnectDelay: time.Hour})
	assert.Equal(t, StateIdle, h.engine.State())

	stream := newFakeStream()
	h.backend.streams <- stream
	cancel, done := runEngine(t, h.engine)
	require.Eventually(t, func() bool { return h.engine.State() == StateStreaming }, time.Second, time.Millisecond)

	cancel()
	// Cancellation is observed between events.
	stream.events <- backend.PermissionRequest{ID: "p1", SessionID: "s1"}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, StateStopped, h.engine.State())
	assert.Equal(t, 1, h.backend.Subscribed())
}

func TestRunStopsDuringReconnectDelay(t *testing.T) {
	h := newHarness(t, Options{ReconnectDelay: time.Hour})
	s := newFakeStream()
	close(s.events)
	h.backend.streams <- s

	cancel, done := runEngine(t, h.engine)
	require.Eventually(t, func() bool { return h.engine.State() == StateConnecting && h.backend.Subscribed() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "unknown", LoopState(99).String())
}
