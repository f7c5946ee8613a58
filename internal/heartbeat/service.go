// Package heartbeat periodically logs the bridge's health: the event loop
// state, turns in flight, persisted conversations and queued inbound
// messages.
package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// Snapshot is one health reading.
type Snapshot struct {
	LoopState     string
	ActiveTurns   int
	Sessions      int
	QueuedInbound int
}

// StatusFunc takes a Snapshot.
type StatusFunc func() Snapshot

// healthyState is the loop state in which replies are being delivered.
const healthyState = "streaming"

// Service logs a Snapshot on a fixed interval.
type Service struct {
	status   StatusFunc
	interval time.Duration
}

// NewService creates a heartbeat Service.
// interval defaults to 30 minutes if zero.
func NewService(status StatusFunc, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	return &Service{
		status:   status,
		interval: interval,
	}
}

// Start runs the heartbeat loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("heartbeat: started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			s.check()
		case <-ctx.Done():
			slog.Info("heartbeat: stopped")
			return ctx.Err()
		}
	}
}

// check logs one snapshot and reports whether the loop looked healthy.
func (s *Service) check() bool {
	snap := s.status()
	attrs := []any{
		"loop", snap.LoopState,
		"activeTurns", snap.ActiveTurns,
		"sessions", snap.Sessions,
		"queuedInbound", snap.QueuedInbound,
	}
	if snap.LoopState != healthyState {
		slog.Warn("heartbeat: event stream not connected", attrs...)
		return false
	}
	slog.Info("heartbeat", attrs...)
	return true
}
