package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PruneJobName is the job that drops idle conversation mappings.
const PruneJobName = "prune-sessions"

// Pruner removes conversation mappings idle for longer than maxAge.
type Pruner interface {
	Prune(maxAge time.Duration) (int, error)
}

// PruneJob returns a JobFunc that prunes p. A non-positive maxAge makes the
// job a no-op.
func PruneJob(p Pruner, maxAge time.Duration) JobFunc {
	return func(_ context.Context) error {
		if maxAge <= 0 {
			return nil
		}
		n, err := p.Prune(maxAge)
		if err != nil {
			return fmt.Errorf("prune sessions: %w", err)
		}
		slog.Info("cron: pruned sessions", "removed", n, "maxAge", maxAge)
		return nil
	}
}
