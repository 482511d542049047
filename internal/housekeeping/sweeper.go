package housekeeping

import (
	"context"
	"log/slog"
	"time"
)

// Purger is the single storage operation the sweeper needs.
type Purger interface {
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper reclaims storage from rides that have sat in a terminal state
// longer than the retention window. It runs in its own process and never
// shares a transaction with the state machine; a non-terminal ride is never
// touched (PurgeTerminal filters on status).
type Sweeper struct {
	Store     Purger
	Retention time.Duration
	Interval  time.Duration
	Log       *slog.Logger
}

// Run sweeps on every tick until the context is cancelled. Errors are
// logged and the loop keeps going; a missed sweep only delays reclamation.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.Log.Error("sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce purges terminal rides older than the retention window.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.Retention)
	purged, err := s.Store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.Log.Info("swept terminal rides", "purged", purged, "cutoff", cutoff)
	}
	return purged, nil
}
