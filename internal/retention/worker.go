// Package retention trims the recorded config change history in the
// background.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes old history rows. Implemented by storage.Store.
type Pruner interface {
	PruneHistory(keep int) (int64, error)
}

// Worker periodically keeps the newest N history rows and drops the rest.
type Worker struct {
	store  Pruner
	keep   int
	every  time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker that keeps the newest keep rows.
// If every is <= 0, it defaults to 5 minutes.
func NewWorker(store Pruner, keep int, every time.Duration) *Worker {
	if every <= 0 {
		every = 5 * time.Minute
	}
	return &Worker{
		store:  store,
		keep:   keep,
		every:  every,
		logger: slog.Default(),
	}
}

// Run prunes once immediately and then on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(); err != nil {
			w.logger.Error("history prune failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce prunes the history and returns the number of rows removed.
func (w *Worker) RunOnce() (int64, error) {
	n, err := w.store.PruneHistory(w.keep)
	if err != nil {
		return 0, fmt.Errorf("pruning to %d rows: %w", w.keep, err)
	}
	if n > 0 {
		w.logger.Info("pruned config history", "removed", n, "kept", w.keep)
	}
	return n, nil
}
