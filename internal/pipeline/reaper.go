package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
)

// ReapStale fails jobs that have been processing without any update for
// longer than StaleAfter. It returns how many jobs it failed.
func (o *Orchestrator) ReapStale(ctx context.Context) (int, error) {
	ids, err := o.store.StaleJobs(ctx, o.now().Add(-o.cfg.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	n := 0
	msg := fmt.Sprintf("job made no progress for %s", o.cfg.StaleAfter)
	for _, id := range ids {
		if o.fail(ctx, id, model.FailureStale, msg) {
			n++
		}
	}
	if n > 0 {
		o.logger.Warn("reaped stale jobs", logging.Field{Key: "count", Value: n})
	}
	return n, nil
}

// Run reaps stale jobs every ReapInterval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := o.ReapStale(ctx); err != nil {
				o.logger.Error("reaper pass failed", logging.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}
