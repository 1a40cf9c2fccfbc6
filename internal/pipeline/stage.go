package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
)

// ReasonNotConfigured is recorded for a media stage without an analyzer.
const ReasonNotConfigured = "Analyzer not configured"

type stageFunc func(ctx context.Context) (model.Payload, error)

// runStage calls fn under the per-call timeout and the stage attempt budget
// and turns the outcome into a StageResult. It never returns an error: skips,
// failures, timeouts and panics all become results.
func (o *Orchestrator) runStage(ctx context.Context, a model.AnalyzerType, fn stageFunc) model.StageResult {
	start := o.now()
	var (
		result  model.StageResult
		attempt int
	)
	for attempt = 1; attempt <= o.cfg.StageAttempts; attempt++ {
		p, err := o.call(ctx, fn)
		if err == nil {
			result = model.Completed(p)
			break
		}
		if skip, ok := analyzer.AsSkip(err); ok {
			result = model.Skipped(a, skip.Reason)
			break
		}
		result = model.Failed(a, err)
		o.logger.Warn("stage attempt failed",
			logging.Field{Key: "stage", Value: string(a)},
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "error", Value: err.Error()})
		if ctx.Err() != nil {
			break
		}
	}
	if attempt > o.cfg.StageAttempts {
		attempt = o.cfg.StageAttempts
	}
	result.Attempts = attempt
	result.DurationMS = o.now().Sub(start).Milliseconds()
	return result
}

// call runs fn in its own goroutine so an analyzer that ignores its context
// still cannot hold the stage past the timeout.
func (o *Orchestrator) call(ctx context.Context, fn stageFunc) (model.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AnalyzerTimeout)
	defer cancel()

	type outcome struct {
		p   model.Payload
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("analyzer panicked",
					logging.Field{Key: "panic", Value: fmt.Sprint(r)},
					logging.Field{Key: "stack", Value: string(debug.Stack())})
				done <- outcome{err: fmt.Errorf("analyzer panic: %v", r)}
			}
		}()
		p, err := fn(ctx)
		done <- outcome{p, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, fmt.Errorf("timed out after %s", o.cfg.AnalyzerTimeout)
		}
		return out.p, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s", o.cfg.AnalyzerTimeout)
		}
		return nil, ctx.Err()
	}
}
