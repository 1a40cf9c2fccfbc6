package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/scoring"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 150 * time.Millisecond

// LoadScoring reads only the scoring section of the file at path, on top of
// the default weights.
func LoadScoring(path string) (scoring.WeightConfig, error) {
	cfg := Default()
	if err := decodeFile(path, cfg); err != nil {
		return scoring.WeightConfig{}, err
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return scoring.WeightConfig{}, fmt.Errorf("scoring: %w", err)
	}
	return cfg.Scoring, nil
}

// WatchScoring re-applies the scoring section of the config file whenever the
// file changes, until ctx is done. Files that fail to decode or validate are
// logged and ignored; the last good weights stay active.
//
// The parent directory is watched rather than the file so that editors which
// save by rename keep being followed.
func WatchScoring(ctx context.Context, path string, logger logging.Logger, apply func(scoring.WeightConfig) error) error {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With(logging.Field{Key: "component", Value: "config"})

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watching scoring weights", logging.Field{Key: "path", Value: abs})

	reload := func() {
		weights, err := LoadScoring(abs)
		if err != nil {
			logger.Warn("ignoring invalid scoring weights",
				logging.Field{Key: "path", Value: abs},
				logging.Field{Key: "error", Value: err.Error()})
			return
		}
		if err := apply(weights); err != nil {
			logger.Warn("scoring weights rejected", logging.Field{Key: "error", Value: err.Error()})
			return
		}
		logger.Info("scoring weights reloaded", logging.Field{Key: "path", Value: abs})
	}

	timer := time.NewTimer(reloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", logging.Field{Key: "error", Value: err.Error()})
		case <-timer.C:
			reload()
		}
	}
}
