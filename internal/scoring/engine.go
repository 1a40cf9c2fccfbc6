package scoring

import (
	"sync/atomic"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
)

// Engine scores bundles against a weight config that can be swapped at runtime.
type Engine struct {
	cfg    atomic.Pointer[WeightConfig]
	logger logging.Logger
}

func NewEngine(cfg WeightConfig, logger logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Engine{logger: logger.With(logging.Field{Key: "component", Value: "scoring"})}
	e.cfg.Store(&cfg)
	return e, nil
}

// Config returns a copy of the active weights.
func (e *Engine) Config() WeightConfig {
	return *e.cfg.Load()
}

// SetConfig validates and activates cfg. The previous config stays active on error.
func (e *Engine) SetConfig(cfg WeightConfig) error {
	if err := cfg.Validate(); err != nil {
		e.logger.Warn("rejected weight config", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	e.cfg.Store(&cfg)
	e.logger.Info("weight config activated", logging.Field{Key: "base_score", Value: cfg.BaseScore})
	return nil
}

func (e *Engine) Score(bundle *model.StageBundle) *model.TrustScoreResult {
	res := Compute(bundle, *e.cfg.Load())
	e.logger.Debug("computed trust score",
		logging.Field{Key: "final_score", Value: res.FinalScore},
		logging.Field{Key: "grade", Value: res.Grade},
		logging.Field{Key: "adjustments", Value: len(res.Adjustments)})
	return res
}

// Grade maps a score with the active thresholds.
func (e *Engine) Grade(score float64) (string, GradeInfo) {
	g := e.cfg.Load().GradeThresholds.Grade(clamp(score, 0, 100))
	return g, Info(g)
}
