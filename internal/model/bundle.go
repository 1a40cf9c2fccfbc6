package model

import (
	"errors"
	"fmt"
)

var ErrStageRecorded = errors.New("stage result already recorded")

// StageBundle collects the StageResults of one job, keyed by analyzer type.
// It is append-only and not safe for concurrent use.
type StageBundle struct {
	Stages map[AnalyzerType]StageResult `json:"stages"`
}

func NewStageBundle() *StageBundle {
	return &StageBundle{Stages: make(map[AnalyzerType]StageResult)}
}

// Add records r. A second result for the same analyzer is rejected.
func (b *StageBundle) Add(r StageResult) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if b.Stages == nil {
		b.Stages = make(map[AnalyzerType]StageResult)
	}
	if _, ok := b.Stages[r.Analyzer]; ok {
		return fmt.Errorf("%w: %s", ErrStageRecorded, r.Analyzer)
	}
	b.Stages[r.Analyzer] = r
	return nil
}

func (b *StageBundle) Get(a AnalyzerType) (StageResult, bool) {
	if b == nil {
		return StageResult{}, false
	}
	r, ok := b.Stages[a]
	return r, ok
}

// CompletedStage returns the result for a only when it completed.
func (b *StageBundle) CompletedStage(a AnalyzerType) (StageResult, bool) {
	r, ok := b.Get(a)
	if !ok || !r.IsCompleted() {
		return StageResult{}, false
	}
	return r, true
}

// Missing lists the required analyzers that have no result yet.
func (b *StageBundle) Missing(required []AnalyzerType) []AnalyzerType {
	var out []AnalyzerType
	for _, a := range required {
		if _, ok := b.Get(a); !ok {
			out = append(out, a)
		}
	}
	return out
}

// Complete reports whether every required analyzer has a result, whatever its status.
func (b *StageBundle) Complete(required []AnalyzerType) bool {
	return len(b.Missing(required)) == 0
}

// Len returns the number of recorded stages.
func (b *StageBundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Stages)
}

// Content returns the extraction payload if extraction completed.
func (b *StageBundle) Content() *ExtractionPayload {
	if r, ok := b.CompletedStage(AnalyzerExtraction); ok {
		return r.Extraction
	}
	return nil
}
