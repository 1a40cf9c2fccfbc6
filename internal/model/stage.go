package model

import (
	"errors"
	"fmt"
)

// AnalyzerType names one signal analyzer and therefore one stage slot in a job.
type AnalyzerType string

const (
	AnalyzerExtraction     AnalyzerType = "extraction"
	AnalyzerAuthenticity   AnalyzerType = "authenticity"
	AnalyzerTextExtraction AnalyzerType = "text_extraction"
	AnalyzerManipulation   AnalyzerType = "manipulation"
	AnalyzerClaimAnalysis  AnalyzerType = "claim_analysis"
	AnalyzerReputation     AnalyzerType = "reputation"
)

var (
	// ParallelGroup holds the stages whose inputs depend only on extracted content.
	ParallelGroup = []AnalyzerType{AnalyzerAuthenticity, AnalyzerTextExtraction, AnalyzerManipulation}

	// DependentStages run in order after the parallel group has reported.
	DependentStages = []AnalyzerType{AnalyzerClaimAnalysis, AnalyzerReputation}

	// RequiredStages is every stage of the static dependency graph.
	RequiredStages = []AnalyzerType{
		AnalyzerExtraction,
		AnalyzerAuthenticity,
		AnalyzerTextExtraction,
		AnalyzerManipulation,
		AnalyzerClaimAnalysis,
		AnalyzerReputation,
	}
)

// Valid reports whether a is one of the known analyzer types.
func (a AnalyzerType) Valid() bool {
	for _, t := range RequiredStages {
		if a == t {
			return true
		}
	}
	return false
}

type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageSkipped   StageStatus = "skipped"
	StageFailed    StageStatus = "failed"
)

// Payload is implemented by every analyzer output type.
type Payload interface {
	Analyzer() AnalyzerType
}

// StageResult is the outcome of one analyzer for one job.
// Exactly one payload pointer is set, and only when Status is completed.
type StageResult struct {
	Analyzer AnalyzerType `json:"analyzer"`
	Status   StageStatus  `json:"status"`

	// Reason explains a skipped or failed stage.
	Reason string `json:"reason,omitempty"`

	Attempts   int   `json:"attempts,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`

	Extraction     *ExtractionPayload     `json:"extraction,omitempty"`
	Authenticity   *AuthenticityPayload   `json:"authenticity,omitempty"`
	TextExtraction *TextExtractionPayload `json:"text_extraction,omitempty"`
	Manipulation   *ManipulationPayload   `json:"manipulation,omitempty"`
	ClaimAnalysis  *ClaimAnalysisPayload  `json:"claim_analysis,omitempty"`
	Reputation     *ReputationPayload     `json:"reputation,omitempty"`
}

// Completed wraps a payload into a completed StageResult.
func Completed(p Payload) StageResult {
	r := StageResult{Status: StageCompleted}
	switch v := p.(type) {
	case *ExtractionPayload:
		r.Analyzer, r.Extraction = AnalyzerExtraction, v
	case *AuthenticityPayload:
		r.Analyzer, r.Authenticity = AnalyzerAuthenticity, v
	case *TextExtractionPayload:
		r.Analyzer, r.TextExtraction = AnalyzerTextExtraction, v
	case *ManipulationPayload:
		r.Analyzer, r.Manipulation = AnalyzerManipulation, v
	case *ClaimAnalysisPayload:
		r.Analyzer, r.ClaimAnalysis = AnalyzerClaimAnalysis, v
	case *ReputationPayload:
		r.Analyzer, r.Reputation = AnalyzerReputation, v
	default:
		// Unknown payloads cannot be represented; surface it as a failure.
		name := "nil"
		if p != nil {
			name = string(p.Analyzer())
		}
		return StageResult{Analyzer: AnalyzerType(name), Status: StageFailed, Reason: fmt.Sprintf("unsupported payload %T", p)}
	}
	if r.Payload() == nil {
		return Failed(r.Analyzer, errors.New("analyzer returned an empty payload"))
	}
	return r
}

func Skipped(a AnalyzerType, reason string) StageResult {
	if reason == "" {
		reason = "skipped"
	}
	return StageResult{Analyzer: a, Status: StageSkipped, Reason: reason}
}

func Failed(a AnalyzerType, err error) StageResult {
	reason := "unknown error"
	if err != nil && err.Error() != "" {
		reason = err.Error()
	}
	return StageResult{Analyzer: a, Status: StageFailed, Reason: reason}
}

// Payload returns the populated payload, or nil.
func (r StageResult) Payload() Payload {
	switch {
	case r.Extraction != nil:
		return r.Extraction
	case r.Authenticity != nil:
		return r.Authenticity
	case r.TextExtraction != nil:
		return r.TextExtraction
	case r.Manipulation != nil:
		return r.Manipulation
	case r.ClaimAnalysis != nil:
		return r.ClaimAnalysis
	case r.Reputation != nil:
		return r.Reputation
	}
	return nil
}

func (r StageResult) IsCompleted() bool { return r.Status == StageCompleted }

var ErrInvalidStageResult = errors.New("invalid stage result")

// Validate checks the variant invariants: payload iff completed, reason iff
// skipped or failed, and the payload matching the analyzer.
func (r StageResult) Validate() error {
	if !r.Analyzer.Valid() {
		return fmt.Errorf("%w: unknown analyzer %q", ErrInvalidStageResult, r.Analyzer)
	}
	payloads := 0
	for _, set := range []bool{
		r.Extraction != nil, r.Authenticity != nil, r.TextExtraction != nil,
		r.Manipulation != nil, r.ClaimAnalysis != nil, r.Reputation != nil,
	} {
		if set {
			payloads++
		}
	}
	switch r.Status {
	case StageCompleted:
		if payloads != 1 {
			return fmt.Errorf("%w: completed %s carries %d payloads", ErrInvalidStageResult, r.Analyzer, payloads)
		}
		if r.Payload().Analyzer() != r.Analyzer {
			return fmt.Errorf("%w: %s carries a %s payload", ErrInvalidStageResult, r.Analyzer, r.Payload().Analyzer())
		}
		if r.Reason != "" {
			return fmt.Errorf("%w: completed %s has a reason", ErrInvalidStageResult, r.Analyzer)
		}
	case StageSkipped, StageFailed:
		if payloads != 0 {
			return fmt.Errorf("%w: %s %s carries a payload", ErrInvalidStageResult, r.Status, r.Analyzer)
		}
		if r.Reason == "" {
			return fmt.Errorf("%w: %s %s has no reason", ErrInvalidStageResult, r.Status, r.Analyzer)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStageResult, r.Status)
	}
	return nil
}
