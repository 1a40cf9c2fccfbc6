package model

import "math"

// ScoreAdjustment is one signed contribution to the final trust score.
type ScoreAdjustment struct {
	// Component is the display name of the scoring rule family
	// (e.g. "AI Detection", "Fact-Checking").
	Component string `json:"component"`

	// Stage is the analyzer whose StageResult produced this adjustment.
	Stage AnalyzerType `json:"stage"`

	// Category distinguishes rules within a component
	// (e.g. "credibility_score", "medical_claims", "avg_reliability").
	Category string `json:"category"`

	// Impact is added to the base score. Negative values are penalties.
	Impact float64 `json:"impact"`

	Reason string `json:"reason"`

	// Metadata holds the inputs that drove the rule, for audit.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TrustScoreResult is the explainable output of the scoring engine.
type TrustScoreResult struct {
	FinalScore       float64            `json:"final_score"`
	Grade            string             `json:"grade"`
	GradeDescription string             `json:"grade_description"`
	GradeColor       string             `json:"grade_color"`
	BaseScore        float64            `json:"base_score"`
	Adjustments      []ScoreAdjustment  `json:"adjustments"`
	ComponentScores  map[string]float64 `json:"component_scores"`
	TotalPenalties   float64            `json:"total_penalties"`
	TotalBonuses     float64            `json:"total_bonuses"`
	Flags            []string           `json:"flags"`
	RequiresReview   bool               `json:"requires_review"`
}

// AdjustmentSum is the sum of every adjustment impact.
func (r *TrustScoreResult) AdjustmentSum() float64 {
	var sum float64
	for _, a := range r.Adjustments {
		sum += a.Impact
	}
	return sum
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
