package scoring

import (
	"errors"
	"fmt"
)

// WeightConfig holds every weight and threshold the scoring rules use.
// Changing a value changes scoring deterministically with no other state.
type WeightConfig struct {
	BaseScore float64 `json:"base_score" yaml:"base_score" toml:"base_score"`

	// AI detection: penalty = -confidence * AIMaxPenalty * AIConfidenceMultiplier.
	AIMaxPenalty           float64 `json:"ai_max_penalty" yaml:"ai_max_penalty" toml:"ai_max_penalty"`
	AIConfidenceMultiplier float64 `json:"ai_confidence_multiplier" yaml:"ai_confidence_multiplier" toml:"ai_confidence_multiplier"`

	// Flat penalty when manipulation is detected.
	DeepfakePenalty float64 `json:"deepfake_penalty" yaml:"deepfake_penalty" toml:"deepfake_penalty"`

	FactCheck         FactCheckWeights         `json:"fact_check" yaml:"fact_check" toml:"fact_check"`
	SourceCredibility SourceCredibilityWeights `json:"source_credibility" yaml:"source_credibility" toml:"source_credibility"`
	GradeThresholds   GradeThresholds          `json:"grade_thresholds" yaml:"grade_thresholds" toml:"grade_thresholds"`
}

type FactCheckWeights struct {
	HighCredibilityThreshold float64 `json:"high_credibility_threshold" yaml:"high_credibility_threshold" toml:"high_credibility_threshold"`
	QuestionableThreshold    float64 `json:"questionable_threshold" yaml:"questionable_threshold" toml:"questionable_threshold"`
	LowCredibilityThreshold  float64 `json:"low_credibility_threshold" yaml:"low_credibility_threshold" toml:"low_credibility_threshold"`

	LowCredibilityMultiplier  float64 `json:"low_credibility_multiplier" yaml:"low_credibility_multiplier" toml:"low_credibility_multiplier"`
	QuestionableMultiplier    float64 `json:"questionable_multiplier" yaml:"questionable_multiplier" toml:"questionable_multiplier"`
	HighCredibilityMultiplier float64 `json:"high_credibility_multiplier" yaml:"high_credibility_multiplier" toml:"high_credibility_multiplier"`

	// A sub-score below ReviewThreshold sets requires_review.
	ReviewThreshold float64 `json:"review_threshold" yaml:"review_threshold" toml:"review_threshold"`

	MedicalClaimsPenalty         float64 `json:"medical_claims_penalty" yaml:"medical_claims_penalty" toml:"medical_claims_penalty"`
	ConspiracyLanguagePenalty    float64 `json:"conspiracy_language_penalty" yaml:"conspiracy_language_penalty" toml:"conspiracy_language_penalty"`
	UrgentLanguagePenalty        float64 `json:"urgent_language_penalty" yaml:"urgent_language_penalty" toml:"urgent_language_penalty"`
	AbsolutistClaimsPenalty      float64 `json:"absolutist_claims_penalty" yaml:"absolutist_claims_penalty" toml:"absolutist_claims_penalty"`
	UnverifiedSourcesPenalty     float64 `json:"unverified_sources_penalty" yaml:"unverified_sources_penalty" toml:"unverified_sources_penalty"`
	EmotionalManipulationPenalty float64 `json:"emotional_manipulation_penalty" yaml:"emotional_manipulation_penalty" toml:"emotional_manipulation_penalty"`
	SensationalismPenalty        float64 `json:"sensationalism_penalty" yaml:"sensationalism_penalty" toml:"sensationalism_penalty"`
}

type SourceCredibilityWeights struct {
	ConspiracyPenalty float64 `json:"conspiracy_penalty" yaml:"conspiracy_penalty" toml:"conspiracy_penalty"`
	UnreliablePenalty float64 `json:"unreliable_penalty" yaml:"unreliable_penalty" toml:"unreliable_penalty"`
	SatirePenalty     float64 `json:"satire_penalty" yaml:"satire_penalty" toml:"satire_penalty"`

	LowReliabilityThreshold  float64 `json:"low_reliability_threshold" yaml:"low_reliability_threshold" toml:"low_reliability_threshold"`
	HighReliabilityThreshold float64 `json:"high_reliability_threshold" yaml:"high_reliability_threshold" toml:"high_reliability_threshold"`

	LowReliabilityMultiplier  float64 `json:"low_reliability_multiplier" yaml:"low_reliability_multiplier" toml:"low_reliability_multiplier"`
	HighReliabilityMultiplier float64 `json:"high_reliability_multiplier" yaml:"high_reliability_multiplier" toml:"high_reliability_multiplier"`
}

// GradeThresholds are the minimum scores of the twelve graded bands.
// Anything below DMinus is an F.
type GradeThresholds struct {
	APlus  float64 `json:"a_plus" yaml:"a_plus" toml:"a_plus"`
	A      float64 `json:"a" yaml:"a" toml:"a"`
	AMinus float64 `json:"a_minus" yaml:"a_minus" toml:"a_minus"`
	BPlus  float64 `json:"b_plus" yaml:"b_plus" toml:"b_plus"`
	B      float64 `json:"b" yaml:"b" toml:"b"`
	BMinus float64 `json:"b_minus" yaml:"b_minus" toml:"b_minus"`
	CPlus  float64 `json:"c_plus" yaml:"c_plus" toml:"c_plus"`
	C      float64 `json:"c" yaml:"c" toml:"c"`
	CMinus float64 `json:"c_minus" yaml:"c_minus" toml:"c_minus"`
	DPlus  float64 `json:"d_plus" yaml:"d_plus" toml:"d_plus"`
	D      float64 `json:"d" yaml:"d" toml:"d"`
	DMinus float64 `json:"d_minus" yaml:"d_minus" toml:"d_minus"`
}

// DefaultWeights returns the production weight set.
func DefaultWeights() WeightConfig {
	return WeightConfig{
		BaseScore:              100,
		AIMaxPenalty:           30,
		AIConfidenceMultiplier: 1.0,
		DeepfakePenalty:        40,
		FactCheck: FactCheckWeights{
			HighCredibilityThreshold:     80,
			QuestionableThreshold:        70,
			LowCredibilityThreshold:      50,
			LowCredibilityMultiplier:     0.8,
			QuestionableMultiplier:       0.5,
			HighCredibilityMultiplier:    0.2,
			ReviewThreshold:              40,
			MedicalClaimsPenalty:         15,
			ConspiracyLanguagePenalty:    12,
			UrgentLanguagePenalty:        8,
			AbsolutistClaimsPenalty:      6,
			UnverifiedSourcesPenalty:     10,
			EmotionalManipulationPenalty: 7,
			SensationalismPenalty:        5,
		},
		SourceCredibility: SourceCredibilityWeights{
			ConspiracyPenalty:         25,
			UnreliablePenalty:         20,
			SatirePenalty:             15,
			LowReliabilityThreshold:   0.5,
			HighReliabilityThreshold:  0.7,
			LowReliabilityMultiplier:  20,
			HighReliabilityMultiplier: 10,
		},
		GradeThresholds: GradeThresholds{
			APlus: 95, A: 90, AMinus: 85,
			BPlus: 80, B: 75, BMinus: 70,
			CPlus: 65, C: 60, CMinus: 55,
			DPlus: 50, D: 45, DMinus: 40,
		},
	}
}

var ErrInvalidWeights = errors.New("invalid weight config")

// Validate rejects configurations that would break the score invariants.
func (c WeightConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.BaseScore >= 0 && c.BaseScore <= 100, "base_score %v outside [0,100]", c.BaseScore)
	nonNegative := map[string]float64{
		"ai_max_penalty":                 c.AIMaxPenalty,
		"ai_confidence_multiplier":       c.AIConfidenceMultiplier,
		"deepfake_penalty":               c.DeepfakePenalty,
		"low_credibility_multiplier":     c.FactCheck.LowCredibilityMultiplier,
		"questionable_multiplier":        c.FactCheck.QuestionableMultiplier,
		"high_credibility_multiplier":    c.FactCheck.HighCredibilityMultiplier,
		"medical_claims_penalty":         c.FactCheck.MedicalClaimsPenalty,
		"conspiracy_language_penalty":    c.FactCheck.ConspiracyLanguagePenalty,
		"urgent_language_penalty":        c.FactCheck.UrgentLanguagePenalty,
		"absolutist_claims_penalty":      c.FactCheck.AbsolutistClaimsPenalty,
		"unverified_sources_penalty":     c.FactCheck.UnverifiedSourcesPenalty,
		"emotional_manipulation_penalty": c.FactCheck.EmotionalManipulationPenalty,
		"sensationalism_penalty":         c.FactCheck.SensationalismPenalty,
		"conspiracy_penalty":             c.SourceCredibility.ConspiracyPenalty,
		"unreliable_penalty":             c.SourceCredibility.UnreliablePenalty,
		"satire_penalty":                 c.SourceCredibility.SatirePenalty,
		"low_reliability_multiplier":     c.SourceCredibility.LowReliabilityMultiplier,
		"high_reliability_multiplier":    c.SourceCredibility.HighReliabilityMultiplier,
	}
	for name, v := range nonNegative {
		check(v >= 0, "%s must not be negative (got %v)", name, v)
	}

	fc := c.FactCheck
	check(fc.LowCredibilityThreshold <= fc.QuestionableThreshold && fc.QuestionableThreshold <= fc.HighCredibilityThreshold,
		"fact_check thresholds must satisfy low <= questionable <= high (got %v, %v, %v)",
		fc.LowCredibilityThreshold, fc.QuestionableThreshold, fc.HighCredibilityThreshold)

	sc := c.SourceCredibility
	check(sc.LowReliabilityThreshold >= 0 && sc.HighReliabilityThreshold <= 1 && sc.LowReliabilityThreshold <= sc.HighReliabilityThreshold,
		"reliability thresholds must satisfy 0 <= low <= high <= 1 (got %v, %v)",
		sc.LowReliabilityThreshold, sc.HighReliabilityThreshold)

	bands := c.GradeThresholds.Bands()
	for i := 1; i < len(bands); i++ {
		check(bands[i].Min < bands[i-1].Min, "grade threshold %s (%v) must be below %s (%v)",
			bands[i].Grade, bands[i].Min, bands[i-1].Grade, bands[i-1].Min)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidWeights, errors.Join(errs...))
	}
	return nil
}
