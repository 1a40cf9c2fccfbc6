package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/prempunmagar/trustcard/internal/model"
)

const (
	ComponentAIDetection       = "AI Detection"
	ComponentDeepfake          = "Deepfake Detection"
	ComponentFactChecking      = "Fact-Checking"
	ComponentSourceCredibility = "Source Credibility"
)

const (
	FlagMedical          = "Medical claims require verification"
	FlagConspiracy       = "Conspiracy theory language detected"
	FlagManualReview     = "Flagged for manual review"
	FlagConspiracySource = "Conspiracy theory sources detected"
	FlagUnreliableSource = "Unreliable sources detected"
	FlagSatireSource     = "Satire content detected"
)

// Red-flag categories as emitted by claim analyzers.
const (
	RedFlagMedical               = "MEDICAL_CLAIMS"
	RedFlagConspiracy            = "CONSPIRACY_LANGUAGE"
	RedFlagUrgent                = "URGENT_LANGUAGE"
	RedFlagAbsolutist            = "ABSOLUTIST_CLAIMS"
	RedFlagUnverifiedSources     = "UNVERIFIED_SOURCES"
	RedFlagEmotionalManipulation = "EMOTIONAL_MANIPULATION"
	RedFlagSensationalism        = "SENSATIONALISM"
)

// redFlagOrder fixes the order adjustments are emitted in.
var redFlagOrder = []string{
	RedFlagMedical,
	RedFlagConspiracy,
	RedFlagUrgent,
	RedFlagAbsolutist,
	RedFlagUnverifiedSources,
	RedFlagEmotionalManipulation,
	RedFlagSensationalism,
}

func (fc FactCheckWeights) redFlagPenalty(category string) float64 {
	switch category {
	case RedFlagMedical:
		return fc.MedicalClaimsPenalty
	case RedFlagConspiracy:
		return fc.ConspiracyLanguagePenalty
	case RedFlagUrgent:
		return fc.UrgentLanguagePenalty
	case RedFlagAbsolutist:
		return fc.AbsolutistClaimsPenalty
	case RedFlagUnverifiedSources:
		return fc.UnverifiedSourcesPenalty
	case RedFlagEmotionalManipulation:
		return fc.EmotionalManipulationPenalty
	case RedFlagSensationalism:
		return fc.SensationalismPenalty
	}
	return 0
}

// FlagCategory strips a ":<count>" suffix and normalizes case.
func FlagCategory(flag string) string {
	category, _, _ := strings.Cut(flag, ":")
	return strings.ToUpper(strings.TrimSpace(category))
}

// Compute reduces a bundle to a TrustScoreResult. Only completed stages
// contribute; skipped, failed and absent stages are neutral. A nil bundle
// scores as the base score.
func Compute(bundle *model.StageBundle, cfg WeightConfig) *model.TrustScoreResult {
	s := &scorer{cfg: cfg, flags: map[string]bool{}}

	if r, ok := bundle.CompletedStage(model.AnalyzerAuthenticity); ok {
		s.authenticity(r.Authenticity)
	}
	if r, ok := bundle.CompletedStage(model.AnalyzerManipulation); ok {
		s.manipulation(r.Manipulation)
	}
	if r, ok := bundle.CompletedStage(model.AnalyzerClaimAnalysis); ok {
		s.claims(r.ClaimAnalysis)
	}
	if r, ok := bundle.CompletedStage(model.AnalyzerReputation); ok {
		s.reputation(r.Reputation)
	}

	return s.result()
}

type scorer struct {
	cfg         WeightConfig
	adjustments []model.ScoreAdjustment
	flags       map[string]bool
	flagOrder   []string
	review      bool
}

// add records adj. A rule that fires is recorded even when its impact works
// out to zero, e.g. a credibility score sitting exactly on the bonus threshold.
func (s *scorer) add(adj model.ScoreAdjustment) {
	if math.IsNaN(adj.Impact) {
		return
	}
	s.adjustments = append(s.adjustments, adj)
}

func (s *scorer) flag(f string) {
	if !s.flags[f] {
		s.flags[f] = true
		s.flagOrder = append(s.flagOrder, f)
	}
}

func (s *scorer) authenticity(p *model.AuthenticityPayload) {
	if p == nil || !p.SyntheticDetected {
		return
	}
	confidence := clamp(p.Confidence, 0, 1)
	s.add(model.ScoreAdjustment{
		Component: ComponentAIDetection,
		Stage:     model.AnalyzerAuthenticity,
		Category:  "synthetic_media",
		Impact:    -confidence * s.cfg.AIMaxPenalty * s.cfg.AIConfidenceMultiplier,
		Reason:    fmt.Sprintf("AI-generated content detected with %.0f%% confidence", confidence*100),
		Metadata: map[string]any{
			"confidence":       confidence,
			"synthetic_images": p.SyntheticImages,
			"images_analyzed":  p.ImagesAnalyzed,
		},
	})
}

func (s *scorer) manipulation(p *model.ManipulationPayload) {
	if p == nil || !p.Detected {
		return
	}
	s.add(model.ScoreAdjustment{
		Component: ComponentDeepfake,
		Stage:     model.AnalyzerManipulation,
		Category:  "manipulated_media",
		Impact:    -s.cfg.DeepfakePenalty,
		Reason:    "Video or image manipulation detected",
		Metadata: map[string]any{
			"confidence":     p.Confidence,
			"media_analyzed": p.MediaAnalyzed,
		},
	})
}

func (s *scorer) claims(p *model.ClaimAnalysisPayload) {
	if p == nil {
		return
	}
	fc := s.cfg.FactCheck
	score := p.CredibilityScore

	switch {
	case score < fc.LowCredibilityThreshold:
		s.add(model.ScoreAdjustment{
			Component: ComponentFactChecking,
			Stage:     model.AnalyzerClaimAnalysis,
			Category:  "low_credibility",
			Impact:    -(fc.LowCredibilityThreshold - score) * fc.LowCredibilityMultiplier,
			Reason:    fmt.Sprintf("Claims show low credibility (score: %.0f/100)", score),
			Metadata:  map[string]any{"credibility_score": score},
		})
	case score < fc.QuestionableThreshold:
		s.add(model.ScoreAdjustment{
			Component: ComponentFactChecking,
			Stage:     model.AnalyzerClaimAnalysis,
			Category:  "questionable_credibility",
			Impact:    -(fc.QuestionableThreshold - score) * fc.QuestionableMultiplier,
			Reason:    fmt.Sprintf("Claims show questionable credibility (score: %.0f/100)", score),
			Metadata:  map[string]any{"credibility_score": score},
		})
	case score >= fc.HighCredibilityThreshold:
		s.add(model.ScoreAdjustment{
			Component: ComponentFactChecking,
			Stage:     model.AnalyzerClaimAnalysis,
			Category:  "high_credibility",
			Impact:    (score - fc.HighCredibilityThreshold) * fc.HighCredibilityMultiplier,
			Reason:    fmt.Sprintf("Claims show high credibility (score: %.0f/100)", score),
			Metadata:  map[string]any{"credibility_score": score},
		})
	}

	present := map[string]string{}
	for _, f := range p.Flags {
		c := FlagCategory(f)
		if _, seen := present[c]; !seen {
			present[c] = f
		}
	}
	// Red flags stack additively; each category counts once.
	for _, category := range redFlagOrder {
		raw, ok := present[category]
		if !ok {
			continue
		}
		s.add(model.ScoreAdjustment{
			Component: ComponentFactChecking,
			Stage:     model.AnalyzerClaimAnalysis,
			Category:  strings.ToLower(category),
			Impact:    -fc.redFlagPenalty(category),
			Reason:    redFlagReason(category),
			Metadata:  map[string]any{"flag": raw},
		})
	}

	if _, ok := present[RedFlagMedical]; ok {
		s.flag(FlagMedical)
		s.review = true
	}
	if _, ok := present[RedFlagConspiracy]; ok {
		s.flag(FlagConspiracy)
		s.review = true
	}
	if p.RequiresManualReview || score < fc.ReviewThreshold {
		s.review = true
	}
	if s.review {
		s.flag(FlagManualReview)
	}
}

func redFlagReason(category string) string {
	switch category {
	case RedFlagMedical:
		return "Medical or health claims without verification"
	case RedFlagConspiracy:
		return "Conspiracy theory language detected"
	case RedFlagUrgent:
		return "Urgent/alarmist language detected"
	case RedFlagAbsolutist:
		return "Absolutist language (always/never) detected"
	case RedFlagUnverifiedSources:
		return "Unverified or anonymous sources cited"
	case RedFlagEmotionalManipulation:
		return "Emotionally manipulative language detected"
	case RedFlagSensationalism:
		return "Sensationalist language detected"
	}
	return category
}

// reputation applies exactly one source rule: conspiracy beats unreliable
// beats satire beats the continuous reliability rule.
func (s *scorer) reputation(p *model.ReputationPayload) {
	if p == nil {
		return
	}
	sc := s.cfg.SourceCredibility
	adj := model.ScoreAdjustment{
		Component: ComponentSourceCredibility,
		Stage:     model.AnalyzerReputation,
		Metadata: map[string]any{
			"avg_reliability": p.AvgReliability,
			"sources":         len(p.Sources),
		},
	}

	switch {
	case p.HasConspiracy:
		adj.Category, adj.Impact, adj.Reason = "conspiracy_sources", -sc.ConspiracyPenalty, "Links to known conspiracy theory websites"
		s.flag(FlagConspiracySource)
	case p.HasUnreliableSources:
		adj.Category, adj.Impact, adj.Reason = "unreliable_sources", -sc.UnreliablePenalty, "Links to unreliable or low-credibility sources"
		s.flag(FlagUnreliableSource)
	case p.HasSatire:
		adj.Category, adj.Impact, adj.Reason = "satire_sources", -sc.SatirePenalty, "Links to satire/parody content (may be mistaken as factual)"
		s.flag(FlagSatireSource)
	case p.AvgReliability < sc.LowReliabilityThreshold:
		adj.Category = "avg_reliability"
		adj.Impact = -(sc.LowReliabilityThreshold - p.AvgReliability) * sc.LowReliabilityMultiplier
		adj.Reason = fmt.Sprintf("Sources have low average reliability (%.0f%%)", p.AvgReliability*100)
	case p.AvgReliability > sc.HighReliabilityThreshold:
		adj.Category = "avg_reliability"
		adj.Impact = (p.AvgReliability - sc.HighReliabilityThreshold) * sc.HighReliabilityMultiplier
		adj.Reason = fmt.Sprintf("Sources have high reliability (%.0f%%)", p.AvgReliability*100)
	default:
		return
	}
	s.add(adj)
}

func (s *scorer) result() *model.TrustScoreResult {
	res := &model.TrustScoreResult{
		BaseScore:       s.cfg.BaseScore,
		Adjustments:     s.adjustments,
		ComponentScores: map[string]float64{},
		Flags:           s.flagOrder,
		RequiresReview:  s.review,
	}
	if res.Adjustments == nil {
		res.Adjustments = []model.ScoreAdjustment{}
	}
	if res.Flags == nil {
		res.Flags = []string{}
	}

	var sum float64
	for _, a := range res.Adjustments {
		sum += a.Impact
		res.ComponentScores[a.Component] += a.Impact
		if a.Impact < 0 {
			res.TotalPenalties += a.Impact
		} else {
			res.TotalBonuses += a.Impact
		}
	}

	res.FinalScore = clamp(s.cfg.BaseScore+sum, 0, 100)
	res.Grade = s.cfg.GradeThresholds.Grade(res.FinalScore)
	info := Info(res.Grade)
	res.GradeDescription = info.Description
	res.GradeColor = info.Color
	return res
}

// SortedComponents returns component names ordered by impact, most negative first.
func SortedComponents(r *model.TrustScoreResult) []string {
	names := make([]string, 0, len(r.ComponentScores))
	for name := range r.ComponentScores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r.ComponentScores[names[i]], r.ComponentScores[names[j]]
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
	return names
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
