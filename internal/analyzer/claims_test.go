package analyzer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/model"
)

func analyzeClaims(t *testing.T, text string) *model.ClaimAnalysisPayload {
	t.Helper()
	out, err := analyzer.NewClaimHeuristics(nil).AnalyzeClaims(context.Background(), analyzer.ClaimInput{ContentID: "c", Text: text})
	require.NoError(t, err)
	return out
}

func hasFlagPrefix(flags []string, prefix string) bool {
	for _, f := range flags {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

func TestClaimHeuristics_SkipsShortText(t *testing.T) {
	t.Parallel()
	_, err := analyzer.NewClaimHeuristics(nil).AnalyzeClaims(context.Background(), analyzer.ClaimInput{Text: "   short  "})
	skip, ok := analyzer.AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, analyzer.ReasonInsufficientText, skip.Reason)
}

func TestClaimHeuristics_MedicalMisinformation(t *testing.T) {
	t.Parallel()
	out := analyzeClaims(t, "This natural remedy will cure your cancer. Big pharma hiding it! Share this now!!!")

	assert.True(t, hasFlagPrefix(out.Flags, analyzer.FlagMedicalClaims), out.Flags)
	assert.Contains(t, out.Flags, analyzer.FlagViralPressure)
	assert.Equal(t, "high", out.RiskLevel)
	assert.True(t, out.RequiresManualReview)
	// 70 - 15 (medical) - 10 (share request) + 10 (no red flags in claims)
	assert.Equal(t, 55.0, out.CredibilityScore)
	assert.Contains(t, out.Summary, "Main concern: 1 unverified medical claim(s)")
}

func TestClaimHeuristics_ConspiracyLanguage(t *testing.T) {
	t.Parallel()
	out := analyzeClaims(t, "Wake up people, the government cover-up is real and they are hiding the truth about the moon landing in 1969.")

	assert.Contains(t, out.Flags, analyzer.FlagConspiracyLanguage)
	assert.Contains(t, out.Flags, analyzer.FlagUrgentLanguage)
	assert.Less(t, out.CredibilityScore, 70.0)
	assert.Equal(t, 1, out.TotalClaims)
	assert.Equal(t, []string{"factual:1"}, out.ClaimTypes)
}

func TestClaimHeuristics_CleanTextWithSource(t *testing.T) {
	t.Parallel()
	out := analyzeClaims(t, "The city council approved the new budget on Monday. Full report at https://www.reuters.com/world/budget.")

	assert.Empty(t, out.Flags)
	// base 70, +5 for one link, +10 for claims without red flags
	assert.Equal(t, 85.0, out.CredibilityScore)
	assert.Equal(t, "very_low", out.RiskLevel)
	assert.False(t, out.RequiresManualReview)
	assert.Contains(t, out.Summary, "Includes 1 source link(s)")
}

func TestClaimHeuristics_Clickbait(t *testing.T) {
	t.Parallel()
	out := analyzeClaims(t, "You won't believe what this celebrity did yesterday")

	assert.Contains(t, out.Flags, analyzer.FlagClickbait)
	assert.Contains(t, out.Flags, analyzer.FlagEmotionalManipulation)
}

func TestClaimHeuristics_CapsAreCaseSensitive(t *testing.T) {
	t.Parallel()
	quiet := analyzeClaims(t, "Residents gathered downtown yesterday afternoon.")
	assert.NotContains(t, quiet.Flags, analyzer.FlagSensationalism)

	loud := analyzeClaims(t, "ALERT: CRAZY NEWS FROM TODAY, PEOPLE ARE STUNNED yesterday.")
	assert.Contains(t, loud.Flags, analyzer.FlagSensationalism)
	assert.Contains(t, loud.Flags, analyzer.FlagExcessiveCaps)
}
