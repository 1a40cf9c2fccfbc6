package analyzer

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/utils"
)

const (
	claimBaseScore    = 70.0
	minClaimTextChars = 10
)

// Claim types.
const (
	ClaimStatistical = "statistical"
	ClaimHealth      = "health_medical"
	ClaimFactual     = "factual"
	ClaimAuthority   = "authority_citation"
)

// Flags emitted on the claim-analysis payload. Count-carrying flags are
// suffixed with ":<n>".
const (
	FlagMedicalClaims         = "MEDICAL_CLAIMS"
	FlagMultipleUnverifiable  = "MULTIPLE_UNVERIFIABLE"
	FlagClickbait             = "CLICKBAIT_DETECTED"
	FlagExcessiveCaps         = "EXCESSIVE_CAPS"
	FlagViralPressure         = "VIRAL_PRESSURE"
	FlagConspiracyLanguage    = "CONSPIRACY_LANGUAGE"
	FlagUrgentLanguage        = "URGENT_LANGUAGE"
	FlagAbsolutistClaims      = "ABSOLUTIST_CLAIMS"
	FlagUnverifiedSources     = "UNVERIFIED_SOURCES"
	FlagEmotionalManipulation = "EMOTIONAL_MANIPULATION"
	FlagSensationalism        = "SENSATIONALISM"
)

// pattern is a regexp with an optional negative continuation, since RE2 has
// no lookahead: a match followed by notFollowedBy does not count.
type pattern struct {
	re            *regexp.Regexp
	notFollowedBy string
}

func (p pattern) match(s string) bool {
	for _, loc := range p.re.FindAllStringIndex(s, -1) {
		if p.notFollowedBy == "" || !strings.HasPrefix(strings.ToLower(s[loc[1]:]), p.notFollowedBy) {
			return true
		}
	}
	return false
}

func ci(expr string) pattern { return pattern{re: regexp.MustCompile(`(?i)` + expr)} }

type redFlagCategory struct {
	flag     string
	patterns []pattern
}

var redFlagCategories = []redFlagCategory{
	{FlagUrgentLanguage, []pattern{
		ci(`\b(urgent|emergency|immediately|right now|act now|hurry|quick|asap)\b`),
		ci(`\bbefore it'?s (too late|deleted|removed|banned)\b`),
		ci(`\bthey (don'?t want|are hiding|won'?t tell)\b`),
	}},
	{FlagAbsolutistClaims, []pattern{
		ci(`\b(always|never|every|all|none|completely|totally|absolutely)\b|100%`),
		ci(`\b(everyone knows|everybody says|no one)\b`),
		ci(`\b(proven fact|undeniable|irrefutable|guaranteed)\b`),
	}},
	{FlagUnverifiedSources, []pattern{
		ci(`\ba (doctor|scientist|expert|friend) (said|told me)\b`),
		{re: regexp.MustCompile(`(?i)\b(studies|research) shows?\b`), notFollowedBy: " from"},
		ci(`\bI (heard|read) (that|somewhere)\b`),
		ci(`\b(they|people) say\b`),
	}},
	{FlagConspiracyLanguage, []pattern{
		ci(`\b(cover[ -]?up|conspiracy|secret|hidden (truth|agenda))\b`),
		ci(`\bbig (pharma|tech|government|media)\b`),
		ci(`\b(wake up|sheeple|open your eyes)\b`),
		ci(`\b(deep state|new world order)\b`),
	}},
	{FlagEmotionalManipulation, []pattern{
		ci(`\b(shocking|terrifying|devastating|horrifying|outrageous)\b`),
		ci(`\byou (won'?t believe|need to see|must know)\b`),
		ci(`\bthis will (change|blow your mind|shock you)\b`),
	}},
	{FlagSensationalism, []pattern{
		{re: regexp.MustCompile(`!{3,}|\?{3,}`)},
		// Caps runs are case-sensitive; a case-insensitive match would flag every long word.
		{re: regexp.MustCompile(`\b[A-Z]{5,}\b`)},
	}},
}

var (
	statPatterns = []pattern{
		ci(`\d+%`),
		ci(`\d+\s*(million|billion|thousand|hundred)`),
		ci(`\d+\s*in\s*\d+`),
		ci(`\d+x\b`),
		ci(`\d+\s*(times|fold)`),
	}
	healthKeywords = []string{
		"cure", "treat", "prevent", "heal", "remedy", "remedies", "vaccine",
		"drug", "medication", "medicine", "therapy", "disease", "illness", "cancer",
		"covid", "virus", "infection", "immune", "immunity", "health",
		"diagnosis", "symptom", "side effect", "toxin", "detox", "cleanse", "boost", "strengthen",
	}
	factualVerbs = regexp.MustCompile(`(?i)\b(is|are|was|were|has|have|had|contains?|causes?|shows?|proves?|demonstrates?|reveals?|confirms?)\b`)
	eventVerbs   = regexp.MustCompile(`(?i)\b(found|discovered|stolen|shattered|broken|destroyed|lost|recovered|seized|occurred|happened|took|died|killed|announced|reported|revealed|confirmed|declared|arrested|caught|escaped|attacked|invaded)\b`)
	temporal     = regexp.MustCompile(`(?i)\b(\d{1,4}|january|february|march|april|may|june|july|august|september|october|november|december|yesterday|today|tonight|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	// A capitalized word after the first one stands in for a named entity.
	properNoun = regexp.MustCompile(`\s[A-Z][a-z]+`)

	authorityPatterns = []pattern{
		ci(`(doctor|dr\.|scientist|researcher|expert|study|studies|research)s?\s+(say|says|said|show|shows|showed|found|report|reports|reported)`),
		ci(`according to\s+(a|an|the)?\s*(doctor|scientist|expert|study|research)`),
		ci(`(studies|research|evidence)\s+(show|shows|suggest|suggests|prove|proves)`),
	}
	specificSource = regexp.MustCompile(`(?i)(university|journal|institution|organization)`)

	medicalPatterns = []pattern{
		{re: regexp.MustCompile(`(?i)\b(cure[sd]?|curing|100% (effective|cure))\b`), notFollowedBy: " cancer"},
		ci(`\bnatural (cure|remedy|treatment) for\b`),
		ci(`\bbig pharma (hiding|covering up|doesn'?t want)\b`),
		ci(`\bvaccines? (causes?|caused|contains?|contained)\b`),
		ci(`\b(detox|cleanse|toxins)\b`),
	}

	clickbaitPatterns = []pattern{
		ci(`^you (won'?t believe|need to (see|know))`),
		ci(`^what happens next will`),
		ci(`^doctors hate (him|her|this)`),
		ci(`^this one (trick|secret|tip)`),
		ci(`^number \d+ will`),
	}
	capsWord      = regexp.MustCompile(`\b[A-Z]{5,}\b`)
	exclaimRun    = regexp.MustCompile(`!{2,}`)
	shareRequest  = ci(`\b(share (this|now)|repost|spread the word|tell everyone|pass (it|this) on)\b`)
	sentenceSplit = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

type claim struct {
	text       string
	kind       string
	verifiable bool
	vague      bool
	highRisk   bool
	redFlags   []string
}

type textSignals struct {
	clickbait     bool
	excessiveCaps bool
	exclamations  int
	shareRequest  bool
	urlCount      int
}

// ClaimHeuristics scores the credibility of a post's text with pattern
// rules: claim extraction, red-flag language and structural signals.
type ClaimHeuristics struct {
	logger logging.Logger
}

func NewClaimHeuristics(logger logging.Logger) *ClaimHeuristics {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ClaimHeuristics{logger: logger.With(logging.Field{Key: "component", Value: "claims"})}
}

func (h *ClaimHeuristics) AnalyzeClaims(ctx context.Context, in ClaimInput) (*model.ClaimAnalysisPayload, error) {
	text := strings.TrimSpace(in.Text)
	if len(text) < minClaimTextChars {
		return nil, Skip(ReasonInsufficientText)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims := extractClaims(text)
	signals := analyzeText(text)
	score, concern := credibilityScore(claims, signals)
	flags := claimFlags(claims, signals)
	medical := hasMedicalFlag(flags)

	out := &model.ClaimAnalysisPayload{
		CredibilityScore:     score,
		TotalClaims:          len(claims),
		ClaimTypes:           claimTypes(claims),
		Flags:                flags,
		RiskLevel:            riskLevel(score, medical),
		RequiresManualReview: score < 40 || medical || len(flags) >= 3,
	}
	out.Summary = summarize(out, claims, signals, concern)

	h.logger.Debug("analyzed claims",
		logging.Field{Key: "content_id", Value: in.ContentID},
		logging.Field{Key: "claims", Value: len(claims)},
		logging.Field{Key: "score", Value: score})
	return out, nil
}

func extractClaims(text string) []claim {
	var sentences []string
	for _, s := range sentenceSplit.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	var all []claim
	for _, s := range sentences {
		if anyMatch(statPatterns, s) {
			all = append(all, claim{text: s, kind: ClaimStatistical, verifiable: true})
		}
	}
	for _, s := range sentences {
		lower := strings.ToLower(s)
		for _, kw := range healthKeywords {
			if strings.Contains(lower, kw) {
				all = append(all, claim{text: s, kind: ClaimHealth, verifiable: true, highRisk: true})
				break
			}
		}
	}
	for _, s := range sentences {
		if len(strings.Fields(s)) < 3 || strings.HasSuffix(s, "?") {
			continue
		}
		entity := properNoun.MatchString(s)
		if (factualVerbs.MatchString(s) && entity) || eventVerbs.MatchString(s) || temporal.MatchString(s) {
			all = append(all, claim{text: s, kind: ClaimFactual, verifiable: true})
		}
	}
	for _, s := range sentences {
		if anyMatch(authorityPatterns, s) {
			specific := specificSource.MatchString(s)
			all = append(all, claim{text: s, kind: ClaimAuthority, verifiable: specific, vague: !specific})
		}
	}

	// First claim per sentence wins.
	seen := map[string]bool{}
	var out []claim
	for _, c := range all {
		key := strings.ToLower(c.text)
		if seen[key] {
			continue
		}
		seen[key] = true
		c.redFlags = redFlagsIn(c.text)
		if c.kind == ClaimHealth && !anyMatch(medicalPatterns, c.text) && len(c.redFlags) == 0 {
			// Mentions health without any misinformation marker.
			c.highRisk = false
		}
		out = append(out, c)
	}
	return out
}

func redFlagsIn(s string) []string {
	var out []string
	for _, cat := range redFlagCategories {
		if anyMatch(cat.patterns, s) {
			out = append(out, cat.flag)
		}
	}
	return out
}

func anyMatch(ps []pattern, s string) bool {
	for _, p := range ps {
		if p.match(s) {
			return true
		}
	}
	return false
}

func analyzeText(text string) textSignals {
	return textSignals{
		clickbait:     anyMatch(clickbaitPatterns, text),
		excessiveCaps: len(capsWord.FindAllString(text, -1)) > 3,
		exclamations:  len(exclaimRun.FindAllString(text, -1)),
		shareRequest:  shareRequest.match(text),
		urlCount:      len(utils.ExtractURLs(text)),
	}
}

// credibilityScore returns the 0-100 sub-score (one decimal) and the reason
// carrying the largest penalty.
func credibilityScore(claims []claim, sig textSignals) (float64, string) {
	type penalty struct {
		reason string
		points float64
	}
	var penalties []penalty
	add := func(reason string, points float64) {
		penalties = append(penalties, penalty{reason, points})
	}

	var redFlags, unverifiable, vague, medical int
	for _, c := range claims {
		redFlags += len(c.redFlags)
		if !c.verifiable {
			unverifiable++
		}
		if c.vague {
			vague++
		}
		if c.highRisk {
			medical++
		}
	}
	if redFlags > 0 {
		add(fmt.Sprintf("%d red flag pattern(s) detected", redFlags), math.Min(float64(redFlags*5), 30))
	}
	if unverifiable > 0 {
		add(fmt.Sprintf("%d unverifiable claim(s)", unverifiable), math.Min(float64(unverifiable*5), 20))
	}
	if vague > 0 {
		add(fmt.Sprintf("%d claim(s) with vague sources", vague), math.Min(float64(vague*7), 25))
	}
	if medical > 0 {
		add(fmt.Sprintf("%d unverified medical claim(s)", medical), math.Min(float64(medical*15), 40))
	}
	if sig.clickbait {
		add("Clickbait patterns detected", 15)
	}
	if sig.excessiveCaps {
		add("Excessive capitalization", 10)
	}
	if sig.shareRequest {
		add("Urgency to share/spread", 10)
	}
	if sig.exclamations > 2 {
		add("Excessive exclamation marks", 8)
	}

	bonus := 0.0
	if sig.urlCount > 0 {
		bonus += math.Min(float64(sig.urlCount*5), 15)
	}
	if redFlags == 0 && len(claims) > 0 {
		bonus += 10
	}

	total := 0.0
	concern := ""
	top := -1.0
	for _, p := range penalties {
		total += p.points
		if p.points > top {
			top, concern = p.points, p.reason
		}
	}
	score := clampScore(claimBaseScore - total + bonus)
	return math.Round(score*10) / 10, concern
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func claimFlags(claims []claim, sig textSignals) []string {
	var flags []string
	var medical, unverifiable int
	categories := map[string]bool{}
	for _, c := range claims {
		if c.highRisk {
			medical++
		}
		if !c.verifiable {
			unverifiable++
		}
		for _, f := range c.redFlags {
			categories[f] = true
		}
	}
	if medical > 0 {
		flags = append(flags, fmt.Sprintf("%s:%d", FlagMedicalClaims, medical))
	}
	if unverifiable > 2 {
		flags = append(flags, fmt.Sprintf("%s:%d", FlagMultipleUnverifiable, unverifiable))
	}
	if sig.clickbait {
		flags = append(flags, FlagClickbait)
	}
	if sig.excessiveCaps {
		flags = append(flags, FlagExcessiveCaps)
	}
	if sig.shareRequest {
		flags = append(flags, FlagViralPressure)
	}
	for _, cat := range redFlagCategories {
		if categories[cat.flag] {
			flags = append(flags, cat.flag)
		}
	}
	return flags
}

func hasMedicalFlag(flags []string) bool {
	for _, f := range flags {
		if strings.HasPrefix(f, FlagMedicalClaims) {
			return true
		}
	}
	return false
}

func riskLevel(score float64, medical bool) string {
	switch {
	case score < 30 || medical:
		return "high"
	case score < 50:
		return "medium"
	case score < 70:
		return "low"
	}
	return "very_low"
}

func interpret(score float64) string {
	switch {
	case score >= 80:
		return "Highly credible - Few or no red flags"
	case score >= 65:
		return "Generally credible - Minor concerns"
	case score >= 50:
		return "Questionable - Multiple red flags detected"
	case score >= 30:
		return "Low credibility - Many warning signs"
	}
	return "Very low credibility - High risk of misinformation"
}

func claimTypes(claims []claim) []string {
	counts := map[string]int{}
	for _, c := range claims {
		counts[c.kind]++
	}
	out := make([]string, 0, len(counts))
	for k, n := range counts {
		out = append(out, fmt.Sprintf("%s:%d", k, n))
	}
	sort.Strings(out)
	return out
}

func summarize(p *model.ClaimAnalysisPayload, claims []claim, sig textSignals, concern string) string {
	parts := []string{fmt.Sprintf("Credibility Score: %g/100 (%s)", p.CredibilityScore, interpret(p.CredibilityScore))}
	if len(claims) > 0 {
		parts = append(parts, fmt.Sprintf("Analyzed %d claim(s)", len(claims)))
		high := 0
		for _, c := range claims {
			if c.highRisk {
				high++
			}
		}
		if high > 0 {
			parts = append(parts, fmt.Sprintf("%d high-risk medical/health claim(s)", high))
		}
	}
	if concern != "" {
		parts = append(parts, "Main concern: "+concern)
	}
	if sig.urlCount > 0 {
		parts = append(parts, fmt.Sprintf("Includes %d source link(s)", sig.urlCount))
	}
	return strings.Join(parts, " | ")
}
