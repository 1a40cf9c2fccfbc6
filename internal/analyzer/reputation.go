package analyzer

import (
	"context"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/store"
	"github.com/prempunmagar/trustcard/internal/utils"
)

const (
	maxReputationURLs   = 5
	defaultMemoEntries  = 1024
	verifiedAuthorScore = 0.6
	unverifiedAuthor    = 0.4
)

// Reliability ratings used by the source directory.
const (
	RatingVeryHigh = "very-high"
	RatingHigh     = "high"
	RatingMixed    = "mixed"
	RatingLow      = "low"
	RatingVeryLow  = "very-low"
	RatingSatire   = "satire"
	RatingUnknown  = "unknown"
)

var reliabilityScores = map[string]float64{
	RatingVeryHigh: 1.0,
	RatingHigh:     0.8,
	RatingMixed:    0.5,
	RatingLow:      0.3,
	RatingVeryLow:  0.1,
	RatingSatire:   0.0,
	RatingUnknown:  0.5,
}

// ReliabilityScore maps a rating to [0,1]; unknown ratings score as "unknown".
func ReliabilityScore(rating string) float64 {
	if v, ok := reliabilityScores[rating]; ok {
		return v
	}
	return reliabilityScores[RatingUnknown]
}

var biasText = map[string]string{
	"extreme-left":  "extreme left",
	"left":          "left",
	"left-center":   "left-center",
	"center":        "minimal",
	"right-center":  "right-center",
	"right":         "right",
	"extreme-right": "extreme right",
	"varies":        "varies",
}

// SourceDirectory resolves a registrable domain to its directory entry.
type SourceDirectory interface {
	LookupSource(ctx context.Context, domain string) (store.Source, bool, error)
}

// SourceReputation rates the publishers a post links to and its author.
type SourceReputation struct {
	dir    SourceDirectory
	memo   *lru.Cache[string, model.SourceRating]
	logger logging.Logger
}

func NewSourceReputation(dir SourceDirectory, memoEntries int, logger logging.Logger) (*SourceReputation, error) {
	if dir == nil {
		return nil, fmt.Errorf("reputation: nil source directory")
	}
	if memoEntries <= 0 {
		memoEntries = defaultMemoEntries
	}
	memo, err := lru.New[string, model.SourceRating](memoEntries)
	if err != nil {
		return nil, fmt.Errorf("reputation memo: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SourceReputation{
		dir:    dir,
		memo:   memo,
		logger: logger.With(logging.Field{Key: "component", Value: "reputation"}),
	}, nil
}

func (r *SourceReputation) CheckReputation(ctx context.Context, in ReputationInput) (*model.ReputationPayload, error) {
	out := &model.ReputationPayload{Author: assessAuthor(in.Author)}

	urls := utils.ExtractURLs(in.Text)
	if len(urls) > maxReputationURLs {
		urls = urls[:maxReputationURLs]
	}
	for _, u := range urls {
		rating, err := r.rate(ctx, u)
		if err != nil {
			return nil, err
		}
		out.Sources = append(out.Sources, rating)
	}

	if len(out.Sources) == 0 {
		out.AvgReliability = out.Author.Reliability
		out.LowestReliability = out.Author.Reliability
	} else {
		sum, lowest := 0.0, math.Inf(1)
		for _, s := range out.Sources {
			sum += s.Score
			lowest = math.Min(lowest, s.Score)
			switch s.Reliability {
			case RatingLow:
				out.HasUnreliableSources = true
			case RatingVeryLow:
				out.HasUnreliableSources = true
				out.HasConspiracy = true
			case RatingSatire:
				out.HasSatire = true
			}
		}
		out.AvgReliability = sum / float64(len(out.Sources))
		out.LowestReliability = lowest
	}

	out.OverallAssessment = overallAssessment(out)
	out.Recommendation = recommendation(out)
	return out, nil
}

// rate looks a URL's domain up, memoizing by domain. Unparseable URLs rate as unknown.
func (r *SourceReputation) rate(ctx context.Context, rawURL string) (model.SourceRating, error) {
	domain, err := utils.RegistrableDomain(rawURL)
	if err != nil {
		return unknownSource("unknown"), nil
	}
	if v, ok := r.memo.Get(domain); ok {
		return v, nil
	}

	src, found, err := r.dir.LookupSource(ctx, domain)
	if err != nil {
		return model.SourceRating{}, fmt.Errorf("lookup %s: %w", domain, err)
	}
	rating := unknownSource(domain)
	if found {
		rating = model.SourceRating{
			Domain:      domain,
			Reliability: src.Reliability,
			Bias:        src.Bias,
			Score:       ReliabilityScore(src.Reliability),
			InDirectory: true,
			Assessment:  sourceAssessment(src.Bias, src.Reliability),
		}
	}
	r.memo.Add(domain, rating)
	return rating, nil
}

// Purge drops memoized ratings, e.g. after the directory is re-seeded.
func (r *SourceReputation) Purge() { r.memo.Purge() }

func unknownSource(domain string) model.SourceRating {
	return model.SourceRating{
		Domain:      domain,
		Reliability: RatingUnknown,
		Bias:        RatingUnknown,
		Score:       ReliabilityScore(RatingUnknown),
		Assessment:  "Unknown source. Exercise caution and verify claims independently.",
	}
}

func assessAuthor(a model.Author) model.AuthorAssessment {
	out := model.AuthorAssessment{
		Username:    a.Username,
		Verified:    a.Verified,
		Followers:   a.Followers,
		Reliability: unverifiedAuthor,
		Note:        "Unverified account. Verify claims with reliable sources.",
	}
	if out.Username == "" {
		out.Username = "unknown"
	}
	if a.Verified {
		out.Reliability = verifiedAuthorScore
		out.Note = "Verified account. However, verify claims independently."
	}
	return out
}

func sourceAssessment(bias, reliability string) string {
	switch reliability {
	case RatingSatire:
		return "This is a SATIRE site. Content is not intended to be factual."
	case RatingVeryLow:
		return "This source has a very poor factual record. Claims should be verified with reliable sources."
	case RatingLow:
		return "This source has a poor factual record. Verify claims with reliable sources."
	}

	rel := map[string]string{RatingVeryHigh: "excellent", RatingHigh: "good", RatingMixed: "mixed"}[reliability]
	if rel == "" {
		rel = "unknown"
	}
	b := biasText[bias]
	if b == "" {
		b = "unknown"
	}
	if reliability == RatingMixed {
		return fmt.Sprintf("This source has %s factual reporting with %s bias. Verify important claims.", rel, b)
	}
	return fmt.Sprintf("This source has %s factual reporting with %s bias.", rel, b)
}

func overallAssessment(p *model.ReputationPayload) string {
	switch {
	case p.HasConspiracy:
		return "Post links to conspiracy/unreliable sources. Claims are likely false."
	case p.HasSatire:
		return "Post links to satire content. Not intended as factual."
	case p.HasUnreliableSources || p.LowestReliability < 0.3:
		return "Post links to unreliable sources. Verify claims independently."
	case p.AvgReliability > 0.7:
		return "Sources appear credible, but always verify important claims."
	case p.AvgReliability > 0.5:
		return "Mixed source credibility. Verify important claims."
	}
	return "Source credibility unclear. Exercise caution."
}

func recommendation(p *model.ReputationPayload) string {
	switch {
	case p.HasConspiracy:
		return "Do not trust claims without verification from reliable sources."
	case p.HasSatire:
		return "This content is satirical. Do not share as factual information."
	case p.HasUnreliableSources:
		return "Cross-check claims with established news organizations or fact-checkers."
	case p.AvgReliability > 0.7:
		return "Sources are generally reliable, but verify before sharing important claims."
	case p.AvgReliability > 0.5:
		return "Check additional sources before accepting claims as factual."
	}
	return "Exercise caution. Verify all claims with trusted sources."
}
