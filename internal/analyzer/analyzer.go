// Package analyzer defines the signal analyzers a job runs and ships the
// local implementations: page extraction, claim heuristics and source
// reputation. Media analyzers live behind the inference client.
package analyzer

import (
	"context"
	"errors"

	"github.com/prempunmagar/trustcard/internal/model"
)

// Extractor turns a content URL into the post's raw content.
type Extractor interface {
	// ContentID derives the platform content id without fetching anything.
	ContentID(url string) (string, error)
	Extract(ctx context.Context, url string) (*model.ExtractionPayload, error)
}

type AuthenticityDetector interface {
	DetectSynthetic(ctx context.Context, in AuthenticityInput) (*model.AuthenticityPayload, error)
}

type TextExtractor interface {
	ExtractText(ctx context.Context, in TextInput) (*model.TextExtractionPayload, error)
}

type ManipulationDetector interface {
	DetectManipulation(ctx context.Context, in ManipulationInput) (*model.ManipulationPayload, error)
}

type ClaimAnalyzer interface {
	AnalyzeClaims(ctx context.Context, in ClaimInput) (*model.ClaimAnalysisPayload, error)
}

type ReputationChecker interface {
	CheckReputation(ctx context.Context, in ReputationInput) (*model.ReputationPayload, error)
}

type AuthenticityInput struct {
	ContentID string   `json:"content_id"`
	ImageURLs []string `json:"image_urls"`
}

type TextInput struct {
	ContentID string   `json:"content_id"`
	Caption   string   `json:"caption"`
	ImageURLs []string `json:"image_urls"`
}

type ManipulationInput struct {
	ContentID string   `json:"content_id"`
	ImageURLs []string `json:"image_urls"`
	VideoURLs []string `json:"video_urls"`
}

type ClaimInput struct {
	ContentID string
	Text      string
}

type ReputationInput struct {
	ContentID string
	Text      string
	Author    model.Author
}

// SkipError reports that an analyzer's input is structurally absent (no
// images, too little text). It is not a failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

// Skip returns a SkipError with the given reason.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// AsSkip unwraps a SkipError from err.
func AsSkip(err error) (*SkipError, bool) {
	var s *SkipError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// Skip reasons shared by analyzers.
const (
	ReasonNoImages         = "No images to analyze"
	ReasonNoMedia          = "No media to analyze"
	ReasonInsufficientText = "Insufficient text for analysis"
)
