package model

import "time"

// Author describes the account that published a piece of content.
type Author struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	Verified  bool   `json:"verified"`
	Followers int64  `json:"followers,omitempty"`
}

type PostType string

const (
	PostPhoto    PostType = "photo"
	PostCarousel PostType = "carousel"
	PostVideo    PostType = "video"
	PostText     PostType = "text"
)

// ExtractionPayload is the raw content scraped for a post. It is also the
// value stored under the raw-content cache key.
type ExtractionPayload struct {
	ContentID    string    `json:"content_id"`
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url"`
	Platform     string    `json:"platform,omitempty"`
	Type         PostType  `json:"type"`
	Title        string    `json:"title,omitempty"`
	Caption      string    `json:"caption"`
	ImageURLs    []string  `json:"image_urls,omitempty"`
	VideoURLs    []string  `json:"video_urls,omitempty"`
	Author       Author    `json:"author"`
	Likes        int64     `json:"likes,omitempty"`
	Comments     int64     `json:"comments,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

func (*ExtractionPayload) Analyzer() AnalyzerType { return AnalyzerExtraction }

// HasMedia reports whether the post carries any image or video.
func (p *ExtractionPayload) HasMedia() bool {
	return p != nil && (len(p.ImageURLs) > 0 || len(p.VideoURLs) > 0)
}

type AuthenticityPayload struct {
	SyntheticDetected bool    `json:"synthetic_detected"`
	Confidence        float64 `json:"confidence"`
	ImagesAnalyzed    int     `json:"images_analyzed"`
	SyntheticImages   int     `json:"synthetic_images"`
	Model             string  `json:"model,omitempty"`
	Assessment        string  `json:"assessment,omitempty"`
}

func (*AuthenticityPayload) Analyzer() AnalyzerType { return AnalyzerAuthenticity }

type TextExtractionPayload struct {
	CombinedText   string  `json:"combined_text"`
	Caption        string  `json:"caption"`
	OCRText        string  `json:"ocr_text,omitempty"`
	ImagesWithText int     `json:"images_with_text"`
	TotalImages    int     `json:"total_images"`
	WordsExtracted int     `json:"words_extracted"`
	AvgConfidence  float64 `json:"avg_confidence"`
	HasText        bool    `json:"has_text"`
}

func (*TextExtractionPayload) Analyzer() AnalyzerType { return AnalyzerTextExtraction }

type ManipulationPayload struct {
	Detected      bool    `json:"detected"`
	Confidence    float64 `json:"confidence"`
	MediaAnalyzed int     `json:"media_analyzed"`
	Method        string  `json:"method,omitempty"`
}

func (*ManipulationPayload) Analyzer() AnalyzerType { return AnalyzerManipulation }

// ClaimAnalysisPayload is the fact-check sub-result. Flags are upper-case
// category names, optionally suffixed with ":<count>" (e.g. "MEDICAL_CLAIMS:2").
type ClaimAnalysisPayload struct {
	CredibilityScore     float64  `json:"credibility_score"`
	TotalClaims          int      `json:"total_claims"`
	ClaimTypes           []string `json:"claim_types,omitempty"`
	Flags                []string `json:"flags,omitempty"`
	RiskLevel            string   `json:"risk_level"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	Summary              string   `json:"summary,omitempty"`
}

func (*ClaimAnalysisPayload) Analyzer() AnalyzerType { return AnalyzerClaimAnalysis }

// SourceRating is the directory verdict for one linked domain.
type SourceRating struct {
	Domain      string  `json:"domain"`
	Reliability string  `json:"reliability"`
	Bias        string  `json:"bias"`
	Score       float64 `json:"score"`
	InDirectory bool    `json:"in_directory"`
	Assessment  string  `json:"assessment,omitempty"`
}

type AuthorAssessment struct {
	Username    string  `json:"username"`
	Verified    bool    `json:"verified"`
	Followers   int64   `json:"followers,omitempty"`
	Reliability float64 `json:"reliability"`
	Note        string  `json:"note,omitempty"`
}

type ReputationPayload struct {
	Sources              []SourceRating   `json:"sources,omitempty"`
	Author               AuthorAssessment `json:"author"`
	AvgReliability       float64          `json:"avg_reliability"`
	LowestReliability    float64          `json:"lowest_reliability"`
	HasUnreliableSources bool             `json:"has_unreliable_sources"`
	HasSatire            bool             `json:"has_satire"`
	HasConspiracy        bool             `json:"has_conspiracy"`
	OverallAssessment    string           `json:"overall_assessment,omitempty"`
	Recommendation       string           `json:"recommendation,omitempty"`
}

func (*ReputationPayload) Analyzer() AnalyzerType { return AnalyzerReputation }
