package model

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// FailureKind classifies why a job ended in the failed state.
type FailureKind string

const (
	FailureExtraction  FailureKind = "extraction"
	FailureTimeout     FailureKind = "timeout"
	FailurePersistence FailureKind = "persistence"
	FailureInternal    FailureKind = "internal"
	FailureStale       FailureKind = "stale"
)

// Job is one content-analysis request.
type Job struct {
	ID string `json:"id"`

	// Content identity: the submitted URL, its canonical form (the cache
	// identity) and the platform content id derived from it.
	ContentURL   string `json:"content_url"`
	CanonicalURL string `json:"canonical_url"`
	ContentID    string `json:"content_id"`

	Status      JobStatus   `json:"status"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	Error       string      `json:"error,omitempty"`
	Cached      bool        `json:"cached"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ProcessingTime time.Duration `json:"-"`

	Content *ExtractionPayload `json:"content,omitempty"`
	Bundle  *StageBundle       `json:"bundle,omitempty"`
	Score   *TrustScoreResult  `json:"score,omitempty"`
}

// JobResult is what the orchestrator persists when a job completes.
type JobResult struct {
	Content        *ExtractionPayload
	Bundle         *StageBundle
	Score          *TrustScoreResult
	Cached         bool
	ProcessingTime time.Duration
}
