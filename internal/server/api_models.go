package server

import (
	"time"

	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/pipeline"
	"github.com/prempunmagar/trustcard/internal/queue"
)

// SubmitRequest is the payload of POST /api/analyses.
type SubmitRequest struct {
	URL string `json:"url"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// AnalysisResponse is the polling view of one job. Score fields are only set
// once the job completed.
type AnalysisResponse struct {
	JobID      string          `json:"job_id"`
	Status     model.JobStatus `json:"status"`
	Message    string          `json:"message"`
	Progress   int             `json:"progress"`
	Cached     bool            `json:"cached"`
	ContentURL string          `json:"content_url"`

	Score            *float64                `json:"score,omitempty"`
	Grade            string                  `json:"grade,omitempty"`
	GradeDescription string                  `json:"grade_description,omitempty"`
	GradeColor       string                  `json:"grade_color,omitempty"`
	Adjustments      []model.ScoreAdjustment `json:"adjustments,omitempty"`
	ComponentScores  map[string]float64      `json:"component_scores,omitempty"`
	Flags            []string                `json:"flags,omitempty"`
	RequiresReview   bool                    `json:"requires_review"`

	Error       string            `json:"error,omitempty"`
	FailureKind model.FailureKind `json:"failure_kind,omitempty"`

	Content *model.ExtractionPayload `json:"content,omitempty"`
	Stages  *model.StageBundle       `json:"stages,omitempty"`

	ProcessingTimeMS int64      `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func newAnalysisResponse(job *model.Job) AnalysisResponse {
	pct, msg := pipeline.Progress(job)
	resp := AnalysisResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Message:     msg,
		Progress:    pct,
		Cached:      job.Cached,
		ContentURL:  job.ContentURL,
		Error:       job.Error,
		FailureKind: job.FailureKind,
		Content:     job.Content,
		Stages:      job.Bundle,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.ProcessingTime > 0 {
		resp.ProcessingTimeMS = job.ProcessingTime.Milliseconds()
	}
	if s := job.Score; s != nil && job.Status == model.JobCompleted {
		score := model.Round2(s.FinalScore)
		resp.Score = &score
		resp.Grade = s.Grade
		resp.GradeDescription = s.GradeDescription
		resp.GradeColor = s.GradeColor
		resp.Adjustments = make([]model.ScoreAdjustment, len(s.Adjustments))
		for i, a := range s.Adjustments {
			a.Impact = model.Round2(a.Impact)
			resp.Adjustments[i] = a
		}
		resp.ComponentScores = s.ComponentScores
		resp.Flags = s.Flags
		resp.RequiresReview = s.RequiresReview
	}
	return resp
}

// AnalysisSummary is one row of GET /api/analyses.
type AnalysisSummary struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	URL       string          `json:"url"`
	Grade     string          `json:"grade,omitempty"`
	Score     *float64        `json:"score,omitempty"`
	Cached    bool            `json:"cached"`
	CreatedAt time.Time       `json:"created_at"`
}

func newAnalysisSummary(job *model.Job) AnalysisSummary {
	sum := AnalysisSummary{
		JobID:     job.ID,
		Status:    job.Status,
		URL:       job.ContentURL,
		Cached:    job.Cached,
		CreatedAt: job.CreatedAt,
	}
	if job.Score != nil {
		score := model.Round2(job.Score.FinalScore)
		sum.Score = &score
		sum.Grade = job.Score.Grade
	}
	return sum
}

// InvalidateResponse reports how many cache entries were removed.
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

type HealthResponse struct {
	Status   string       `json:"status"`
	Database string       `json:"database"`
	Cache    string       `json:"cache"`
	Queue    *queue.Stats `json:"queue,omitempty"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
