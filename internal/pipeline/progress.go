package pipeline

import "github.com/prempunmagar/trustcard/internal/model"

const (
	MsgPending    = "Waiting to start..."
	MsgExtracting = "Extracting content..."
	MsgMedia      = "Running media analysis..."
	MsgClaims     = "Analyzing claims..."
	MsgSources    = "Checking sources..."
	MsgScoring    = "Calculating trust score..."
	MsgCompleted  = "Analysis complete"
	MsgFailed     = "Analysis failed"
)

// Progress estimates completion of a job from the stages recorded so far.
// It is coarse: stage count, not time.
func Progress(job *model.Job) (int, string) {
	if job == nil {
		return 0, ""
	}
	switch job.Status {
	case model.JobCompleted:
		return 100, MsgCompleted
	case model.JobFailed:
		return 0, MsgFailed
	case model.JobPending:
		return 0, MsgPending
	}

	b := job.Bundle
	if _, ok := b.Get(model.AnalyzerExtraction); !ok {
		return 10, MsgExtracting
	}
	pct, msg := 20, MsgMedia
	members := 0
	for _, a := range model.ParallelGroup {
		if _, ok := b.Get(a); ok {
			members++
		}
	}
	pct += 20 * members
	if members == len(model.ParallelGroup) {
		msg = MsgClaims
	}
	if _, ok := b.Get(model.AnalyzerClaimAnalysis); ok {
		pct, msg = max(pct, 80), MsgSources
	}
	if _, ok := b.Get(model.AnalyzerReputation); ok {
		pct, msg = 90, MsgScoring
	}
	return pct, msg
}
