package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/cache"
	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/queue"
	"github.com/prempunmagar/trustcard/internal/store"
)

type jobTask struct {
	JobID string `json:"job_id"`
}

type stageTask struct {
	JobID    string                   `json:"job_id"`
	GroupID  string                   `json:"group_id"`
	Analyzer model.AnalyzerType       `json:"analyzer"`
	Content  *model.ExtractionPayload `json:"content"`
}

type continueTask struct {
	JobID   string `json:"job_id"`
	GroupID string `json:"group_id"`
}

// handleStart runs intake, the whole-pipeline cache check and extraction,
// then fans the parallel group out.
func (o *Orchestrator) handleStart(ctx context.Context, t *queue.Task) error {
	var task jobTask
	if err := t.Decode(&task); err != nil {
		return err
	}
	log := o.logger.With(logging.Field{Key: "job_id", Value: task.JobID})

	processing, err := o.store.MarkProcessing(ctx, task.JobID)
	if errors.Is(err, store.ErrJobNotFound) {
		log.Warn("start for unknown job dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if !processing {
		log.Debug("job already terminal, start ignored")
		return nil
	}
	job, err := o.store.GetJob(ctx, task.JobID)
	if err != nil {
		return err
	}
	o.events.Publish(JobEvent{JobID: job.ID, Type: EventStatus, Status: model.JobProcessing, Progress: 10, Message: MsgExtracting})

	if hit, ok := o.cache.Lookup(ctx, job.CanonicalURL); ok && hit.Score != nil && hit.Bundle != nil {
		return o.completeFromCache(ctx, job, hit)
	}

	content, err := o.extract(ctx, job)
	if err != nil {
		o.fail(ctx, job.ID, model.FailureExtraction, err.Error())
		return nil
	}
	if err := o.store.SaveContent(ctx, job.ID, content); err != nil {
		return err
	}
	o.publish(ctx, job.ID, EventStage, model.AnalyzerExtraction)

	groupID := o.barrier.Open(job.ID, model.ParallelGroup, o.cfg.GroupTimeout, func(string) {
		o.fail(context.Background(), job.ID, model.FailureTimeout,
			fmt.Sprintf("parallel analysis did not finish within %s", o.cfg.GroupTimeout))
	})
	for _, a := range model.ParallelGroup {
		st := stageTask{JobID: job.ID, GroupID: groupID, Analyzer: a, Content: content}
		if _, err := o.queue.Enqueue(ctx, TaskStage, st); err != nil {
			o.barrier.Cancel(groupID)
			o.fail(ctx, job.ID, model.FailureInternal, fmt.Sprintf("could not dispatch %s: %v", a, err))
			return nil
		}
	}
	log.Debug("parallel group dispatched", logging.Field{Key: "group_id", Value: groupID})
	return nil
}

func (o *Orchestrator) completeFromCache(ctx context.Context, job *model.Job, hit *cache.CachedAnalysis) error {
	content := hit.Content
	if content == nil {
		content = hit.Bundle.Content()
	}
	res := model.JobResult{
		Content:        content,
		Bundle:         hit.Bundle,
		Score:          hit.Score,
		Cached:         true,
		ProcessingTime: o.elapsed(job),
	}
	ok, err := o.store.CompleteJob(ctx, job.ID, res)
	if err != nil {
		o.fail(ctx, job.ID, model.FailurePersistence, "persist cached result: "+err.Error())
		return nil
	}
	if ok {
		o.logger.Info("job served from cache",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "cached_at", Value: hit.CachedAt})
		o.publishResult(job.ID)
	}
	return nil
}

// extract returns the post content, reusing a recorded extraction on
// redelivery and the raw-content cache when it has the content id.
func (o *Orchestrator) extract(ctx context.Context, job *model.Job) (*model.ExtractionPayload, error) {
	if r, ok := job.Bundle.Get(model.AnalyzerExtraction); ok {
		if !r.IsCompleted() {
			return nil, fmt.Errorf("extraction failed: %s", r.Reason)
		}
		return r.Extraction, nil
	}

	var result model.StageResult
	if raw, ok := o.cache.LookupRawContent(ctx, job.ContentID); ok {
		result = model.Completed(raw)
	} else {
		v, err, _ := o.flight.Do(job.ContentID, func() (any, error) {
			r := o.runStage(ctx, model.AnalyzerExtraction, func(ctx context.Context) (model.Payload, error) {
				p, err := o.an.Extractor.Extract(ctx, job.CanonicalURL)
				if err != nil {
					return nil, err
				}
				return p, nil
			})
			if r.IsCompleted() {
				o.cache.StoreRawContent(ctx, job.ContentID, r.Extraction)
			}
			return r, nil
		})
		if err != nil {
			return nil, err
		}
		result = v.(model.StageResult)
	}

	if _, err := o.store.RecordStage(ctx, job.ID, result); err != nil {
		return nil, fmt.Errorf("record extraction: %w", err)
	}
	if !result.IsCompleted() {
		return nil, fmt.Errorf("extraction %s: %s", result.Status, result.Reason)
	}
	return result.Extraction, nil
}

// handleStage runs one member of the parallel group and arrives at the barrier.
func (o *Orchestrator) handleStage(ctx context.Context, t *queue.Task) error {
	var task stageTask
	if err := t.Decode(&task); err != nil {
		return err
	}
	if o.barrier.Closed(task.GroupID) {
		o.logger.Debug("group closed, stage skipped",
			logging.Field{Key: "job_id", Value: task.JobID},
			logging.Field{Key: "stage", Value: string(task.Analyzer)})
		return nil
	}

	result := o.runMember(ctx, task.Analyzer, task.Content)
	if _, err := o.store.RecordStage(ctx, task.JobID, result); err != nil {
		return fmt.Errorf("record %s: %w", task.Analyzer, err)
	}
	o.publish(ctx, task.JobID, EventStage, task.Analyzer)

	last, err := o.barrier.Arrive(task.GroupID, task.Analyzer)
	if err != nil || !last {
		return nil
	}
	if _, err := o.queue.Enqueue(ctx, TaskContinue, continueTask{JobID: task.JobID, GroupID: task.GroupID}); err != nil {
		o.fail(ctx, task.JobID, model.FailureInternal, "could not dispatch continuation: "+err.Error())
	}
	return nil
}

func (o *Orchestrator) runMember(ctx context.Context, a model.AnalyzerType, content *model.ExtractionPayload) model.StageResult {
	if content == nil {
		return model.Failed(a, errors.New("no extracted content"))
	}
	id := content.ContentID
	switch a {
	case model.AnalyzerAuthenticity:
		if o.an.Authenticity == nil {
			return model.Skipped(a, ReasonNotConfigured)
		}
		in := analyzer.AuthenticityInput{ContentID: id, ImageURLs: content.ImageURLs}
		return o.runStage(ctx, a, func(ctx context.Context) (model.Payload, error) {
			p, err := o.an.Authenticity.DetectSynthetic(ctx, in)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	case model.AnalyzerTextExtraction:
		if o.an.Text == nil {
			return model.Skipped(a, ReasonNotConfigured)
		}
		in := analyzer.TextInput{ContentID: id, Caption: content.Caption, ImageURLs: content.ImageURLs}
		return o.runStage(ctx, a, func(ctx context.Context) (model.Payload, error) {
			p, err := o.an.Text.ExtractText(ctx, in)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	case model.AnalyzerManipulation:
		if o.an.Manipulation == nil {
			return model.Skipped(a, ReasonNotConfigured)
		}
		in := analyzer.ManipulationInput{ContentID: id, ImageURLs: content.ImageURLs, VideoURLs: content.VideoURLs}
		return o.runStage(ctx, a, func(ctx context.Context) (model.Payload, error) {
			p, err := o.an.Manipulation.DetectManipulation(ctx, in)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}
	return model.Failed(a, fmt.Errorf("%s is not a parallel stage", a))
}

// handleContinue runs after every parallel member has reported: the
// dependent stages, scoring and finalization.
func (o *Orchestrator) handleContinue(ctx context.Context, t *queue.Task) error {
	var task continueTask
	if err := t.Decode(&task); err != nil {
		return err
	}
	log := o.logger.With(logging.Field{Key: "job_id", Value: task.JobID})

	job, err := o.store.GetJob(ctx, task.JobID)
	if errors.Is(err, store.ErrJobNotFound) {
		log.Warn("continuation for unknown job dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status != model.JobProcessing {
		log.Info("job no longer processing, continuation aborted", logging.Field{Key: "status", Value: string(job.Status)})
		return nil
	}

	bundle := job.Bundle
	if bundle == nil {
		bundle = model.NewStageBundle()
	}
	content := bundle.Content()
	if content == nil {
		o.fail(ctx, job.ID, model.FailureInternal, "continuation without extracted content")
		return nil
	}
	for _, a := range bundle.Missing(model.ParallelGroup) {
		if !o.record(ctx, job.ID, bundle, model.Failed(a, errors.New("no result reported"))) {
			return nil
		}
	}

	text := content.Caption
	if r, ok := bundle.CompletedStage(model.AnalyzerTextExtraction); ok && strings.TrimSpace(r.TextExtraction.CombinedText) != "" {
		text = r.TextExtraction.CombinedText
	}

	if _, ok := bundle.Get(model.AnalyzerClaimAnalysis); !ok {
		in := analyzer.ClaimInput{ContentID: content.ContentID, Text: text}
		r := o.runStage(ctx, model.AnalyzerClaimAnalysis, func(ctx context.Context) (model.Payload, error) {
			p, err := o.an.Claims.AnalyzeClaims(ctx, in)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
		if !o.record(ctx, job.ID, bundle, r) {
			return nil
		}
		o.publish(ctx, job.ID, EventStage, model.AnalyzerClaimAnalysis)
	}
	if !o.stillProcessing(ctx, job.ID) {
		log.Info("job left processing during claim analysis")
		return nil
	}

	if _, ok := bundle.Get(model.AnalyzerReputation); !ok {
		in := analyzer.ReputationInput{ContentID: content.ContentID, Text: text, Author: content.Author}
		r := o.runStage(ctx, model.AnalyzerReputation, func(ctx context.Context) (model.Payload, error) {
			p, err := o.an.Reputation.CheckReputation(ctx, in)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
		if !o.record(ctx, job.ID, bundle, r) {
			return nil
		}
		o.publish(ctx, job.ID, EventStage, model.AnalyzerReputation)
	}
	if !o.stillProcessing(ctx, job.ID) {
		log.Info("job left processing during reputation check")
		return nil
	}

	score := o.scorer.Score(bundle)
	res := model.JobResult{
		Content:        content,
		Bundle:         bundle,
		Score:          score,
		ProcessingTime: o.elapsed(job),
	}
	ok, err := o.store.CompleteJob(ctx, job.ID, res)
	if err != nil {
		o.fail(ctx, job.ID, model.FailurePersistence, "persist result: "+err.Error())
		return nil
	}
	if !ok {
		log.Info("job left processing before completion")
		return nil
	}

	o.cache.StoreAnalysis(ctx, job.CanonicalURL, cache.CachedAnalysis{Content: content, Bundle: bundle, Score: score})
	o.cache.StoreRawContent(ctx, content.ContentID, content)

	log.Info("job completed",
		logging.Field{Key: "score", Value: model.Round2(score.FinalScore)},
		logging.Field{Key: "grade", Value: score.Grade},
		logging.Field{Key: "processing_ms", Value: res.ProcessingTime.Milliseconds()})
	o.publishResult(job.ID)
	return nil
}

// record persists r and adds it to bundle. A store failure fails the job with
// kind persistence and reports false.
func (o *Orchestrator) record(ctx context.Context, jobID string, bundle *model.StageBundle, r model.StageResult) bool {
	if _, err := o.store.RecordStage(ctx, jobID, r); err != nil {
		o.fail(ctx, jobID, model.FailurePersistence, fmt.Sprintf("record %s: %v", r.Analyzer, err))
		return false
	}
	if err := bundle.Add(r); err != nil && !errors.Is(err, model.ErrStageRecorded) {
		o.fail(ctx, jobID, model.FailureInternal, err.Error())
		return false
	}
	return true
}

func (o *Orchestrator) stillProcessing(ctx context.Context, jobID string) bool {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		o.logger.Warn("status re-check failed",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "error", Value: err.Error()})
		return false
	}
	return job.Status == model.JobProcessing
}

func (o *Orchestrator) handleDeadLetter(ctx context.Context, t *queue.Task, err error) {
	var task jobTask
	if decodeErr := t.Decode(&task); decodeErr != nil || task.JobID == "" {
		o.logger.Error("dead-lettered task without job",
			logging.Field{Key: "task_type", Value: t.Type},
			logging.Field{Key: "task_id", Value: t.ID})
		return
	}
	o.fail(ctx, task.JobID, model.FailureInternal, fmt.Sprintf("%s failed after %d attempts: %v", t.Type, t.Attempt, err))
}

func (o *Orchestrator) elapsed(job *model.Job) (d time.Duration) {
	if job.StartedAt == nil {
		return 0
	}
	if d = o.now().Sub(*job.StartedAt); d < 0 {
		return 0
	}
	return d
}
