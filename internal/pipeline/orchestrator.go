// Package pipeline drives content-analysis jobs from submission to a terminal
// state. Each step runs as a queue task; the media analyzers fan out as a
// group whose barrier dispatches the continuation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/cache"
	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/queue"
	"github.com/prempunmagar/trustcard/internal/store"
	"github.com/prempunmagar/trustcard/internal/utils"
)

// Task types dispatched on the queue.
const (
	TaskStart    = "pipeline.start"
	TaskStage    = "pipeline.stage"
	TaskContinue = "pipeline.continue"
)

var ErrInvalidURL = errors.New("invalid content url")

// JobStore is the persistence the orchestrator needs. *store.Store implements it.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, f store.JobFilter) ([]*model.Job, error)
	DeleteJob(ctx context.Context, id string) error
	MarkProcessing(ctx context.Context, id string) (bool, error)
	SaveContent(ctx context.Context, id string, content *model.ExtractionPayload) error
	RecordStage(ctx context.Context, jobID string, r model.StageResult) (bool, error)
	CompleteJob(ctx context.Context, id string, res model.JobResult) (bool, error)
	FailJob(ctx context.Context, id string, kind model.FailureKind, msg string) (bool, error)
	StaleJobs(ctx context.Context, before time.Time) ([]string, error)
}

// TaskQueue is the dispatch surface the orchestrator needs. *queue.Queue implements it.
type TaskQueue interface {
	Register(taskType string, h queue.Handler)
	OnDeadLetter(fn queue.DeadLetterFunc)
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

type Scorer interface {
	Score(bundle *model.StageBundle) *model.TrustScoreResult
}

// Analyzers bundles the stage implementations. Extractor, Claims and
// Reputation are required; a nil media analyzer records its stage as skipped.
type Analyzers struct {
	Extractor    analyzer.Extractor
	Authenticity analyzer.AuthenticityDetector
	Text         analyzer.TextExtractor
	Manipulation analyzer.ManipulationDetector
	Claims       analyzer.ClaimAnalyzer
	Reputation   analyzer.ReputationChecker
}

type Config struct {
	// GroupTimeout is the wait budget of the parallel group, enforced at the barrier.
	GroupTimeout time.Duration
	// AnalyzerTimeout bounds every single analyzer call.
	AnalyzerTimeout time.Duration
	// StageAttempts is how many times a failing analyzer is called before its
	// stage is recorded as failed.
	StageAttempts int
	StaleAfter    time.Duration
	ReapInterval  time.Duration
	EventBuffer   int
}

func DefaultConfig() Config {
	return Config{
		GroupTimeout:    120 * time.Second,
		AnalyzerTimeout: 60 * time.Second,
		StageAttempts:   1,
		StaleAfter:      10 * time.Minute,
		ReapInterval:    time.Minute,
		EventBuffer:     16,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GroupTimeout <= 0 {
		c.GroupTimeout = def.GroupTimeout
	}
	if c.AnalyzerTimeout <= 0 {
		c.AnalyzerTimeout = def.AnalyzerTimeout
	}
	if c.StageAttempts <= 0 {
		c.StageAttempts = def.StageAttempts
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = def.ReapInterval
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

type Deps struct {
	Store     JobStore
	Queue     TaskQueue
	Cache     *cache.Gate
	Scorer    Scorer
	Analyzers Analyzers
	Logger    logging.Logger
}

type Orchestrator struct {
	cfg     Config
	store   JobStore
	queue   TaskQueue
	cache   *cache.Gate
	scorer  Scorer
	an      Analyzers
	logger  logging.Logger
	barrier *Barrier
	events  *Broker
	flight  singleflight.Group
	now     func() time.Time
}

// New validates deps and registers the task handlers on the queue.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: nil store")
	case deps.Queue == nil:
		return nil, errors.New("pipeline: nil queue")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline: nil scorer")
	case deps.Analyzers.Extractor == nil, deps.Analyzers.Claims == nil, deps.Analyzers.Reputation == nil:
		return nil, errors.New("pipeline: extractor, claim and reputation analyzers are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewGate(nil, cache.BackendNone, cache.DefaultConfig(), deps.Logger)
	}
	cfg = cfg.withDefaults()
	// A stage that can outlive the group budget would turn one slow analyzer
	// into a fatal group timeout instead of a failed stage.
	if cfg.AnalyzerTimeout*time.Duration(cfg.StageAttempts) >= cfg.GroupTimeout {
		return nil, fmt.Errorf("pipeline: %d attempts of %s per analyzer do not fit the %s group budget",
			cfg.StageAttempts, cfg.AnalyzerTimeout, cfg.GroupTimeout)
	}

	o := &Orchestrator{
		cfg:     cfg,
		store:   deps.Store,
		queue:   deps.Queue,
		cache:   deps.Cache,
		scorer:  deps.Scorer,
		an:      deps.Analyzers,
		logger:  deps.Logger.With(logging.Field{Key: "component", Value: "pipeline"}),
		barrier: NewBarrier(),
		events:  NewBroker(cfg.EventBuffer),
		now:     time.Now,
	}
	o.queue.Register(TaskStart, o.handleStart)
	o.queue.Register(TaskStage, o.handleStage)
	o.queue.Register(TaskContinue, o.handleContinue)
	o.queue.OnDeadLetter(o.handleDeadLetter)
	return o, nil
}

// Submit creates a pending job for rawURL and schedules it.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string) (*model.Job, error) {
	canonical, err := utils.ContentIdentity(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	contentID, err := o.an.Extractor.ContentID(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	job := &model.Job{
		ID:           uuid.NewString(),
		ContentURL:   rawURL,
		CanonicalURL: canonical,
		ContentID:    contentID,
		Status:       model.JobPending,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if _, err := o.queue.Enqueue(ctx, TaskStart, jobTask{JobID: job.ID}); err != nil {
		o.fail(ctx, job.ID, model.FailureInternal, "could not schedule job: "+err.Error())
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	o.logger.Info("job submitted",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "canonical_url", Value: canonical})
	return job, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*model.Job, error) {
	return o.store.GetJob(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, f store.JobFilter) ([]*model.Job, error) {
	return o.store.ListJobs(ctx, f)
}

func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	return o.store.DeleteJob(ctx, id)
}

// Subscribe streams the events of one job. See Broker.Subscribe.
func (o *Orchestrator) Subscribe(jobID string) (<-chan JobEvent, func()) {
	return o.events.Subscribe(jobID)
}

// Wait blocks until the job reaches a terminal state or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*model.Job, error) {
	events, unsubscribe := o.events.Subscribe(id)
	defer unsubscribe()

	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()
	for {
		job, err := o.store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case <-poll.C:
		}
	}
}

// fail moves a job to failed and publishes the terminal event. It reports
// whether this call made the transition.
func (o *Orchestrator) fail(ctx context.Context, jobID string, kind model.FailureKind, msg string) bool {
	ok, err := o.store.FailJob(context.WithoutCancel(ctx), jobID, kind, msg)
	if err != nil {
		o.logger.Error("could not record job failure",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "kind", Value: string(kind)},
			logging.Field{Key: "error", Value: err.Error()})
		return false
	}
	if !ok {
		return false
	}
	o.logger.Warn("job failed",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "kind", Value: string(kind)},
		logging.Field{Key: "error", Value: msg})
	o.events.Publish(JobEvent{
		JobID:   jobID,
		Type:    EventStatus,
		Status:  model.JobFailed,
		Error:   msg,
		Message: MsgFailed,
	})
	return true
}

// publish emits a non-terminal event with the current progress estimate.
// The job is only loaded when someone listens.
func (o *Orchestrator) publish(ctx context.Context, jobID string, typ EventType, stage model.AnalyzerType) {
	if !o.events.HasSubscribers(jobID) {
		return
	}
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	if job.Status.Terminal() {
		// Terminal transitions publish their own event.
		return
	}
	pct, msg := Progress(job)
	o.events.Publish(JobEvent{JobID: jobID, Type: typ, Status: job.Status, Stage: stage, Progress: pct, Message: msg})
}

func (o *Orchestrator) publishResult(jobID string) {
	ev := JobEvent{JobID: jobID, Type: EventResult, Status: model.JobCompleted, Progress: 100, Message: MsgCompleted}
	o.events.Publish(ev)
}
