package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prempunmagar/trustcard/internal/logging"
)

var (
	ErrClosed         = errors.New("queue closed")
	ErrUnknownTask    = errors.New("no handler registered for task type")
	ErrAlreadyStarted = errors.New("queue already started")
)

// Task is one unit of work. Payload is JSON so tasks cross the same
// serialization boundary they would with a remote broker.
type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}

// Handler processes a task. Returning an error asks for redelivery.
// Handlers must be idempotent: delivery is at-least-once.
type Handler func(ctx context.Context, t *Task) error

// DeadLetterFunc is called once a task has exhausted its attempts.
type DeadLetterFunc func(ctx context.Context, t *Task, err error)

type Config struct {
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 4, MaxAttempts: 3, RetryBackoff: 500 * time.Millisecond}
}

type Stats struct {
	Enqueued     int64 `json:"enqueued"`
	Completed    int64 `json:"completed"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
	InFlight     int64 `json:"in_flight"`
	Pending      int64 `json:"pending"`
}

// Queue is an in-process task queue consumed by a fixed worker pool.
type Queue struct {
	cfg    Config
	logger logging.Logger

	mu         sync.RWMutex
	handlers   map[string]Handler
	deadLetter DeadLetterFunc
	started    bool
	closed     bool

	in     chan *Task
	out    chan *Task
	stopCh chan struct{}
	wg     sync.WaitGroup

	enqueued, completed, retried, deadLettered, inFlight, pending atomic.Int64
}

func New(cfg Config, logger logging.Logger) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if logger == nil {
		logger = logging.Nop()
	}
	q := &Queue{
		cfg:      cfg,
		logger:   logger.With(logging.Field{Key: "component", Value: "queue"}),
		handlers: make(map[string]Handler),
		in:       make(chan *Task),
		out:      make(chan *Task),
		stopCh:   make(chan struct{}),
	}
	// The dispatcher runs from construction so tasks can be queued before Start.
	q.wg.Add(1)
	go q.dispatch()
	return q
}

// Register binds a handler to a task type. Registering twice replaces the handler.
func (q *Queue) Register(taskType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = h
}

// OnDeadLetter sets the hook for tasks that exhausted their attempts.
func (q *Queue) OnDeadLetter(fn DeadLetterFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetter = fn
}

// Start launches the workers. Workers run until Stop or ctx is done.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	go func() {
		select {
		case <-ctx.Done():
			q.Stop()
		case <-q.stopCh:
		}
	}()

	q.logger.Info("queue started", logging.Field{Key: "workers", Value: q.cfg.Workers})
	return nil
}

// Stop stops accepting tasks and waits for in-flight handlers. Queued tasks
// that have not started are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("queue stopped",
		logging.Field{Key: "completed", Value: q.completed.Load()},
		logging.Field{Key: "dropped", Value: q.pending.Load()})
}

// Enqueue JSON-encodes payload and schedules a new task.
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload any) (string, error) {
	q.mu.RLock()
	_, ok := q.handlers[taskType]
	q.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, taskType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	t := &Task{
		ID:          uuid.New().String(),
		Type:        taskType,
		Payload:     raw,
		MaxAttempts: q.cfg.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := q.push(ctx, t); err != nil {
		return "", err
	}
	q.enqueued.Add(1)
	return t.ID, nil
}

func (q *Queue) push(ctx context.Context, t *Task) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case q.in <- t:
		return nil
	case <-q.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch buffers tasks without bound so a handler that enqueues follow-up
// work never blocks on busy workers.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	var backlog []*Task
	for {
		var (
			out  chan *Task
			next *Task
		)
		if len(backlog) > 0 {
			out = q.out
			next = backlog[0]
		}
		select {
		case t := <-q.in:
			backlog = append(backlog, t)
			q.pending.Add(1)
		case out <- next:
			backlog[0] = nil
			backlog = backlog[1:]
			q.pending.Add(-1)
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case t := <-q.out:
			q.run(ctx, t)
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) run(ctx context.Context, t *Task) {
	q.mu.RLock()
	h := q.handlers[t.Type]
	q.mu.RUnlock()

	t.Attempt++
	q.inFlight.Add(1)
	err := q.invoke(ctx, h, t)
	q.inFlight.Add(-1)

	if err == nil {
		q.completed.Add(1)
		return
	}

	fields := []logging.Field{
		{Key: "task_id", Value: t.ID},
		{Key: "task_type", Value: t.Type},
		{Key: "attempt", Value: t.Attempt},
		{Key: "error", Value: err.Error()},
	}
	if t.Attempt < t.MaxAttempts {
		q.retried.Add(1)
		q.logger.Warn("task failed, scheduling redelivery", fields...)
		q.redeliver(t)
		return
	}

	q.deadLettered.Add(1)
	q.logger.Error("task exhausted attempts", fields...)
	q.mu.RLock()
	dl := q.deadLetter
	q.mu.RUnlock()
	if dl != nil {
		dl(context.WithoutCancel(ctx), t, err)
	}
}

func (q *Queue) invoke(ctx context.Context, h Handler, t *Task) (err error) {
	if h == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTask, t.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task handler panicked",
				logging.Field{Key: "task_type", Value: t.Type},
				logging.Field{Key: "stack", Value: string(debug.Stack())})
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, t)
}

func (q *Queue) redeliver(t *Task) {
	delay := q.cfg.RetryBackoff * time.Duration(t.Attempt)
	time.AfterFunc(delay, func() {
		if err := q.push(context.Background(), t); err != nil {
			q.logger.Warn("dropping redelivery",
				logging.Field{Key: "task_id", Value: t.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	})
}

func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:     q.enqueued.Load(),
		Completed:    q.completed.Load(),
		Retried:      q.retried.Load(),
		DeadLettered: q.deadLettered.Load(),
		InFlight:     q.inFlight.Load(),
		Pending:      q.pending.Load(),
	}
}
