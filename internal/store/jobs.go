package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
)

const defaultListLimit = 50

var jobColumns = []string{
	"id", "content_url", "canonical_url", "content_id", "status", "failure_kind", "error",
	"cached", "content_json", "score_json", "processing_ms",
	"created_at", "updated_at", "started_at", "completed_at",
}

// JobFilter narrows ListJobs. Zero values mean "any" and the default page size.
type JobFilter struct {
	Status model.JobStatus
	Limit  int
	Offset int
}

// CreateJob inserts a new job. CreatedAt/UpdatedAt are filled in when zero.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	if job == nil {
		return ErrNilJob
	}
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobPending
	}

	query, args, err := sq.Insert("jobs").
		Columns("id", "content_url", "canonical_url", "content_id", "status", "cached", "created_at", "updated_at").
		Values(job.ID, job.ContentURL, job.CanonicalURL, job.ContentID, string(job.Status), job.Cached,
			job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a job with its recorded stages.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	query, args, err := sq.Select(jobColumns...).From("jobs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	bundle, err := s.ListStages(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Bundle = bundle
	return job, nil
}

// ListJobs returns jobs newest first, without stage records.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]*model.Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	b := sq.Select(jobColumns...).From("jobs").
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit))
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// DeleteJob removes a job and its stage records.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := sq.Delete("job_stages").Where(sq.Eq{"job_id": id}).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete stages of %s: %w", id, err)
	}
	res, err := sq.Delete("jobs").Where(sq.Eq{"id": id}).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return tx.Commit()
}

// MarkProcessing moves a pending job to processing. It reports true when the
// job is processing afterwards, so a redelivered start task sees true again and
// a terminal job reports false.
func (s *Store) MarkProcessing(ctx context.Context, id string) (bool, error) {
	now := s.nowNanos()
	res, err := sq.Update("jobs").
		Set("status", string(model.JobProcessing)).
		Set("started_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": string(model.JobPending)}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("mark processing %s: %w", id, err)
	}
	if n, err := rowsAffected(res); err != nil {
		return false, err
	} else if n == 1 {
		return true, nil
	}

	status, err := s.status(ctx, id)
	if err != nil {
		return false, err
	}
	return status == model.JobProcessing, nil
}

// SaveContent stores the extraction snapshot on a non-terminal job.
func (s *Store) SaveContent(ctx context.Context, id string, content *model.ExtractionPayload) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	b := sq.Update("jobs").
		Set("content_json", string(raw)).
		Set("updated_at", s.nowNanos()).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": []string{string(model.JobCompleted), string(model.JobFailed)}})
	if content != nil && content.ContentID != "" {
		b = b.Set("content_id", content.ContentID)
	}
	if _, err := b.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("save content %s: %w", id, err)
	}
	return nil
}

// RecordStage stores r for the job unless a result for that analyzer already
// exists. It reports whether this call wrote the row.
func (s *Store) RecordStage(ctx context.Context, jobID string, r model.StageResult) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.insertStage(ctx, tx, jobID, r)
	if err != nil {
		return false, err
	}
	if inserted {
		_, err := sq.Update("jobs").Set("updated_at", s.nowNanos()).
			Where(sq.Eq{"id": jobID}).RunWith(tx).ExecContext(ctx)
		if err != nil {
			return false, fmt.Errorf("touch job %s: %w", jobID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit stage: %w", err)
	}
	return inserted, nil
}

func (s *Store) insertStage(ctx context.Context, tx *sql.Tx, jobID string, r model.StageResult) (bool, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encode stage %s: %w", r.Analyzer, err)
	}
	res, err := sq.Insert("job_stages").
		Columns("job_id", "analyzer", "status", "result_json", "recorded_at").
		Values(jobID, string(r.Analyzer), string(r.Status), string(raw), s.nowNanos()).
		Suffix("ON CONFLICT(job_id, analyzer) DO NOTHING").
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("insert stage %s/%s: %w", jobID, r.Analyzer, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListStages rebuilds the job's StageBundle from stored records.
func (s *Store) ListStages(ctx context.Context, jobID string) (*model.StageBundle, error) {
	rows, err := sq.Select("result_json").From("job_stages").
		Where(sq.Eq{"job_id": jobID}).
		OrderBy("recorded_at").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stages %s: %w", jobID, err)
	}
	defer rows.Close()

	bundle := model.NewStageBundle()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		var r model.StageResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode stage: %w", err)
		}
		if err := bundle.Add(r); err != nil {
			s.logger.Warn("ignoring stored stage",
				logging.Field{Key: "job_id", Value: jobID},
				logging.Field{Key: "analyzer", Value: string(r.Analyzer)},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	return bundle, rows.Err()
}

// CompleteJob moves a processing job to completed and stores its result.
// Stages of res.Bundle that were not recorded yet are recorded in the same
// transaction. It reports false when the job was not processing.
func (s *Store) CompleteJob(ctx context.Context, id string, res model.JobResult) (bool, error) {
	var contentJSON, scoreJSON sql.NullString
	if res.Content != nil {
		raw, err := json.Marshal(res.Content)
		if err != nil {
			return false, fmt.Errorf("encode content: %w", err)
		}
		contentJSON = sql.NullString{String: string(raw), Valid: true}
	}
	if res.Score != nil {
		raw, err := json.Marshal(res.Score)
		if err != nil {
			return false, fmt.Errorf("encode score: %w", err)
		}
		scoreJSON = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.nowNanos()
	b := sq.Update("jobs").
		Set("status", string(model.JobCompleted)).
		Set("cached", res.Cached).
		Set("score_json", scoreJSON).
		Set("processing_ms", res.ProcessingTime.Milliseconds()).
		Set("updated_at", now).
		Set("completed_at", now).
		Where(sq.Eq{"id": id, "status": string(model.JobProcessing)})
	if contentJSON.Valid {
		b = b.Set("content_json", contentJSON)
		if res.Content.ContentID != "" {
			b = b.Set("content_id", res.Content.ContentID)
		}
	}
	result, err := b.RunWith(tx).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if res.Bundle != nil {
		for _, a := range model.RequiredStages {
			r, ok := res.Bundle.Get(a)
			if !ok {
				continue
			}
			if _, err := s.insertStage(ctx, tx, id, r); err != nil {
				return false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit complete: %w", err)
	}
	return true, nil
}

// FailJob records a failure on a non-terminal job. It reports false when the
// job was already terminal (the first terminal write wins).
func (s *Store) FailJob(ctx context.Context, id string, kind model.FailureKind, msg string) (bool, error) {
	now := s.nowNanos()
	res, err := sq.Update("jobs").
		Set("status", string(model.JobFailed)).
		Set("failure_kind", string(kind)).
		Set("error", msg).
		Set("updated_at", now).
		Set("completed_at", now).
		Where(sq.Eq{"id": id, "status": []string{string(model.JobPending), string(model.JobProcessing)}}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// StaleJobs lists ids of jobs still processing whose last update is before the cutoff.
func (s *Store) StaleJobs(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := sq.Select("id").From("jobs").
		Where(sq.Eq{"status": string(model.JobProcessing)}).
		Where(sq.Lt{"updated_at": before.UTC().UnixNano()}).
		OrderBy("updated_at").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) status(ctx context.Context, id string) (model.JobStatus, error) {
	var status string
	err := sq.Select("status").From("jobs").Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRowContext(ctx).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("job status %s: %w", id, err)
	}
	return model.JobStatus(status), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job                    model.Job
		status, kind           string
		cached                 bool
		contentJSON, scoreJSON sql.NullString
		processingMS           int64
		created, updated       int64
		started, completed     sql.NullInt64
	)
	if err := row.Scan(&job.ID, &job.ContentURL, &job.CanonicalURL, &job.ContentID, &status, &kind, &job.Error,
		&cached, &contentJSON, &scoreJSON, &processingMS,
		&created, &updated, &started, &completed); err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	job.FailureKind = model.FailureKind(kind)
	job.Cached = cached
	job.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	job.CreatedAt = fromNanos(created)
	job.UpdatedAt = fromNanos(updated)
	job.StartedAt = fromNullNanos(started)
	job.CompletedAt = fromNullNanos(completed)

	if contentJSON.Valid && contentJSON.String != "" && contentJSON.String != "null" {
		var c model.ExtractionPayload
		if err := json.Unmarshal([]byte(contentJSON.String), &c); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		job.Content = &c
	}
	if scoreJSON.Valid && scoreJSON.String != "" {
		var sc model.TrustScoreResult
		if err := json.Unmarshal([]byte(scoreJSON.String), &sc); err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
		job.Score = &sc
	}
	return &job, nil
}
