package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/store"
	"github.com/prempunmagar/trustcard/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "sub", "trustcard.db"), &testutil.DummyLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newJob(t *testing.T, s *store.Store, id string) *model.Job {
	t.Helper()
	job := &model.Job{ID: id, ContentURL: "https://instagram.com/p/" + id, CanonicalURL: "https://instagram.com/p/" + id}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	job := newJob(t, s, "j1")
	assert.Equal(t, model.JobPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "https://instagram.com/p/j1", got.CanonicalURL)
	assert.Equal(t, model.JobPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, 0, got.Bundle.Len())

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestStore_Lifecycle(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	newJob(t, s, "j1")

	ok, err := s.MarkProcessing(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkProcessing(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok, "redelivery of an already processing job")

	content := &model.ExtractionPayload{ContentID: "C1", Caption: "hi"}
	require.NoError(t, s.SaveContent(ctx, "j1", content))

	wrote, err := s.RecordStage(ctx, "j1", model.Completed(content))
	require.NoError(t, err)
	assert.True(t, wrote)
	wrote, err = s.RecordStage(ctx, "j1", model.Failed(model.AnalyzerExtraction, errors.New("late")))
	require.NoError(t, err)
	assert.False(t, wrote, "first write wins")

	bundle := model.NewStageBundle()
	require.NoError(t, bundle.Add(model.Completed(content)))
	require.NoError(t, bundle.Add(model.Skipped(model.AnalyzerAuthenticity, "No images to analyze")))
	score := &model.TrustScoreResult{FinalScore: 76, Grade: "B"}

	done, err := s.CompleteJob(ctx, "j1", model.JobResult{
		Content: content, Bundle: bundle, Score: score, ProcessingTime: 1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, done)

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, "C1", got.ContentID)
	assert.Equal(t, 76.0, got.Score.FinalScore)
	assert.Equal(t, 1500*time.Millisecond, got.ProcessingTime)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2, got.Bundle.Len())
	r, _ := got.Bundle.Get(model.AnalyzerAuthenticity)
	assert.Equal(t, model.StageSkipped, r.Status)

	// Terminal states are sticky.
	failed, err := s.FailJob(ctx, "j1", model.FailureTimeout, "too late")
	require.NoError(t, err)
	assert.False(t, failed)
	done, err = s.CompleteJob(ctx, "j1", model.JobResult{Score: score})
	require.NoError(t, err)
	assert.False(t, done)
	ok, err = s.MarkProcessing(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_FailJob(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	newJob(t, s, "j1")

	failed, err := s.FailJob(ctx, "j1", model.FailureExtraction, "page returned 404")
	require.NoError(t, err)
	assert.True(t, failed)

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, model.FailureExtraction, got.FailureKind)
	assert.Equal(t, "page returned 404", got.Error)

	done, err := s.CompleteJob(ctx, "j1", model.JobResult{})
	require.NoError(t, err)
	assert.False(t, done, "completion must not overwrite a failure")
}

func TestStore_ListAndDelete(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		newJob(t, s, id)
	}
	_, err := s.MarkProcessing(ctx, "b")
	require.NoError(t, err)

	all, err := s.ListJobs(ctx, store.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	processing, err := s.ListJobs(ctx, store.JobFilter{Status: model.JobProcessing})
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, "b", processing[0].ID)

	page, err := s.ListJobs(ctx, store.JobFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	_, err = s.RecordStage(ctx, "b", model.Skipped(model.AnalyzerManipulation, "No media to analyze"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteJob(ctx, "b"))
	_, err = s.GetJob(ctx, "b")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.ErrorIs(t, s.DeleteJob(ctx, "b"), store.ErrJobNotFound)
}

func TestStore_StaleJobs(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	newJob(t, s, "old")
	newJob(t, s, "pending")
	_, err := s.MarkProcessing(ctx, "old")
	require.NoError(t, err)

	ids, err := s.StaleJobs(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	ids, err = s.StaleJobs(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_RecordStageRejectsInvalid(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	newJob(t, s, "j1")
	_, err := s.RecordStage(context.Background(), "j1", model.StageResult{Analyzer: model.AnalyzerReputation, Status: model.StageCompleted})
	assert.ErrorIs(t, err, model.ErrInvalidStageResult)
}

func TestStore_Sources(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	n, err := s.SeedSources(ctx, store.DefaultSources)
	require.NoError(t, err)
	assert.Equal(t, len(store.DefaultSources), n)

	src, ok, err := s.LookupSource(ctx, "WWW.Reuters.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "very-high", src.Reliability)
	assert.Equal(t, "center", src.Bias)

	_, ok, err = s.LookupSource(ctx, "unknown.example")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertSource(ctx, store.Source{Domain: "reuters.com", Bias: "center", Reliability: "high"}))
	src, _, _ = s.LookupSource(ctx, "reuters.com")
	assert.Equal(t, "high", src.Reliability)

	// Seeding twice is an upsert, not a duplicate.
	_, err = s.SeedSources(ctx, store.DefaultSources)
	require.NoError(t, err)
	st, err := s.SourceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(store.DefaultSources), st.Total)
	assert.Equal(t, 4, st.ByReliability["satire"])
	assert.Equal(t, 7, st.ByBias["varies"])
}
