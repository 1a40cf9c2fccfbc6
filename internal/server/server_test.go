package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prempunmagar/trustcard/internal/cache"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/pipeline"
	"github.com/prempunmagar/trustcard/internal/queue"
	"github.com/prempunmagar/trustcard/internal/server"
	"github.com/prempunmagar/trustcard/internal/store"
	"github.com/prempunmagar/trustcard/internal/testutil"
)

// fakePipeline serves jobs from a map and hands out test-controlled event streams.
type fakePipeline struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	submitted []string
	filter    store.JobFilter
	submitErr error
	streams   map[string]chan pipeline.JobEvent
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		jobs:    make(map[string]*model.Job),
		streams: make(map[string]chan pipeline.JobEvent),
	}
}

func (f *fakePipeline) put(j *model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakePipeline) Submit(_ context.Context, rawURL string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, rawURL)
	j := &model.Job{ID: fmt.Sprintf("job-%d", len(f.submitted)), ContentURL: rawURL, Status: model.JobPending}
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakePipeline) Get(_ context.Context, id string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrJobNotFound, id)
	}
	cp := *j
	return &cp, nil
}

func (f *fakePipeline) List(_ context.Context, filter store.JobFilter) ([]*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	var out []*model.Job
	for _, j := range f.jobs {
		if filter.Status == "" || j.Status == filter.Status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakePipeline) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return store.ErrJobNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakePipeline) Subscribe(jobID string) (<-chan pipeline.JobEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan pipeline.JobEvent, 8)
	f.streams[jobID] = ch
	return ch, func() {}
}

func (f *fakePipeline) stream(jobID string) chan pipeline.JobEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[jobID]
}

type testEnv struct {
	srv    *server.Server
	pipe   *fakePipeline
	gate   *cache.Gate
	store  *store.Store
	logger *testutil.DummyLogger
}

func newTestServer(t *testing.T, mutate func(cfg *server.Config, gate **cache.Gate)) *testEnv {
	t.Helper()
	logger := &testutil.DummyLogger{}

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "trustcard.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mem, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	gate := cache.NewGate(mem, cache.BackendMemory, cache.Config{Namespace: "tc"}, logger)

	cfg := server.DefaultConfig()
	cfg.SubmitPerMinute = 0
	if mutate != nil {
		mutate(&cfg, &gate)
	}

	pipe := newFakePipeline()
	s, err := server.NewServer(cfg, server.Deps{Pipeline: pipe, Cache: gate, Directory: st, Logger: logger})
	require.NoError(t, err)
	return &testEnv{srv: s, pipe: pipe, gate: gate, store: st, logger: logger}
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func completedJob(id string) *model.Job {
	done := time.Now().UTC()
	return &model.Job{
		ID:             id,
		ContentURL:     "https://www.instagram.com/p/C1abc/",
		Status:         model.JobCompleted,
		CompletedAt:    &done,
		ProcessingTime: 1500 * time.Millisecond,
		Bundle:         model.NewStageBundle(),
		Score: &model.TrustScoreResult{
			FinalScore:       76.004,
			Grade:            "B",
			GradeDescription: "Good",
			GradeColor:       "#84cc16",
			Adjustments: []model.ScoreAdjustment{
				{Component: "AI Detection", Stage: model.AnalyzerAuthenticity, Impact: -23.99999},
			},
			Flags: []string{"Flagged for manual review"},
		},
	}
}

// ─── Middleware ────────────────────────────────────────────────────────

func TestServer_CORSAndSecurityHeaders(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)

	rec := doJSON(t, env.srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), "request id is echoed")
}

func TestServer_CORSAllowList(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, func(cfg *server.Config, _ **cache.Gate) {
		cfg.AllowedOrigins = []string{"https://app.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyses", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_SubmitRateLimited(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, func(cfg *server.Config, _ **cache.Gate) {
		cfg.SubmitPerMinute = 1
		cfg.SubmitBurst = 1
	})

	rec := doJSON(t, env.srv, http.MethodPost, "/api/analyses", `{"url":"https://x.com/a/status/1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, env.srv, http.MethodPost, "/api/analyses", `{"url":"https://x.com/a/status/2"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	rec = doJSON(t, env.srv, http.MethodGet, "/api/analyses", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/analyses", strings.NewReader(`{"url":"https://x.com/a/status/3"}`))
	req.Header.Set("X-Real-IP", "203.0.113.9")
	other := httptest.NewRecorder()
	env.srv.ServeHTTP(other, req)
	assert.Equal(t, http.StatusAccepted, other.Code)
}

// ─── Analyses ──────────────────────────────────────────────────────────

func TestServer_Submit(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)

	rec := doJSON(t, env.srv, http.MethodPost, "/api/analyses", `{"url":"https://www.instagram.com/p/C1abc/"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp server.SubmitResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, model.JobPending, resp.Status)
	assert.Equal(t, "/api/analyses/job-1", rec.Header().Get("Location"))
}

func TestServer_SubmitRejectsBadInput(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)

	cases := map[string]string{
		"invalid json": `{url}`,
		"missing url":  `{"url":"  "}`,
	}
	for name, body := range cases {
		rec := doJSON(t, env.srv, http.MethodPost, "/api/analyses", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	env.pipe.submitErr = fmt.Errorf("%w: no host", pipeline.ErrInvalidURL)
	rec := doJSON(t, env.srv, http.MethodPost, "/api/analyses", `{"url":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.pipe.submitErr = fmt.Errorf("queue closed")
	rec = doJSON(t, env.srv, http.MethodPost, "/api/analyses", `{"url":"https://x.com/a/status/1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "queue closed")
}

func TestServer_GetCompletedAnalysis(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	env.pipe.put(completedJob("j1"))

	rec := doJSON(t, env.srv, http.MethodGet, "/api/analyses/j1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.AnalysisResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, model.JobCompleted, resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, pipeline.MsgCompleted, resp.Message)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 76.0, *resp.Score)
	assert.Equal(t, "B", resp.Grade)
	assert.Equal(t, "#84cc16", resp.GradeColor)
	require.Len(t, resp.Adjustments, 1)
	assert.Equal(t, -24.0, resp.Adjustments[0].Impact)
	assert.Equal(t, int64(1500), resp.ProcessingTimeMS)
}

func TestServer_GetPendingAnalysisHasNoScore(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	env.pipe.put(&model.Job{ID: "j2", Status: model.JobPending})

	rec := doJSON(t, env.srv, http.MethodGet, "/api/analyses/j2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]any
	decodeJSON(t, rec, &raw)
	assert.Equal(t, "pending", raw["status"])
	assert.Equal(t, pipeline.MsgPending, raw["message"])
	assert.NotContains(t, raw, "score")

	rec = doJSON(t, env.srv, http.MethodGet, "/api/analyses/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListAnalyses(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	env.pipe.put(completedJob("j1"))
	env.pipe.put(&model.Job{ID: "j2", Status: model.JobProcessing})

	rec := doJSON(t, env.srv, http.MethodGet, "/api/analyses?status=completed&limit=5&offset=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []server.AnalysisSummary
	decodeJSON(t, rec, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "j1", rows[0].JobID)
	assert.Equal(t, "B", rows[0].Grade)
	assert.Equal(t, store.JobFilter{Status: model.JobCompleted, Limit: 5, Offset: 2}, env.pipe.filter)

	rec = doJSON(t, env.srv, http.MethodGet, "/api/analyses?status=done", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DeleteAnalysis(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	env.pipe.put(completedJob("j1"))
	env.pipe.put(&model.Job{ID: "j2", Status: model.JobProcessing})

	rec := doJSON(t, env.srv, http.MethodDelete, "/api/analyses/j2", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, env.srv, http.MethodDelete, "/api/analyses/j1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, env.srv, http.MethodGet, "/api/analyses/j1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ─── Cache and sources ─────────────────────────────────────────────────

func TestServer_CacheAdmin(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	ctx := context.Background()
	identity := "https://www.instagram.com/p/C1abc"
	require.True(t, env.gate.StoreAnalysis(ctx, identity, cache.CachedAnalysis{Score: &model.TrustScoreResult{Grade: "A"}}))
	require.True(t, env.gate.StoreRawContent(ctx, "C1abc", &model.ExtractionPayload{ContentID: "C1abc"}))
	require.True(t, env.gate.StoreRawContent(ctx, "Zz9", &model.ExtractionPayload{ContentID: "Zz9"}))

	rec := doJSON(t, env.srv, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st cache.Stats
	decodeJSON(t, rec, &st)
	assert.True(t, st.Connected)
	assert.Equal(t, cache.BackendMemory, st.Backend)
	assert.Equal(t, map[string]int{"pipeline": 1, "raw": 2}, st.KeyCounts)

	rec = doJSON(t, env.srv, http.MethodDelete, "/api/cache", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env.srv, http.MethodDelete, "/api/cache?key="+identity, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var inv server.InvalidateResponse
	decodeJSON(t, rec, &inv)
	assert.Equal(t, 1, inv.Removed)

	rec = doJSON(t, env.srv, http.MethodDelete, "/api/cache/all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &inv)
	assert.Equal(t, 2, inv.Removed)
}

func TestServer_CacheDisabled(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, func(_ *server.Config, gate **cache.Gate) {
		*gate = cache.NewGate(nil, cache.BackendNone, cache.DefaultConfig(), nil)
	})

	rec := doJSON(t, env.srv, http.MethodDelete, "/api/cache/all", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, env.srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var h server.HealthResponse
	decodeJSON(t, rec, &h)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "disabled", h.Cache)
}

func TestServer_HealthReportsQueue(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	q := queue.New(queue.DefaultConfig(), env.logger)
	t.Cleanup(q.Stop)

	s, err := server.NewServer(server.DefaultConfig(), server.Deps{
		Pipeline: env.pipe, Cache: env.gate, Directory: env.store, Queue: q, Logger: env.logger,
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var h server.HealthResponse
	decodeJSON(t, rec, &h)
	assert.Equal(t, "ok", h.Cache)
	require.NotNil(t, h.Queue)
	assert.Zero(t, h.Queue.Pending)

	// Without a queue the field is omitted.
	rec = doJSON(t, env.srv, http.MethodGet, "/healthz", "")
	assert.NotContains(t, rec.Body.String(), `"queue"`)
}

func TestServer_SourceStats(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	n, err := env.store.SeedSources(context.Background(), store.DefaultSources)
	require.NoError(t, err)

	rec := doJSON(t, env.srv, http.MethodGet, "/api/sources/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st store.SourceStats
	decodeJSON(t, rec, &st)
	assert.Equal(t, n, st.Total)
	assert.NotEmpty(t, st.ByReliability)
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestServer_AnalysisWebSocket(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	env.pipe.put(&model.Job{ID: "j1", Status: model.JobProcessing, Bundle: model.NewStageBundle()})

	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/analyses/j1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap server.AnalysisResponse
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, model.JobProcessing, snap.Status)
	assert.Equal(t, pipeline.MsgExtracting, snap.Message)

	var events chan pipeline.JobEvent
	require.Eventually(t, func() bool {
		events = env.pipe.stream("j1")
		return events != nil
	}, time.Second, 10*time.Millisecond)

	events <- pipeline.JobEvent{JobID: "j1", Type: pipeline.EventStage, Status: model.JobProcessing, Stage: model.AnalyzerExtraction, Progress: 20}
	var ev pipeline.JobEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, pipeline.EventStage, ev.Type)
	assert.Equal(t, 20, ev.Progress)

	env.pipe.put(completedJob("j1"))
	events <- pipeline.JobEvent{JobID: "j1", Type: pipeline.EventResult, Status: model.JobCompleted, Progress: 100}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.True(t, ev.Terminal())

	var final server.AnalysisResponse
	require.NoError(t, conn.ReadJSON(&final))
	assert.Equal(t, "B", final.Grade)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_AnalysisWebSocketUnknownJob(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, nil)
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/analyses/nope/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
