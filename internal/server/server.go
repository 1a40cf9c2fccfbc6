package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/prempunmagar/trustcard/internal/cache"
	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/pipeline"
	"github.com/prempunmagar/trustcard/internal/queue"
	"github.com/prempunmagar/trustcard/internal/store"
)

// Pipeline is the job surface the API drives. *pipeline.Orchestrator implements it.
type Pipeline interface {
	Submit(ctx context.Context, rawURL string) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, f store.JobFilter) ([]*model.Job, error)
	Delete(ctx context.Context, id string) error
	Subscribe(jobID string) (<-chan pipeline.JobEvent, func())
}

// CacheAdmin is implemented by *cache.Gate.
type CacheAdmin interface {
	Invalidate(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) cache.Stats
}

// Directory is implemented by *store.Store.
type Directory interface {
	SourceStats(ctx context.Context) (store.SourceStats, error)
	Ping(ctx context.Context) error
}

// QueueStats is implemented by *queue.Queue. Optional.
type QueueStats interface {
	Stats() queue.Stats
}

type Deps struct {
	Pipeline  Pipeline
	Cache     CacheAdmin
	Directory Directory
	Queue     QueueStats
	Logger    logging.Logger
}

// Server is the HTTP + WebSocket API surface for TrustCard.
type Server struct {
	cfg      Config
	pipeline Pipeline
	cache    CacheAdmin
	dir      Directory
	queue    QueueStats
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil || deps.Cache == nil || deps.Directory == nil {
		return nil, errors.New("server: pipeline, cache and directory are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultConfig().WriteWait
	}

	s := &Server{
		cfg:      cfg,
		pipeline: deps.Pipeline,
		cache:    deps.Cache,
		dir:      deps.Directory,
		queue:    deps.Queue,
		router:   chi.NewRouter(),
		logger:   logger.With(logging.Field{Key: "component", Value: "server"}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			if s.cfg.SubmitPerMinute > 0 {
				lim := newIPLimiter(s.cfg.SubmitPerMinute, s.cfg.SubmitBurst)
				r.With(lim.middleware).Post("/", s.handleSubmit)
			} else {
				r.Post("/", s.handleSubmit)
			}
			r.Get("/", s.handleListAnalyses)
			r.Get("/{jobID}", s.handleGetAnalysis)
			r.Delete("/{jobID}", s.handleDeleteAnalysis)
			r.Get("/{jobID}/ws", s.handleAnalysisWS)
		})

		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleCacheInvalidate)
		r.Delete("/cache/all", s.handleCacheClear)

		r.Get("/sources/stats", s.handleSourceStats)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return len(s.cfg.AllowedOrigins) == 0
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- HTTP handlers ---

// Analyses

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := s.pipeline.Submit(r.Context(), body.URL)
	switch {
	case errors.Is(err, pipeline.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Warn("submitting analysis", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "could not schedule analysis")
		return
	}
	s.logger.Info("accepted analysis", logging.Field{Key: "job_id", Value: job.ID})
	w.Header().Set("Location", "/api/analyses/"+job.ID)
	writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: job.Status})
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.JobFilter{Limit: 50}
	if st := q.Get("status"); st != "" {
		f.Status = model.JobStatus(st)
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", st))
			return
		}
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = min(v, 500)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.Offset = v
	}

	jobs, err := s.pipeline.List(r.Context(), f)
	if err != nil {
		s.logger.Warn("listing analyses", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "could not list analyses")
		return
	}
	out := make([]AnalysisSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newAnalysisSummary(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(job))
}

// handleDeleteAnalysis removes a finished job. Jobs still in flight are
// refused so their tasks never run against a missing row.
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !job.Status.Terminal() {
		writeError(w, http.StatusConflict, "analysis is still "+string(job.Status))
		return
	}
	if err := s.pipeline.Delete(r.Context(), job.ID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		s.logger.Warn("deleting analysis", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "could not delete analysis")
		return
	}
	s.logger.Info("deleted analysis", logging.Field{Key: "job_id", Value: job.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*model.Job, bool) {
	id := chi.URLParam(r, "jobID")
	job, err := s.pipeline.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
			return nil, false
		}
		s.logger.Warn("getting analysis", logging.Field{Key: "job_id", Value: id}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "could not load analysis")
		return nil, false
	}
	return job, true
}

// Cache

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key query parameter")
		return
	}
	n, err := s.cache.Invalidate(r.Context(), key)
	if err != nil {
		s.writeCacheError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: n})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.Clear(r.Context())
	if err != nil {
		s.writeCacheError(w, err)
		return
	}
	s.logger.Info("cleared cache", logging.Field{Key: "removed", Value: n})
	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: n})
}

func (s *Server) writeCacheError(w http.ResponseWriter, err error) {
	if errors.Is(err, cache.ErrNoStore) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Warn("cache admin operation", logging.Field{Key: "error", Value: err.Error()})
	writeError(w, http.StatusBadGateway, "cache backend error")
}

// Sources and health

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.dir.SourceStats(r.Context())
	if err != nil {
		s.logger.Warn("source stats", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, "could not read source directory")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Cache: "disabled"}
	status := http.StatusOK
	if err := s.dir.Ping(ctx); err != nil {
		resp.Status, resp.Database = "degraded", err.Error()
		status = http.StatusServiceUnavailable
	}
	// The cache is advisory, so a broken backend does not fail the probe.
	if st := s.cache.Stats(ctx); st.Connected {
		resp.Cache = "ok"
	} else if st.Error != "" {
		resp.Cache = st.Error
	}
	if s.queue != nil {
		qs := s.queue.Stats()
		resp.Queue = &qs
	}
	writeJSON(w, status, resp)
}

// WebSockets

// handleAnalysisWS streams a job: the current snapshot first, then every
// event, then the final snapshot once the job is terminal.
func (s *Server) handleAnalysisWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	// Subscribe before the snapshot so no transition falls in between.
	events, unsubscribe := s.pipeline.Subscribe(id)
	defer unsubscribe()

	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	// The read loop only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
		return conn.WriteJSON(v) == nil
	}

	if !send(newAnalysisResponse(job)) || job.Status.Terminal() {
		s.closeWS(conn)
		return
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.closeWS(conn)
				return
			}
			if !send(ev) {
				return
			}
			if ev.Terminal() {
				if final, err := s.pipeline.Get(context.WithoutCancel(r.Context()), id); err == nil {
					send(newAnalysisResponse(final))
				}
				s.closeWS(conn)
				return
			}
		}
	}
}

func (s *Server) closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "analysis finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
}
