package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prempunmagar/trustcard/internal/logging"
	"github.com/prempunmagar/trustcard/internal/model"
)

type Config struct {
	Namespace     string
	PipelineTTL   time.Duration
	RawContentTTL time.Duration
	// OpTimeout bounds every backend call so a stuck cache cannot stall a job.
	OpTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Namespace:     "trustcard",
		PipelineTTL:   7 * 24 * time.Hour,
		RawContentTTL: 24 * time.Hour,
		OpTimeout:     2 * time.Second,
	}
}

// CachedAnalysis is the value stored under the whole-pipeline key.
type CachedAnalysis struct {
	Content  *model.ExtractionPayload `json:"content"`
	Bundle   *model.StageBundle       `json:"bundle"`
	Score    *model.TrustScoreResult  `json:"score"`
	CachedAt time.Time                `json:"cached_at"`
}

// Stats summarizes cache health for the admin surface.
type Stats struct {
	Connected bool           `json:"connected"`
	Backend   string         `json:"backend"`
	KeyCounts map[string]int `json:"key_counts"`
	Hits      int64          `json:"hits"`
	Misses    int64          `json:"misses"`
	// HitRate is a percentage of lookups served from cache.
	HitRate float64 `json:"hit_rate"`
	Error   string  `json:"error,omitempty"`
}

// Gate is the advisory idempotency layer in front of the pipeline. Backend
// errors are logged and turned into misses or no-ops; they never reach the job.
type Gate struct {
	store   Store
	backend string
	cfg     Config
	logger  logging.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewGate wraps store. A nil store disables caching: every lookup misses.
func NewGate(store Store, backend string, cfg Config, logger logging.Logger) *Gate {
	def := DefaultConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.PipelineTTL <= 0 {
		cfg.PipelineTTL = def.PipelineTTL
	}
	if cfg.RawContentTTL <= 0 {
		cfg.RawContentTTL = def.RawContentTTL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if store == nil {
		backend = BackendNone
	}
	return &Gate{
		store:   store,
		backend: backend,
		cfg:     cfg,
		logger:  logger.With(logging.Field{Key: "component", Value: "cache"}),
	}
}

func (g *Gate) Enabled() bool { return g != nil && g.store != nil }

func (g *Gate) PipelineKey(identity string) string {
	return g.cfg.Namespace + ":pipeline:" + identity
}

func (g *Gate) RawKey(contentID string) string {
	return g.cfg.Namespace + ":raw:" + contentID
}

func (g *Gate) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.OpTimeout)
}

// Lookup returns the cached analysis for a content identity.
func (g *Gate) Lookup(ctx context.Context, identity string) (*CachedAnalysis, bool) {
	var out CachedAnalysis
	if !g.get(ctx, g.PipelineKey(identity), &out) {
		return nil, false
	}
	if out.Bundle == nil || out.Score == nil {
		g.logger.Warn("discarding incomplete cached analysis", logging.Field{Key: "identity", Value: identity})
		g.recordMiss()
		return nil, false
	}
	g.hits.Add(1)
	return &out, true
}

// LookupRawContent returns previously extracted content for a content id.
func (g *Gate) LookupRawContent(ctx context.Context, contentID string) (*model.ExtractionPayload, bool) {
	var out model.ExtractionPayload
	if !g.get(ctx, g.RawKey(contentID), &out) {
		return nil, false
	}
	g.hits.Add(1)
	return &out, true
}

// get decodes the entry at key into dst. Failures count as misses; callers
// count the hit once they have accepted the entry.
func (g *Gate) get(ctx context.Context, key string, dst any) bool {
	if !g.Enabled() {
		g.recordMiss()
		return false
	}
	opCtx, cancel := g.opContext(ctx)
	defer cancel()

	raw, ok, err := g.store.Get(opCtx, key)
	if err != nil {
		g.logger.Warn("cache lookup failed, treating as miss",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
		g.recordMiss()
		return false
	}
	if !ok {
		g.logger.Debug("cache miss", logging.Field{Key: "key", Value: key})
		g.recordMiss()
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		g.logger.Warn("cache entry undecodable, treating as miss",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
		g.recordMiss()
		return false
	}
	g.logger.Debug("cache hit", logging.Field{Key: "key", Value: key})
	return true
}

func (g *Gate) recordMiss() {
	if g != nil {
		g.misses.Add(1)
	}
}

// StoreAnalysis writes the whole-pipeline entry. It reports whether the write succeeded.
func (g *Gate) StoreAnalysis(ctx context.Context, identity string, a CachedAnalysis) bool {
	if a.CachedAt.IsZero() {
		a.CachedAt = time.Now().UTC()
	}
	return g.set(ctx, g.PipelineKey(identity), a, g.cfg.PipelineTTL)
}

// StoreRawContent writes the raw-content entry.
func (g *Gate) StoreRawContent(ctx context.Context, contentID string, p *model.ExtractionPayload) bool {
	if p == nil {
		return false
	}
	return g.set(ctx, g.RawKey(contentID), p, g.cfg.RawContentTTL)
}

func (g *Gate) set(ctx context.Context, key string, v any, ttl time.Duration) bool {
	if !g.Enabled() {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		g.logger.Warn("cache value not serializable", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err.Error()})
		return false
	}
	opCtx, cancel := g.opContext(ctx)
	defer cancel()
	if err := g.store.Set(opCtx, key, raw, ttl); err != nil {
		g.logger.Warn("cache write failed", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err.Error()})
		return false
	}
	g.logger.Debug("cache write", logging.Field{Key: "key", Value: key}, logging.Field{Key: "ttl", Value: ttl.String()})
	return true
}

// Invalidate removes entries. A key ending in "*" is a prefix; a key outside
// the namespace is treated as a content identity and removes both its
// pipeline and raw entries.
func (g *Gate) Invalidate(ctx context.Context, key string) (int, error) {
	if !g.Enabled() {
		return 0, ErrNoStore
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, fmt.Errorf("cache: empty invalidation key")
	}
	opCtx, cancel := g.opContext(ctx)
	defer cancel()

	ns := g.cfg.Namespace + ":"
	var (
		n   int
		err error
	)
	switch {
	case strings.HasSuffix(key, "*"):
		prefix := strings.TrimSuffix(key, "*")
		if !strings.HasPrefix(prefix, ns) {
			prefix = ns + prefix
		}
		n, err = g.store.DeletePrefix(opCtx, prefix)
	case strings.HasPrefix(key, ns):
		n, err = g.store.Delete(opCtx, key)
	default:
		n, err = g.store.Delete(opCtx, g.PipelineKey(key), g.RawKey(key))
	}
	if err != nil {
		g.logger.Warn("cache invalidation failed", logging.Field{Key: "key", Value: key}, logging.Field{Key: "error", Value: err.Error()})
		return 0, err
	}
	g.logger.Info("cache invalidated", logging.Field{Key: "key", Value: key}, logging.Field{Key: "removed", Value: n})
	return n, nil
}

// Clear removes every entry in the namespace.
func (g *Gate) Clear(ctx context.Context) (int, error) {
	return g.Invalidate(ctx, g.cfg.Namespace+":*")
}

func (g *Gate) Stats(ctx context.Context) Stats {
	st := Stats{Backend: g.backend, KeyCounts: map[string]int{"pipeline": 0, "raw": 0}}
	hits, misses := g.hits.Load(), g.misses.Load()
	st.Hits, st.Misses = hits, misses
	if total := hits + misses; total > 0 {
		st.HitRate = model.Round2(float64(hits) / float64(total) * 100)
	}
	if !g.Enabled() {
		return st
	}

	opCtx, cancel := g.opContext(ctx)
	defer cancel()
	if err := g.store.Ping(opCtx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true
	for name, prefix := range map[string]string{
		"pipeline": g.cfg.Namespace + ":pipeline:",
		"raw":      g.cfg.Namespace + ":raw:",
	} {
		n, err := g.store.CountPrefix(opCtx, prefix)
		if err != nil {
			st.Error = err.Error()
			continue
		}
		st.KeyCounts[name] = n
	}
	return st
}
