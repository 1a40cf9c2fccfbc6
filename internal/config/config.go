// Package config loads TrustCard's runtime configuration from defaults, an
// optional TOML or YAML file, a .env file and TRUSTCARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/prempunmagar/trustcard/internal/scoring"
	"github.com/prempunmagar/trustcard/internal/webclient"
)

const (
	EnvPrefix = "TRUSTCARD_"
	// EnvConfigPath names the config file when no path is passed to Load.
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Duration is a time.Duration written as a Go duration string ("120s", "168h")
// in both TOML and YAML files.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Server    ServerConfig         `yaml:"server" toml:"server"`
	Storage   StorageConfig        `yaml:"storage" toml:"storage"`
	Cache     CacheConfig          `yaml:"cache" toml:"cache"`
	Pipeline  PipelineConfig       `yaml:"pipeline" toml:"pipeline"`
	Analyzers AnalyzersConfig      `yaml:"analyzers" toml:"analyzers"`
	Scoring   scoring.WeightConfig `yaml:"scoring" toml:"scoring"`
	Logging   LoggingConfig        `yaml:"logging" toml:"logging"`

	// Path is the file the config was read from, if any.
	Path string `yaml:"-" toml:"-"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins" toml:"allowed_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	// Per-IP limit on job submissions.
	SubmitPerMinute float64 `yaml:"submit_per_minute" toml:"submit_per_minute"`
	SubmitBurst     int     `yaml:"submit_burst" toml:"submit_burst"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path" toml:"db_path"`
}

type CacheConfig struct {
	Backend     string   `yaml:"backend" toml:"backend"`
	Namespace   string   `yaml:"namespace" toml:"namespace"`
	PipelineTTL Duration `yaml:"pipeline_ttl" toml:"pipeline_ttl"`
	RawTTL      Duration `yaml:"raw_ttl" toml:"raw_ttl"`
	MemorySize  int      `yaml:"memory_size" toml:"memory_size"`
	OpTimeout   Duration `yaml:"op_timeout" toml:"op_timeout"`
}

type PipelineConfig struct {
	Workers         int      `yaml:"workers" toml:"workers"`
	GroupTimeout    Duration `yaml:"group_timeout" toml:"group_timeout"`
	AnalyzerTimeout Duration `yaml:"analyzer_timeout" toml:"analyzer_timeout"`
	StageAttempts   int      `yaml:"stage_attempts" toml:"stage_attempts"`
	TaskAttempts    int      `yaml:"task_attempts" toml:"task_attempts"`
	RetryBackoff    Duration `yaml:"retry_backoff" toml:"retry_backoff"`
	StaleAfter      Duration `yaml:"stale_after" toml:"stale_after"`
	ReapInterval    Duration `yaml:"reap_interval" toml:"reap_interval"`
}

type AnalyzersConfig struct {
	// InferenceURL is the base URL of the media inference service. Empty
	// disables the media analyzers; their stages are recorded as skipped.
	InferenceURL    string  `yaml:"inference_url" toml:"inference_url"`
	InferenceAPIKey string  `yaml:"inference_api_key" toml:"inference_api_key"`
	InferenceRPS    float64 `yaml:"inference_rps" toml:"inference_rps"`
	InferenceBurst  int     `yaml:"inference_burst" toml:"inference_burst"`

	WebClient    string   `yaml:"webclient" toml:"webclient"`
	FetchTimeout Duration `yaml:"fetch_timeout" toml:"fetch_timeout"`
	UserAgent    string   `yaml:"user_agent" toml:"user_agent"`

	ReputationMemo int `yaml:"reputation_memo" toml:"reputation_memo"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: Duration(10 * time.Second),
			SubmitPerMinute: 10,
			SubmitBurst:     5,
		},
		Storage: StorageConfig{
			DBPath: "~/.trustcard/trustcard.db",
		},
		Cache: CacheConfig{
			Backend:     CacheSQLite,
			Namespace:   "trustcard",
			PipelineTTL: Duration(7 * 24 * time.Hour),
			RawTTL:      Duration(24 * time.Hour),
			MemorySize:  4096,
			OpTimeout:   Duration(2 * time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:         4,
			GroupTimeout:    Duration(120 * time.Second),
			AnalyzerTimeout: Duration(60 * time.Second),
			StageAttempts:   1,
			TaskAttempts:    3,
			RetryBackoff:    Duration(500 * time.Millisecond),
			StaleAfter:      Duration(10 * time.Minute),
			ReapInterval:    Duration(time.Minute),
		},
		Analyzers: AnalyzersConfig{
			InferenceRPS:   2,
			InferenceBurst: 4,
			WebClient:      string(webclient.ClientNetHTTP),
			FetchTimeout:   Duration(webclient.DefaultTimeout),
			ReputationMemo: 1024,
		},
		Scoring: scoring.DefaultWeights(),
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the effective configuration. path may be empty, in which case
// TRUSTCARD_CONFIG is consulted; with neither set only defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Storage.DBPath = expandHome(cfg.Storage.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile overlays the file at path onto cfg. Unknown keys are rejected so
// a misspelled weight never silently falls back to its default.
func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		// An empty file decodes to io.EOF; keep the defaults.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "ADDR")
	setCSV(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")
	setString(&cfg.Storage.DBPath, "DB_PATH")
	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.Namespace, "CACHE_NAMESPACE")
	setString(&cfg.Analyzers.InferenceURL, "INFERENCE_URL")
	setString(&cfg.Analyzers.InferenceAPIKey, "INFERENCE_API_KEY")
	setString(&cfg.Analyzers.WebClient, "WEBCLIENT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	var errs []error
	errs = append(errs,
		setInt(&cfg.Pipeline.Workers, "WORKERS"),
		setInt(&cfg.Pipeline.StageAttempts, "STAGE_ATTEMPTS"),
		setInt(&cfg.Pipeline.TaskAttempts, "TASK_ATTEMPTS"),
		setDuration(&cfg.Pipeline.GroupTimeout, "GROUP_TIMEOUT"),
		setDuration(&cfg.Pipeline.AnalyzerTimeout, "ANALYZER_TIMEOUT"),
		setDuration(&cfg.Pipeline.StaleAfter, "STALE_AFTER"),
		setDuration(&cfg.Cache.PipelineTTL, "CACHE_PIPELINE_TTL"),
		setDuration(&cfg.Cache.RawTTL, "CACHE_RAW_TTL"),
	)
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
		*dst = v
	}
}

func setCSV(dst *[]string, key string) {
	raw := os.Getenv(EnvPrefix + key)
	if raw == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func setInt(dst *int, key string) error {
	raw := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = v
	return nil
}

func setDuration(dst *Duration, key string) error {
	raw := os.Getenv(EnvPrefix + key)
	if raw == "" {
		return nil
	}
	if err := dst.UnmarshalText([]byte(raw)); err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server.addr is required")
	}
	if c.Server.SubmitPerMinute < 0 || c.Server.SubmitBurst < 0 {
		add("server submit limits must not be negative")
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		add("storage.db_path is required")
	}

	switch c.Cache.Backend {
	case CacheSQLite, CacheNone:
	case CacheMemory:
		if c.Cache.MemorySize <= 0 {
			add("cache.memory_size must be positive for the memory backend")
		}
	default:
		add("cache.backend %q is not one of sqlite, memory, none", c.Cache.Backend)
	}
	if c.Cache.Namespace == "" || strings.ContainsAny(c.Cache.Namespace, ":*") {
		add("cache.namespace %q must be non-empty and contain no ':' or '*'", c.Cache.Namespace)
	}
	if c.Cache.PipelineTTL <= 0 || c.Cache.RawTTL <= 0 {
		add("cache TTLs must be positive")
	}

	p := c.Pipeline
	if p.Workers <= 0 {
		add("pipeline.workers must be positive, got %d", p.Workers)
	}
	if p.GroupTimeout <= 0 || p.AnalyzerTimeout <= 0 {
		add("pipeline timeouts must be positive")
	}
	if p.StageAttempts < 1 || p.TaskAttempts < 1 {
		add("pipeline attempts must be at least 1")
	}
	if p.AnalyzerTimeout > 0 && p.StageAttempts >= 1 &&
		p.AnalyzerTimeout*Duration(p.StageAttempts) >= p.GroupTimeout {
		add("pipeline: %d stage attempts of analyzer_timeout (%s) must fit inside group_timeout (%s)",
			p.StageAttempts, p.AnalyzerTimeout, p.GroupTimeout)
	}
	if p.StaleAfter > 0 && p.StaleAfter <= p.GroupTimeout {
		add("pipeline.stale_after (%s) must exceed group_timeout (%s)", p.StaleAfter, p.GroupTimeout)
	}

	switch webclient.Client(c.Analyzers.WebClient) {
	case webclient.ClientNetHTTP, webclient.ClientChromedp:
	default:
		add("analyzers.webclient %q is not one of nethttp, chromedp", c.Analyzers.WebClient)
	}
	if c.Analyzers.InferenceRPS < 0 || c.Analyzers.InferenceBurst < 0 {
		add("analyzers inference limits must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}
	return errors.Join(errs...)
}
