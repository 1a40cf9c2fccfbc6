package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prempunmagar/trustcard/internal/config"
)

// run executes the command tree with args against a throwaway database.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvPrefix+"DB_PATH", filepath.Join(t.TempDir(), "cli.db"))

	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGrade_DefaultThresholds(t *testing.T) {
	out, err := run(t, "grade", "76")
	require.NoError(t, err)
	assert.Equal(t, "B\tGood - Mostly reliable\t#84cc16\n", out)

	out, err = run(t, "grade", "12.5")
	require.NoError(t, err)
	assert.Contains(t, out, "F\tFailing")
}

func TestGrade_ConfiguredThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustcard.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scoring.grade_thresholds]\nb = 77\n"), 0o600))

	out, err := run(t, "grade", "76", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "B-", out[:2])
}

func TestGrade_RejectsBadScore(t *testing.T) {
	for _, arg := range []string{"abc", "101", "-1"} {
		_, err := run(t, "grade", arg)
		assert.ErrorContains(t, err, "between 0 and 100", arg)
	}
	_, err := run(t, "grade")
	assert.Error(t, err)
}

func TestSourcesStats_SeededOnOpen(t *testing.T) {
	out, err := run(t, "sources", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, " sources\n")
	assert.Contains(t, out, "by reliability:")
	assert.Contains(t, out, "by bias:")
}

func TestSourcesSeed(t *testing.T) {
	out, err := run(t, "sources", "seed")
	require.NoError(t, err)
	assert.Regexp(t, `^seeded [\d,]+ sources\n$`, out)
}

func TestCacheCommands(t *testing.T) {
	out, err := run(t, "cache", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `backend\s+sqlite`, out)
	assert.Regexp(t, `connected\s+true`, out)
	assert.Regexp(t, `pipeline entries\s+0`, out)

	out, err = run(t, "cache", "invalidate", "https://example.com/post/1")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 entries\n", out)

	out, err = run(t, "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 entries\n", out)
}

func TestCacheInvalidate_DisabledBackend(t *testing.T) {
	t.Setenv(config.EnvPrefix+"CACHE_BACKEND", config.CacheNone)
	_, err := run(t, "cache", "invalidate", "anything")
	assert.ErrorContains(t, err, "invalidate")
}

func TestLoad_LogLevelFlagOverridesConfig(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvPrefix+"LOG_LEVEL", "warn")
	opts := &options{logLevel: "debug"}
	cfg, err := opts.load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_BadConfigPath(t *testing.T) {
	_, err := run(t, "grade", "50", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "load config")
}
