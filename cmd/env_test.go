package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/scoring"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
		Providers: config.ProvidersConfig{
			Search:     config.ProviderConfig{Key: "search-key"},
			Enrichment: config.ProviderConfig{Key: "enrich-key"},
		},
		Scoring: config.ScoringConfig{
			Priority: scoring.DefaultPriorityRules(),
			Segments: scoring.DefaultSegmentRules(),
		},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = testConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Close())

	_, statErr := os.Stat(filepath.Join(tmpDir, "prospector.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitEnv_ValidatesMode(t *testing.T) {
	cfg = testConfig(t)
	cfg.Providers.Search.Key = ""

	_, err := initEnv(context.Background(), "collect", agentOptions(time.UTC, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.search.key")
}

func TestInitEnv_WiresHandlers(t *testing.T) {
	cfg = testConfig(t)

	env, err := initEnv(context.Background(), "collect", agentOptions(time.UTC, false))
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Collect)
	assert.NotNil(t, env.Enrich)
	assert.NotNil(t, env.Cleanup)
	assert.NotNil(t, env.Analyzer)
	assert.Nil(t, env.Calling, "calling needs a dialer key")

	cfg.Providers.Dialer.Key = "dialer-key"
	env2, err := initEnv(context.Background(), "collect", agentOptions(time.UTC, false))
	require.NoError(t, err)
	defer env2.Close()
	assert.NotNil(t, env2.Calling)
}

func TestRunOnce_Cleanup(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	env, err := initEnv(ctx, "cleanup", agentOptions(time.UTC, false))
	require.NoError(t, err)
	defer env.Close()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, key := range []string{"https://p/a", "https://p/a", "https://p/b"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, env.Store.Insert(ctx, &model.Record{
			ExternalKey: key,
			Name:        "Person",
			Priority:    model.PriorityLow,
			CreatedAt:   at,
			UpdatedAt:   at,
		}))
	}

	sum, err := env.runOnce(ctx, model.Task{Type: model.TaskCleanup, Priority: model.TaskPriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, sum.State)
	require.NotNil(t, sum.Result)
	assert.Equal(t, 1, sum.Result.Deleted)
}

func TestRunOnce_NoHandler(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	env, err := initEnv(ctx, "cleanup", agentOptions(time.UTC, false))
	require.NoError(t, err)
	defer env.Close()

	sum, err := env.runOnce(ctx, model.Task{Type: model.TaskOutreach})
	require.Error(t, err)
	assert.Equal(t, model.TaskFailed, sum.State)
}
