package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the temp dir
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "deal-engine.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 20.0, cfg.Server.RateLimitRPS, 0.001)
	assert.Equal(t, 40, cfg.Server.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "auto", cfg.Scorer.ScoreUnit)
	assert.Equal(t, scorer.DefaultSiteWeights(), cfg.Scorer.SiteWeights)
	assert.Equal(t, 1, cfg.Routing.DefaultPipelineStep)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 5000, cfg.Retry.MaxBackoffMs)
	assert.Equal(t, 5, cfg.Retry.BreakerThreshold)
	assert.Equal(t, 30, cfg.Retry.BreakerCooldownSecs)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.InDelta(t, 0.10, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 30, cfg.Monitoring.StaleRunMinutes)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/deals
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent: 4
scorer:
  score_unit: percent
  site_weights:
    access: 0.5
  deal_weights:
    financial: 0.6
screening:
  playbook_path: playbook.yaml
routing:
  default_pipeline_step: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/deals", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "percent", cfg.Scorer.ScoreUnit)
	assert.InDelta(t, 0.5, cfg.Scorer.SiteWeights.Access, 0.001)
	// Untouched dimensions keep their defaults.
	assert.InDelta(t, 0.15, cfg.Scorer.SiteWeights.Drainage, 0.001)
	assert.InDelta(t, 0.6, cfg.Scorer.DealWeights["financial"], 0.001)
	assert.Equal(t, "playbook.yaml", cfg.Screening.PlaybookPath)
	assert.Equal(t, 3, cfg.Routing.DefaultPipelineStep)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
server:
  port: 9090
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("DEALENGINE_SERVER_PORT", "7070")
	t.Setenv("DEALENGINE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DEALENGINE_STORE_DRIVER", "postgres")
	t.Setenv("DEALENGINE_STORE_DATABASE_URL", "postgres://db/deals")
	t.Setenv("DEALENGINE_BATCH_MAX_CONCURRENT", "16")
	t.Setenv("DEALENGINE_RETRY_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://db/deals", cfg.Store.DatabaseURL)
	assert.Equal(t, 16, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func validDefaults() *Config {
	return &Config{
		Store:   StoreConfig{Driver: "sqlite", SQLitePath: "deal-engine.db"},
		Server:  ServerConfig{Port: 8080, RateLimitRPS: 20, RateLimitBurst: 40},
		Batch:   BatchConfig{MaxConcurrent: 8},
		Scorer:  ScorerConfig{SiteWeights: scorer.DefaultSiteWeights(), ScoreUnit: "auto"},
		Routing: RoutingConfig{DefaultPipelineStep: 1},
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"compute", "evaluate", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("enrichment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_Store(t *testing.T) {
	tests := []struct {
		name  string
		store StoreConfig
		want  string
	}{
		{"postgres without url", StoreConfig{Driver: "postgres"}, "store.database_url is required"},
		{"sqlite without path", StoreConfig{Driver: "sqlite"}, "store.sqlite_path is required"},
		{"unknown driver", StoreConfig{Driver: "mysql"}, `store.driver "mysql"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			cfg.Store = tt.store

			err := cfg.Validate("evaluate")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			// Pure computation never touches the store.
			assert.NoError(t, cfg.Validate("compute"))
		})
	}
}

func TestValidate_Server(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Server.RateLimitRPS = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "server.rate_limit_rps must be > 0")

	assert.NoError(t, cfg.Validate("evaluate"))
}

func TestValidate_Monitoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring = MonitoringConfig{Enabled: true, FailureRateThreshold: 1.5}

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.failure_rate_threshold must be > 0 and <= 1")
	assert.Contains(t, err.Error(), "monitoring.lookback_window_hours must be >= 1")

	cfg.Monitoring.Enabled = false
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_Ranges(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.MaxConcurrent = 0
	cfg.Routing.DefaultPipelineStep = 9
	cfg.Scorer.ScoreUnit = "basis_points"

	err := cfg.Validate("compute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_concurrent must be between 1 and 64")
	assert.Contains(t, err.Error(), "routing.default_pipeline_step must be between 1 and 8")
	assert.Contains(t, err.Error(), `scorer.score_unit "basis_points"`)
}

func TestValidate_Weights(t *testing.T) {
	cfg := validDefaults()
	cfg.Scorer.SiteWeights.Access = -1
	cfg.Scorer.DealWeights = map[string]float64{"risk": -0.2}

	err := cfg.Validate("compute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access weight must be a finite value >= 0")
	assert.Contains(t, err.Error(), "risk weight must be a finite value >= 0")
}
