package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Screening  ScreeningConfig  `yaml:"screening" mapstructure:"screening"`
	Routing    RoutingConfig    `yaml:"routing" mapstructure:"routing"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig selects and configures the run store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	RateLimitRPS        float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst      int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BatchConfig bounds batch evaluation.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ScorerConfig overrides the triage and deal score weights.
type ScorerConfig struct {
	SiteWeights scorer.SiteWeights `yaml:"site_weights" mapstructure:"site_weights"`
	DealWeights map[string]float64 `yaml:"deal_weights" mapstructure:"deal_weights"`
	ScoreUnit   string             `yaml:"score_unit" mapstructure:"score_unit"`
}

// ScreeningConfig points at an optional YAML playbook.
type ScreeningConfig struct {
	PlaybookPath string `yaml:"playbook_path" mapstructure:"playbook_path"`
}

// RoutingConfig configures task due dates.
type RoutingConfig struct {
	DefaultPipelineStep int `yaml:"default_pipeline_step" mapstructure:"default_pipeline_step"`
}

// RetryConfig configures retries and the breaker around store calls.
type RetryConfig struct {
	MaxAttempts         int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// MonitoringConfig configures run health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleRunMinutes      int     `yaml:"stale_run_minutes" mapstructure:"stale_run_minutes"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "deal-engine.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("batch.max_concurrent", 8)
	v.SetDefault("scorer.score_unit", string(scorer.UnitAuto))
	sw := scorer.DefaultSiteWeights()
	for _, d := range scorer.Dimensions() {
		v.SetDefault("scorer.site_weights."+string(d), sw.Weight(d))
	}
	v.SetDefault("screening.playbook_path", "")
	v.SetDefault("routing.default_pipeline_step", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.breaker_threshold", 5)
	v.SetDefault("retry.breaker_cooldown_secs", 30)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.stale_run_minutes", 30)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "compute"
// (pure scoring), "evaluate" (needs a store) and "serve" (store plus HTTP).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "compute":
	case "evaluate":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimitRPS <= 0 {
			errs = append(errs, "server.rate_limit_rps must be > 0")
		}
		if c.Server.RateLimitBurst < 1 {
			errs = append(errs, "server.rate_limit_burst must be >= 1")
		}
		if c.Monitoring.Enabled {
			if c.Monitoring.FailureRateThreshold <= 0 || c.Monitoring.FailureRateThreshold > 1 {
				errs = append(errs, "monitoring.failure_rate_threshold must be > 0 and <= 1")
			}
			if c.Monitoring.LookbackWindowHours < 1 {
				errs = append(errs, "monitoring.lookback_window_hours must be >= 1")
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 64 {
		errs = append(errs, fmt.Sprintf("batch.max_concurrent must be between 1 and 64, got %d", c.Batch.MaxConcurrent))
	}
	if c.Routing.DefaultPipelineStep < 1 || c.Routing.DefaultPipelineStep > 8 {
		errs = append(errs, fmt.Sprintf("routing.default_pipeline_step must be between 1 and 8, got %d", c.Routing.DefaultPipelineStep))
	}
	if err := c.Scorer.SiteWeights.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := scorer.ValidateDealWeights(c.Scorer.DealWeights); err != nil {
		errs = append(errs, err.Error())
	}
	switch scorer.ScoreUnit(c.Scorer.ScoreUnit) {
	case "", scorer.UnitAuto, scorer.UnitFraction, scorer.UnitPercent:
	default:
		errs = append(errs, fmt.Sprintf("scorer.score_unit %q must be auto, fraction or percent", c.Scorer.ScoreUnit))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres driver"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for the sqlite driver"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver)}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
