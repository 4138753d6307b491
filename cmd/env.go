package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/config"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/evaluation"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/monitoring"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/resilience"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/scorer"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/screening"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/store"
)

// buildOptions turns the scorer, screening and routing config into the
// tables an evaluation runs against.
func buildOptions(c *config.Config) (evaluation.Options, error) {
	opts := evaluation.DefaultOptions()
	opts.SiteWeights = c.Scorer.SiteWeights
	opts.DealWeights = c.Scorer.DealWeights
	opts.ScoreUnit = scorer.ParseScoreUnit(c.Scorer.ScoreUnit)
	opts.DefaultPipelineStep = c.Routing.DefaultPipelineStep

	pb, err := screening.LoadPlaybook(c.Screening.PlaybookPath)
	if err != nil {
		return evaluation.Options{}, eris.Wrap(err, "load playbook")
	}
	opts.Playbook = pb
	return opts, nil
}

// computeOptions validates the config for pure scoring commands.
func computeOptions() (evaluation.Options, error) {
	if err := cfg.Validate("compute"); err != nil {
		return evaluation.Options{}, err
	}
	return buildOptions(cfg)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newGuard(c config.RetryConfig) resilience.Guard {
	retry := resilience.FromSettings(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs)
	return resilience.Guard{
		Retry:   retry,
		Breaker: resilience.NewBreaker(c.BreakerThreshold, time.Duration(c.BreakerCooldownSecs)*time.Second),
	}
}

// serviceEnv bundles an evaluation service with the store it owns.
type serviceEnv struct {
	Store   store.Store
	Service *evaluation.Service
	Breaker *resilience.Breaker
}

// Collector returns a run metrics collector over the env's store.
func (e *serviceEnv) Collector() *monitoring.Collector {
	stale := time.Duration(cfg.Monitoring.StaleRunMinutes) * time.Minute
	return monitoring.NewCollector(e.Store, e.Breaker, stale)
}

// Close releases the store.
func (e *serviceEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initService validates the config for mode, opens and migrates the store
// and builds the evaluation service.
func initService(ctx context.Context, mode string) (*serviceEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	guard := newGuard(cfg.Retry)
	return &serviceEnv{
		Store:   st,
		Service: evaluation.NewService(st, guard, opts),
		Breaker: guard.Breaker,
	}, nil
}

// readInput returns the --input file contents, or stdin when the flag is
// empty or "-".
func readInput(cmd *cobra.Command) ([]byte, error) {
	path, _ := cmd.Flags().GetString("input")
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, eris.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path)
	return data, eris.Wrapf(err, "read input %s", path)
}

// decodeInput reads the command input into dst.
func decodeInput(cmd *cobra.Command, dst any) error {
	data, err := readInput(cmd)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return eris.Wrap(err, "decode input")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addInputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "JSON input file (default stdin)")
}
