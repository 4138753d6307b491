package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker watches evaluation runs on a timer. Each check snapshots the runs
// updated inside the lookback window, applies the alert rules and posts new
// alerts to the webhook. An alert that stays active across checks is posted
// once; it is posted again only after a check where it cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	mu     sync.Mutex
	active map[AlertType]bool
}

// NewChecker wires a collector and an alerter into a checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[AlertType]bool),
	}
}

// Run checks once immediately and then every check interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	log := zap.L().With(zap.Duration("interval", interval))
	log.Info("monitoring: run checker started", zap.Int("lookback_hours", c.cfg.LookbackWindowHours))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			log.Info("monitoring: run checker stopped")
			return
		}
		c.Check(ctx)

		select {
		case <-ctx.Done():
			log.Info("monitoring: run checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check evaluates the current run window and returns every alert that is
// active, including ones already posted by an earlier check.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		zap.L().Error("monitoring: collect run metrics", zap.Error(err))
		return nil
	}
	alerts := c.alerter.Evaluate(snap)

	c.mu.Lock()
	fresh := make([]Alert, 0, len(alerts))
	now := make(map[AlertType]bool, len(alerts))
	for _, a := range alerts {
		now[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	c.active = now
	c.mu.Unlock()

	if len(alerts) == 0 {
		zap.L().Debug("monitoring: runs healthy",
			zap.Int("runs", snap.Total),
			zap.Float64("fail_rate", snap.FailRate),
		)
		return nil
	}

	var sent int
	if len(fresh) > 0 {
		sent = c.alerter.SendAlerts(ctx, fresh)
	}
	zap.L().Info("monitoring: alerts active",
		zap.Int("active", len(alerts)),
		zap.Int("new", len(fresh)),
		zap.Int("sent", sent),
	)
	return alerts
}
