// Package monitoring summarizes recent evaluation runs and raises webhook
// alerts when failures pile up, runs stall or the store breaker opens.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/report"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/resilience"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/store"
)

const (
	collectPageSize = 500
	collectMaxRuns  = 10000
)

// TypeMetrics counts runs of one run type.
type TypeMetrics struct {
	Total    int      `json:"total"`
	Complete int      `json:"complete"`
	Failed   int      `json:"failed"`
	Running  int      `json:"running"`
	FailRate float64  `json:"fail_rate"`
	AvgScore *float64 `json:"avg_score,omitempty"`
}

// MetricsSnapshot holds a point-in-time view of evaluation health.
type MetricsSnapshot struct {
	// Runs updated within the lookback window.
	Total        int                           `json:"total"`
	Complete     int                           `json:"complete"`
	Failed       int                           `json:"failed"`
	Running      int                           `json:"running"`
	StaleRunning int                           `json:"stale_running"`
	FailRate     float64                       `json:"fail_rate"`
	ByType       map[model.RunType]TypeMetrics `json:"by_type"`

	BreakerState string `json:"breaker_state,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	Truncated     bool      `json:"truncated,omitempty"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs       RunLister
	breaker    *resilience.Breaker
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a metrics collector. breaker may be nil. Running runs
// not updated for staleAfter count as stale; zero disables the check.
func NewCollector(runs RunLister, breaker *resilience.Breaker, staleAfter time.Duration) *Collector {
	return &Collector{runs: runs, breaker: breaker, staleAfter: staleAfter, now: time.Now}
}

// Collect pages through runs newest first until it passes the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		ByType:        make(map[model.RunType]TypeMetrics),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	if c.breaker != nil {
		snap.BreakerState = c.breaker.State().String()
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	scores := make(map[model.RunType][]float64)

	for offset := 0; ; offset += collectPageSize {
		if offset >= collectMaxRuns {
			snap.Truncated = true
			break
		}
		page, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: collectPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}

		done := len(page) < collectPageSize
		for _, r := range page {
			if r.UpdatedAt.Before(cutoff) {
				done = true
				break
			}
			c.count(snap, scores, r, now)
		}
		if done {
			break
		}
	}

	snap.FailRate = failRate(snap.Complete, snap.Failed)
	for rt, tm := range snap.ByType {
		tm.FailRate = failRate(tm.Complete, tm.Failed)
		if s := scores[rt]; len(s) > 0 {
			var sum float64
			for _, v := range s {
				sum += v
			}
			avg := sum / float64(len(s))
			tm.AvgScore = &avg
		}
		snap.ByType[rt] = tm
	}
	return snap, nil
}

func (c *Collector) count(snap *MetricsSnapshot, scores map[model.RunType][]float64, r model.Run, now time.Time) {
	tm := snap.ByType[r.RunType]
	snap.Total++
	tm.Total++

	switch r.Status {
	case model.RunStatusComplete:
		snap.Complete++
		tm.Complete++
		if row := report.FromRun(r, false); row.Score != nil {
			scores[r.RunType] = append(scores[r.RunType], *row.Score)
		}
	case model.RunStatusFailed:
		snap.Failed++
		tm.Failed++
	case model.RunStatusRunning:
		snap.Running++
		tm.Running++
		if c.staleAfter > 0 && now.Sub(r.UpdatedAt) > c.staleAfter {
			snap.StaleRunning++
		}
	}
	snap.ByType[r.RunType] = tm
}

func failRate(complete, failed int) float64 {
	finished := complete + failed
	if finished == 0 {
		return 0
	}
	return float64(failed) / float64(finished)
}
