package evaluation

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome of one request in a batch, in request order.
type BatchItem struct {
	Index   int     `json:"index"`
	Request Request `json:"request"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Computed int64 `json:"computed"`
	Reused   int64 `json:"reused"`
	Failed   int64 `json:"failed"`
}

// EvaluateBatch evaluates reqs with at most concurrency in flight. A failed
// request is reported on its item and does not stop the batch; only context
// cancellation does.
func (s *Service) EvaluateBatch(ctx context.Context, reqs []Request, concurrency int) ([]BatchItem, BatchSummary, error) {
	items := make([]BatchItem, len(reqs))
	if len(reqs) == 0 {
		return items, BatchSummary{}, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("evaluation: processing batch",
		zap.Int("requests", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var computed, reused, failed atomic.Int64
	for i, req := range reqs {
		items[i] = BatchItem{Index: i, Request: req}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Evaluate(gctx, req)
			if err != nil {
				failed.Add(1)
				items[i].Error = err.Error()
				return nil
			}
			items[i].Result = res
			if res.Reused {
				reused.Add(1)
			} else {
				computed.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	summary := BatchSummary{Computed: computed.Load(), Reused: reused.Load(), Failed: failed.Load()}
	if err != nil {
		return items, summary, eris.Wrap(err, "evaluation: batch")
	}

	zap.L().Info("evaluation: batch complete",
		zap.Int64("computed", summary.Computed),
		zap.Int64("reused", summary.Reused),
		zap.Int64("failed", summary.Failed),
	)
	return items, summary, nil
}
