// Package evaluation runs the scoring core for a deal, reusing the last
// completed run when its inputs are unchanged and recording every fresh run.
package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/model"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/rerun"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/resilience"
	"github.com/blakegallagher1/gpc-cres-sub006/internal/store"
)

// ErrInvalidRequest marks a request rejected before anything is persisted.
var ErrInvalidRequest = eris.New("evaluation: invalid request")

// Request asks for one evaluation of a deal.
type Request struct {
	RunType    model.RunType   `json:"run_type"`
	DealID     string          `json:"deal_id"`
	OrgID      string          `json:"org_id"`
	Payload    json.RawMessage `json:"payload"`
	ForceRerun bool            `json:"force_rerun,omitempty"`
}

// Result is the outcome of Evaluate. Output is the run's JSON result.
type Result struct {
	Run      *model.Run      `json:"run"`
	Decision rerun.Decision  `json:"decision"`
	Reused   bool            `json:"reused"`
	Output   json.RawMessage `json:"output"`
}

// Service evaluates deals against a run store.
type Service struct {
	store store.Store
	guard resilience.Guard
	opts  Options
}

// NewService creates a Service. Store calls go through guard.
func NewService(st store.Store, guard resilience.Guard, opts Options) *Service {
	return &Service{store: st, guard: guard, opts: opts}
}

// Options returns the scoring tables the service was built with.
func (s *Service) Options() Options {
	return s.opts
}

// Evaluate hashes the request together with the scoring options, reuses the
// latest completed run when the hash matches and otherwise computes and
// records a new run. A computation error
// is recorded on the run as a failure and returned.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	rt, err := model.ParseRunType(string(req.RunType))
	if err != nil {
		return nil, eris.Wrap(ErrInvalidRequest, err.Error())
	}
	req.RunType = rt
	if req.DealID == "" || req.OrgID == "" {
		return nil, eris.Wrap(ErrInvalidRequest, "deal_id and org_id are required")
	}
	payload := bytes.TrimSpace(req.Payload)
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, eris.Wrap(ErrInvalidRequest, "payload must be a JSON document")
	}
	compute, err := s.computer(rt, payload)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("run_type", string(rt)),
		zap.String("deal_id", req.DealID),
		zap.String("org_id", req.OrgID),
	)

	prev, err := resilience.Call(ctx, s.guard, "latest completed run", func(ctx context.Context) (*model.Run, error) {
		return s.store.LatestCompletedRun(ctx, rt, req.DealID, req.OrgID)
	})
	if err != nil {
		return nil, eris.Wrap(err, "evaluation: look up prior run")
	}

	rr := rerun.Request{
		RunType: string(rt),
		DealID:  req.DealID,
		OrgID:   req.OrgID,
		Payload: map[string]any{
			"payload": json.RawMessage(payload),
			"options": s.opts.fingerprint(rt),
		},
		ForceRerun: req.ForceRerun,
	}
	if prev != nil {
		rr.PreviousInputHash = prev.InputHash
	}
	decision, err := rerun.Decide(rr)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidRequest, err.Error())
	}

	if decision.ShouldReuse {
		log.Info("evaluation: reusing prior run", zap.String("run_id", prev.ID), zap.String("input_hash", decision.InputHash))
		return &Result{Run: prev, Decision: decision, Reused: true, Output: prev.Result}, nil
	}

	run, err := resilience.Call(ctx, s.guard, "create run", func(ctx context.Context) (*model.Run, error) {
		return s.store.CreateRun(ctx, model.NewRun{
			RunType:   rt,
			DealID:    req.DealID,
			OrgID:     req.OrgID,
			InputHash: decision.InputHash,
			Input:     json.RawMessage(payload),
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "evaluation: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	output, computeErr := compute(run.CreatedAt)
	if computeErr != nil {
		s.fail(ctx, log, run, computeErr)
		return nil, eris.Wrapf(computeErr, "evaluation: %s run %s", rt, run.ID)
	}

	if _, err := resilience.Call(ctx, s.guard, "complete run", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.CompleteRun(ctx, run.ID, output)
	}); err != nil {
		return nil, eris.Wrapf(err, "evaluation: complete run %s", run.ID)
	}
	run.Status = model.RunStatusComplete
	run.Result = output
	run.UpdatedAt = time.Now().UTC()

	log.Info("evaluation: run complete", zap.String("reason", string(decision.Reason)))
	return &Result{Run: run, Decision: decision, Output: output}, nil
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, run *model.Run, cause error) {
	run.Status = model.RunStatusFailed
	run.Error = cause.Error()
	if _, err := resilience.Call(ctx, s.guard, "fail run", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.FailRun(ctx, run.ID, run.Error)
	}); err != nil {
		log.Warn("evaluation: failed to record run failure", zap.Error(err))
	}
	log.Error("evaluation: run failed", zap.Error(cause))
}

// computer decodes the payload for rt up front, so malformed payloads are
// rejected before a run exists, and returns the deferred computation.
func (s *Service) computer(rt model.RunType, payload []byte) (func(createdAt time.Time) (json.RawMessage, error), error) {
	decode := func(dst any) error {
		if err := json.Unmarshal(payload, dst); err != nil {
			return eris.Wrapf(ErrInvalidRequest, "decode %s payload: %s", rt, err)
		}
		return nil
	}
	encode := func(v any) (json.RawMessage, error) {
		data, err := json.Marshal(v)
		return data, eris.Wrap(err, "evaluation: encode result")
	}

	switch rt {
	case model.RunTypeTriage:
		var p TriagePayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return func(createdAt time.Time) (json.RawMessage, error) {
			return encode(s.opts.Triage(p, createdAt))
		}, nil
	case model.RunTypeScreening:
		var p ScreeningPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return func(time.Time) (json.RawMessage, error) {
			out, err := s.opts.Screen(p)
			if err != nil {
				return nil, err
			}
			return encode(out)
		}, nil
	case model.RunTypeDealScore:
		var p DealScorePayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return func(time.Time) (json.RawMessage, error) {
			out, err := s.opts.DealScore(p)
			if err != nil {
				return nil, err
			}
			return encode(out)
		}, nil
	default:
		return nil, eris.Wrapf(ErrInvalidRequest, "unsupported run type %s", rt)
	}
}

// GetRun returns a stored run by id.
func (s *Service) GetRun(ctx context.Context, id string) (*model.Run, error) {
	return resilience.Call(ctx, s.guard, "get run", func(ctx context.Context) (*model.Run, error) {
		return s.store.GetRun(ctx, id)
	})
}

// ListRuns lists stored runs.
func (s *Service) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	return resilience.Call(ctx, s.guard, "list runs", func(ctx context.Context) ([]model.Run, error) {
		return s.store.ListRuns(ctx, filter)
	})
}
