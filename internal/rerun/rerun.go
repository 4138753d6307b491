// Package rerun decides whether a prior evaluation result can be reused by
// comparing content hashes of the evaluation inputs.
package rerun

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Reason explains a rerun decision.
type Reason string

// Decision reasons.
const (
	ReasonForceRerun  Reason = "force_rerun_requested"
	ReasonHashMatch   Reason = "input_hash_match"
	ReasonHashChanged Reason = "input_hash_changed"
	ReasonNoPriorHash Reason = "no_prior_hash"
)

// Request identifies an evaluation and carries the hash of the last
// completed run with the same identity, if any.
type Request struct {
	RunType           string `json:"run_type"`
	DealID            string `json:"deal_id"`
	OrgID             string `json:"org_id"`
	Payload           any    `json:"payload"`
	PreviousInputHash string `json:"previous_input_hash,omitempty"`
	ForceRerun        bool   `json:"force_rerun,omitempty"`
}

// Decision is the outcome of Decide.
type Decision struct {
	InputHash   string `json:"input_hash"`
	ShouldReuse bool   `json:"should_reuse"`
	Reason      Reason `json:"reason"`
}

// InputHash returns the hex SHA-256 of the canonical JSON encoding of
// (run type, deal id, org id, payload). Object key order and number
// formatting in payload do not affect the hash. Integers beyond 2^53 lose
// precision in canonical form.
func InputHash(runType, dealID, orgID string, payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	envelope := map[string]any{
		"deal_id":  dealID,
		"org_id":   orgID,
		"payload":  canonical,
		"run_type": runType,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", eris.Wrap(err, "rerun: encode hash envelope")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize round-trips v through JSON so that structs, maps and
// differently formatted numbers with the same content compare equal.
// Map keys come out sorted when the result is marshaled again.
func Canonicalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "rerun: encode payload")
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "rerun: decode payload")
	}
	return out, nil
}

// Decide hashes the request inputs and compares them with the previous hash.
// ForceRerun always wins, even over a matching hash.
func Decide(req Request) (Decision, error) {
	hash, err := InputHash(req.RunType, req.DealID, req.OrgID, req.Payload)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{InputHash: hash}
	switch {
	case req.ForceRerun:
		d.Reason = ReasonForceRerun
	case req.PreviousInputHash != "" && req.PreviousInputHash == hash:
		d.ShouldReuse = true
		d.Reason = ReasonHashMatch
	case req.PreviousInputHash != "":
		d.Reason = ReasonHashChanged
	default:
		d.Reason = ReasonNoPriorHash
	}
	return d, nil
}
