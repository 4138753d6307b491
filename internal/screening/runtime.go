package screening

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/blakegallagher1/gpc-cres-sub006/internal/numeric"
)

// Override scopes.
const (
	ScopeField = "field"
	ScopeScore = "score"
)

// Score keys that a score-scoped override may replace.
const (
	OverallScoreKey     = "overall_score"
	FinancialScoreKey   = "financial_score"
	QualitativeScoreKey = "qualitative_score"
)

// FieldValue is one extracted field for a deal, typically from document
// extraction, with the extractor's confidence.
type FieldValue struct {
	FieldKey    string   `json:"field_key"`
	ValueNumber *float64 `json:"value_number,omitempty"`
	ValueText   *string  `json:"value_text,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// Override is a manual correction entered by an analyst. Field overrides
// replace extracted values; score overrides replace computed scores.
type Override struct {
	Scope       string   `json:"scope"`
	FieldKey    string   `json:"field_key"`
	ValueNumber *float64 `json:"value_number,omitempty"`
	ValueText   *string  `json:"value_text,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

type fieldAlias struct {
	raw       string
	canonical string
}

// Alias order matters: the first alias with a value wins for its canonical key.
var fieldAliases = []fieldAlias{
	{"price_basis", "price_basis"},
	{"underwritten_price", "price_basis"},
	{"asking_price", "price_basis"},
	{"total_project_cost", "total_project_cost"},
	{"total_cost", "total_project_cost"},
	{"square_feet", "square_feet"},
	{"sf", "square_feet"},
	{"noi_in_place", "noi_in_place"},
	{"noi_stabilized", "noi_stabilized"},
	{"tenant_credit", "tenant_credit_score"},
	{"tenant_credit_score", "tenant_credit_score"},
	{"asset_condition", "asset_condition_score"},
	{"asset_condition_score", "asset_condition_score"},
	{"market_dynamics", "market_dynamics_score"},
	{"market_dynamics_score", "market_dynamics_score"},
}

// ParseNumber reads a loosely typed value as a number. Strings may carry
// currency symbols, thousands separators and a trailing percent sign
// ("7.5%" is 0.075). Booleans, blanks and anything unparsable are unknown.
func ParseNumber(v any) *float64 {
	switch x := v.(type) {
	case nil, bool:
		return nil
	case float64:
		return finite(&x)
	case float32:
		return finite(numeric.Ptr(float64(x)))
	case int:
		return numeric.Ptr(float64(x))
	case int64:
		return numeric.Ptr(float64(x))
	case int32:
		return numeric.Ptr(float64(x))
	case json.Number:
		return ParseNumber(x.String())
	case *float64:
		return finite(x)
	case string:
		return parseNumberString(x)
	default:
		return nil
	}
}

func parseNumberString(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	percent := strings.Contains(s, "%")
	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if percent {
		f /= 100
	}
	return finite(&f)
}

func coerce(number *float64, text *string) *float64 {
	if number != nil {
		return finite(number)
	}
	if text != nil {
		return parseNumberString(*text)
	}
	return nil
}

func overridesByKey(overrides []Override, scope string) map[string]Override {
	out := make(map[string]Override)
	for _, o := range overrides {
		if o.Scope != scope || o.FieldKey == "" {
			continue
		}
		if _, dup := out[o.FieldKey]; dup {
			continue
		}
		out[o.FieldKey] = o
	}
	return out
}

// BuildInputs resolves extracted field values and field-scoped overrides into
// screening inputs. An override beats the extracted value for the same key.
func BuildInputs(values []FieldValue, overrides []Override) Inputs {
	byKey := make(map[string]FieldValue, len(values))
	for _, v := range values {
		if v.FieldKey != "" {
			byKey[v.FieldKey] = v
		}
	}
	fieldOverrides := overridesByKey(overrides, ScopeField)

	return resolveAliases(func(raw string) *float64 {
		if o, ok := fieldOverrides[raw]; ok {
			return coerce(o.ValueNumber, o.ValueText)
		}
		if v, ok := byKey[raw]; ok {
			return coerce(v.ValueNumber, v.ValueText)
		}
		return nil
	})
}

// InputsFromMap resolves a loosely typed key/value document (for example a
// decoded JSON body) into screening inputs using the same aliases as
// BuildInputs.
func InputsFromMap(raw map[string]any) Inputs {
	return resolveAliases(func(key string) *float64 {
		return ParseNumber(raw[key])
	})
}

func resolveAliases(lookup func(raw string) *float64) Inputs {
	resolved := make(map[string]*float64)
	for _, a := range fieldAliases {
		if resolved[a.canonical] != nil {
			continue
		}
		resolved[a.canonical] = lookup(a.raw)
	}
	return Inputs{
		PriceBasis:          resolved["price_basis"],
		TotalProjectCost:    resolved["total_project_cost"],
		SquareFeet:          resolved["square_feet"],
		NOIInPlace:          resolved["noi_in_place"],
		NOIStabilized:       resolved["noi_stabilized"],
		TenantCreditScore:   resolved["tenant_credit_score"],
		AssetConditionScore: resolved["asset_condition_score"],
		MarketDynamicsScore: resolved["market_dynamics_score"],
	}
}

// FindLowConfidenceKeys returns the sorted field keys whose confidence is
// below threshold. Fields with a field-scoped override are skipped.
func FindLowConfidenceKeys(values []FieldValue, threshold float64, overrides []Override) []string {
	fieldOverrides := overridesByKey(overrides, ScopeField)
	var low []string
	for _, v := range values {
		if v.FieldKey == "" {
			continue
		}
		if _, ok := fieldOverrides[v.FieldKey]; ok {
			continue
		}
		if c := finite(v.Confidence); c != nil && *c < threshold {
			low = append(low, v.FieldKey)
		}
	}
	return sortedUnique(low)
}

// ApplyScoreOverrides returns a copy of base with score-scoped overrides for
// the overall, financial and qualitative scores applied.
func ApplyScoreOverrides(base ScoreBreakdown, overrides []Override) ScoreBreakdown {
	scoreOverrides := overridesByKey(overrides, ScopeScore)
	out := base
	targets := map[string]**float64{
		OverallScoreKey:     &out.OverallScore,
		FinancialScoreKey:   &out.FinancialScore,
		QualitativeScoreKey: &out.QualitativeScore,
	}
	for key, dst := range targets {
		o, ok := scoreOverrides[key]
		if !ok {
			continue
		}
		if v := coerce(o.ValueNumber, o.ValueText); v != nil {
			*dst = numeric.Ptr(*v)
		}
	}
	return out
}

// PlaybookFromSettings decodes stored JSON playbook settings over the
// defaults. Empty or null settings yield DefaultPlaybook.
func PlaybookFromSettings(raw []byte) (Playbook, error) {
	pb := DefaultPlaybook()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return pb, nil
	}
	if err := json.Unmarshal(trimmed, &pb); err != nil {
		return Playbook{}, eris.Wrap(err, "screening: decode playbook settings")
	}
	if err := pb.Validate(); err != nil {
		return Playbook{}, err
	}
	return pb, nil
}

// LoadPlaybook reads a YAML playbook file over the defaults. An empty path
// yields DefaultPlaybook.
func LoadPlaybook(path string) (Playbook, error) {
	pb := DefaultPlaybook()
	if path == "" {
		return pb, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Playbook{}, eris.Wrapf(err, "screening: read playbook %s", path)
	}
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return Playbook{}, eris.Wrapf(err, "screening: parse playbook %s", path)
	}
	if err := pb.Validate(); err != nil {
		return Playbook{}, err
	}
	return pb, nil
}
