package scorer

import (
	"fmt"
	"strings"
)

// HardFilterResult is the outcome of a disqualification check.
// Disqualifiers appear in evaluation order.
type HardFilterResult struct {
	Passed        bool     `json:"passed"`
	Disqualifiers []string `json:"disqualifiers"`
}

func newHardFilterResult(disqualifiers []string) HardFilterResult {
	if disqualifiers == nil {
		disqualifiers = []string{}
	}
	return HardFilterResult{
		Passed:        len(disqualifiers) == 0,
		Disqualifiers: disqualifiers,
	}
}

// Site disqualifier reason prefixes.
const (
	ReasonFloodZone      = "flood_zone_sfha"
	ReasonContamination  = "known_contamination"
	ReasonNoUtilities    = "no_utility_access"
	ReasonNoRoadAccess   = "no_road_access"
	ReasonZoningConflict = "zoning_use_conflict"
)

// Financial disqualifier reasons, keyed by metric name.
const (
	ReasonDSCR        = "dscr"
	ReasonCapRate     = "cap_rate"
	ReasonYieldSpread = "yield_spread"
)

// sfhaZones are FEMA Special Flood Hazard Area zone codes.
var sfhaZones = map[string]bool{
	"A": true, "AE": true, "AH": true, "AO": true, "V": true, "VE": true,
}

// IsSFHAZone reports whether a FEMA flood zone code is a Special Flood
// Hazard Area.
func IsSFHAZone(code string) bool {
	return sfhaZones[strings.ToUpper(strings.TrimSpace(code))]
}

// SiteSignals are the site-level facts checked by the hard filter gate.
// A nil field is unknown and never disqualifies.
type SiteSignals struct {
	FloodZone     *string `json:"flood_zone,omitempty"`
	Contaminated  *bool   `json:"contaminated,omitempty"`
	UtilityAccess *bool   `json:"utility_access,omitempty"`
	RoadAccess    *bool   `json:"road_access,omitempty"`
	Zoning        *string `json:"zoning,omitempty"`
	ProposedUse   *string `json:"proposed_use,omitempty"`
}

// EvaluateSiteHardFilters runs every site check and accumulates all failures.
func EvaluateSiteHardFilters(s SiteSignals) HardFilterResult {
	var dq []string

	if s.FloodZone != nil && IsSFHAZone(*s.FloodZone) {
		dq = append(dq, fmt.Sprintf("%s: %s", ReasonFloodZone, strings.ToUpper(strings.TrimSpace(*s.FloodZone))))
	}
	if s.Contaminated != nil && *s.Contaminated {
		dq = append(dq, ReasonContamination)
	}
	if s.UtilityAccess != nil && !*s.UtilityAccess {
		dq = append(dq, ReasonNoUtilities)
	}
	if s.RoadAccess != nil && !*s.RoadAccess {
		dq = append(dq, ReasonNoRoadAccess)
	}
	if s.Zoning != nil && s.ProposedUse != nil {
		zc := ClassifyLandUse(*s.Zoning)
		uc := ClassifyLandUse(*s.ProposedUse)
		if conflicts(zc, uc) {
			dq = append(dq, fmt.Sprintf("%s: %s zoning for %s use", ReasonZoningConflict, zc, uc))
		}
	}

	return newHardFilterResult(dq)
}

// FinancialHardFilterInput carries the metrics checked by the financial gate.
type FinancialHardFilterInput struct {
	DSCR        *float64 `json:"dscr,omitempty"`
	CapRate     *float64 `json:"cap_rate,omitempty"`
	YieldSpread *float64 `json:"yield_spread,omitempty"`
}

// EvaluateFinancialHardFilters fails each known metric that falls below its
// minimum. Reasons are the metric names so callers can tell causes apart.
func EvaluateFinancialHardFilters(in FinancialHardFilterInput, th FinancialHardFilterThresholds) HardFilterResult {
	checks := []struct {
		name      string
		value     *float64
		threshold float64
	}{
		{ReasonDSCR, in.DSCR, th.MinDSCR},
		{ReasonCapRate, in.CapRate, th.MinCapRate},
		{ReasonYieldSpread, in.YieldSpread, th.MinYieldSpread},
	}

	var dq []string
	for _, c := range checks {
		if c.value != nil && *c.value < c.threshold {
			dq = append(dq, c.name)
		}
	}
	return newHardFilterResult(dq)
}

// LandUseClass is a coarse zoning / use category.
type LandUseClass string

// Land use classes recognized by the zoning conflict check.
const (
	LandUseResidential  LandUseClass = "residential"
	LandUseCommercial   LandUseClass = "commercial"
	LandUseIndustrial   LandUseClass = "industrial"
	LandUseAgricultural LandUseClass = "agricultural"
	LandUseUnknown      LandUseClass = "unknown"
)

// incompatibleUses maps a zoning class to the proposed uses it cannot host.
var incompatibleUses = map[LandUseClass][]LandUseClass{
	LandUseResidential:  {LandUseIndustrial},
	LandUseIndustrial:   {LandUseResidential},
	LandUseAgricultural: {LandUseIndustrial},
}

func conflicts(zoning, use LandUseClass) bool {
	for _, bad := range incompatibleUses[zoning] {
		if bad == use {
			return true
		}
	}
	return false
}

// ClassifyLandUse maps a zoning code ("R-1", "M1", "C-2", "AG") or a
// free-text use ("light industrial", "multifamily residential") to a class.
func ClassifyLandUse(raw string) LandUseClass {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return LandUseUnknown
	}

	switch {
	case strings.Contains(s, "industrial"), strings.Contains(s, "warehouse"),
		strings.Contains(s, "manufactur"), strings.Contains(s, "logistics"):
		return LandUseIndustrial
	case strings.Contains(s, "residential"), strings.Contains(s, "multifamily"),
		strings.Contains(s, "single family"), strings.Contains(s, "housing"):
		return LandUseResidential
	case strings.Contains(s, "commercial"), strings.Contains(s, "retail"),
		strings.Contains(s, "office"):
		return LandUseCommercial
	case strings.Contains(s, "agricultur"), strings.Contains(s, "farm"):
		return LandUseAgricultural
	}

	// Zoning codes: a short letter prefix optionally followed by digits.
	code := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(s))
	prefix := strings.TrimRight(code, "0123456789")
	if len(prefix) == 0 || len(prefix) > 3 || !isLetters(prefix) {
		return LandUseUnknown
	}
	switch {
	case strings.HasPrefix(prefix, "AG"), prefix == "A":
		return LandUseAgricultural
	case strings.HasPrefix(prefix, "R"):
		return LandUseResidential
	case strings.HasPrefix(prefix, "C"), strings.HasPrefix(prefix, "B"):
		return LandUseCommercial
	case strings.HasPrefix(prefix, "M"), strings.HasPrefix(prefix, "I"):
		return LandUseIndustrial
	}
	return LandUseUnknown
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
