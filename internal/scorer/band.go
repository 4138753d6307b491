package scorer

import "sort"

// ScoreFromThresholds maps value onto a 1..len(thresholds) ordinal score.
// The score is 1 plus the index of the last threshold value meets or
// exceeds; values below the first threshold still score 1. Returns nil when
// value is unknown or there are no thresholds.
func ScoreFromThresholds(value *float64, thresholds []float64) *int {
	if value == nil || len(thresholds) == 0 {
		return nil
	}
	score := 1
	for i, t := range thresholds {
		if *value >= t {
			score = i + 1
		}
	}
	return &score
}

// ScoreFromThresholdsFloat is ScoreFromThresholds widened to *float64 for
// averaging alongside other component scores.
func ScoreFromThresholdsFloat(value *float64, thresholds []float64) *float64 {
	s := ScoreFromThresholds(value, thresholds)
	if s == nil {
		return nil
	}
	f := float64(*s)
	return &f
}

// AscendingThresholds reports whether thresholds are sorted ascending.
func AscendingThresholds(thresholds []float64) bool {
	return sort.Float64sAreSorted(thresholds)
}
