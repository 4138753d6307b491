package routing

import "time"

// PipelineSteps is the number of pipeline steps with an SLA offset.
const PipelineSteps = 8

// SLATable maps a tier to its day offsets for pipeline steps 1..8.
type SLATable map[SLATier][PipelineSteps]int

// DefaultSLATable returns the standard per-tier offsets in calendar days.
func DefaultSLATable() SLATable {
	return SLATable{
		TierFastTriage:    {1, 1, 2, 2, 3, 3, 4, 5},
		TierStandard:      {2, 3, 4, 5, 6, 7, 8, 10},
		TierDeepDiligence: {3, 5, 7, 10, 12, 14, 18, 21},
	}
}

// Offset returns the day offset for a step. Steps outside 1..8 use step 8;
// tiers missing from the table use the standard row.
func (t SLATable) Offset(step int, tier SLATier) int {
	row, ok := t[tier]
	if !ok {
		row = t[TierStandard]
	}
	if step < 1 || step > PipelineSteps {
		step = PipelineSteps
	}
	return row[step-1]
}

// DueAt adds the step's offset in UTC calendar days to createdAt.
func (t SLATable) DueAt(createdAt time.Time, step int, tier SLATier) time.Time {
	return createdAt.UTC().AddDate(0, 0, t.Offset(step, tier))
}

// ComputeTaskDueAt returns the due date for a pipeline step using
// DefaultSLATable.
func ComputeTaskDueAt(createdAt time.Time, step int, tier SLATier) time.Time {
	return DefaultSLATable().DueAt(createdAt, step, tier)
}
