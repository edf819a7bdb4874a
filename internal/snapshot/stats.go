package snapshot

import (
	"math"

	"github.com/optiview/optiview/internal/dataset"
)

// ColumnStats holds the summary recorded for one column. Min and Max cover
// finite values only; a column with no finite values stores NULL for both.
type ColumnStats struct {
	Min         *float64
	Max         *float64
	FiniteCount int64
}

// StatsTracker accumulates per-column min/max and finite counts while a
// snapshot is written.
type StatsTracker struct {
	stats map[string]*ColumnStats
}

// NewStatsTracker creates an empty statistics tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{stats: make(map[string]*ColumnStats)}
}

// Observe folds one value into a column's statistics. Non-finite values bump
// nothing; they exist in the data but not in the summary.
func (t *StatsTracker) Observe(column string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		if _, ok := t.stats[column]; !ok {
			t.stats[column] = &ColumnStats{}
		}
		return
	}

	cs, ok := t.stats[column]
	if !ok {
		cs = &ColumnStats{}
		t.stats[column] = cs
	}

	if cs.Min == nil || v < *cs.Min {
		val := v
		cs.Min = &val
	}
	if cs.Max == nil || v > *cs.Max {
		val := v
		cs.Max = &val
	}
	cs.FiniteCount++
}

// ObserveSeries folds every value of a column into the tracker.
func (t *StatsTracker) ObserveSeries(col *dataset.Series) {
	if col.IsScalar() {
		for _, v := range col.Scalars {
			t.Observe(col.Name, v)
		}
		return
	}
	for _, row := range col.Arrays {
		for _, v := range row {
			t.Observe(col.Name, v)
		}
	}
}

// Get returns the statistics for a column. Columns holding only non-finite
// values still have an entry, with nil Min/Max.
func (t *StatsTracker) Get(column string) (*ColumnStats, bool) {
	cs, ok := t.stats[column]
	return cs, ok
}
