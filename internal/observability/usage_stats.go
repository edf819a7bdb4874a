// Package observability provides usage tracking and Prometheus metrics for
// the dashboard service.
package observability

import (
	"sort"
	"sync"
	"time"
)

// UsageStats tracks which columns analysts actually use, feeding the usage
// endpoint that tells study authors which declared variables earn their place.
type UsageStats struct {
	mu            sync.RWMutex
	objectiveFreq map[string]*ColumnUsage
	selectionFreq map[string]*ColumnUsage
	window        time.Duration
}

// ColumnUsage holds usage counters for one column.
type ColumnUsage struct {
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Senses    map[string]int `json:"senses,omitempty"` // sense → count for objectives
}

// NewUsageStats creates a usage tracker. Entries idle longer than window are
// dropped by Prune.
func NewUsageStats(window time.Duration) *UsageStats {
	return &UsageStats{
		objectiveFreq: make(map[string]*ColumnUsage),
		selectionFreq: make(map[string]*ColumnUsage),
		window:        window,
	}
}

// RecordObjective records one objective column taking part in a front
// computation, and under which sense. O(1) and thread-safe.
func (u *UsageStats) RecordObjective(column, sense string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	usage, exists := u.objectiveFreq[column]
	if !exists {
		usage = &ColumnUsage{
			Column: column,
			Senses: make(map[string]int),
		}
		u.objectiveFreq[column] = usage
	}

	usage.Frequency++
	usage.LastSeen = time.Now()
	usage.Senses[sense]++
}

// RecordSelection records a column being placed on screen. O(1) and
// thread-safe.
func (u *UsageStats) RecordSelection(column string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	usage, exists := u.selectionFreq[column]
	if !exists {
		usage = &ColumnUsage{Column: column}
		u.selectionFreq[column] = usage
	}

	usage.Frequency++
	usage.LastSeen = time.Now()
}

// TopObjectives returns up to n objective columns by descending frequency.
func (u *UsageStats) TopObjectives(n int) []ColumnUsage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return topOf(u.objectiveFreq, n)
}

// TopSelections returns up to n selected columns by descending frequency.
func (u *UsageStats) TopSelections(n int) []ColumnUsage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return topOf(u.selectionFreq, n)
}

// topOf deep-copies and sorts the counters, callers hold at least a read lock.
func topOf(freq map[string]*ColumnUsage, n int) []ColumnUsage {
	if n <= 0 || len(freq) == 0 {
		return []ColumnUsage{}
	}

	usages := make([]ColumnUsage, 0, len(freq))
	for _, s := range freq {
		cp := ColumnUsage{
			Column:    s.Column,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
		}
		if s.Senses != nil {
			cp.Senses = make(map[string]int, len(s.Senses))
			for sense, count := range s.Senses {
				cp.Senses[sense] = count
			}
		}
		usages = append(usages, cp)
	}

	sort.Slice(usages, func(i, j int) bool {
		if usages[i].Frequency != usages[j].Frequency {
			return usages[i].Frequency > usages[j].Frequency
		}
		return usages[i].Column < usages[j].Column
	})

	if n > len(usages) {
		n = len(usages)
	}
	return usages[:n]
}

// Prune removes entries idle longer than the window. Call periodically.
func (u *UsageStats) Prune() {
	u.mu.Lock()
	defer u.mu.Unlock()

	threshold := time.Now().Add(-u.window)
	for col, usage := range u.objectiveFreq {
		if usage.LastSeen.Before(threshold) {
			delete(u.objectiveFreq, col)
		}
	}
	for col, usage := range u.selectionFreq {
		if usage.LastSeen.Before(threshold) {
			delete(u.selectionFreq, col)
		}
	}
}
