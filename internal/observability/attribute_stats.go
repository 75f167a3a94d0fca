// Package observability tracks how searches use attribute paths and exposes
// store metrics to Prometheus.
package observability

import (
	"sort"
	"sync"
	"time"
)

// AttributeStats tracks which attribute paths searches filter and sort on.
// The index policy reads it to decide which paths deserve an index.
type AttributeStats struct {
	mu        sync.RWMutex
	filters   map[string]*PathStats
	sortPaths map[string]*PathStats
	window    time.Duration
	now       func() time.Time
}

// PathStats holds usage statistics for one attribute path.
type PathStats struct {
	Path      string
	Frequency int64
	LastSeen  time.Time
	Matches   map[string]int // match type → count (e.g., "equalTo" → 5)
}

// NewAttributeStats creates a tracker that forgets paths unused for window.
func NewAttributeStats(window time.Duration) *AttributeStats {
	return &AttributeStats{
		filters:   make(map[string]*PathStats),
		sortPaths: make(map[string]*PathStats),
		window:    window,
		now:       time.Now,
	}
}

// RecordFilter records a predicate on path using match.
func (a *AttributeStats) RecordFilter(path, match string) {
	a.record(a.filters, path, match)
}

// RecordSort records a sort descriptor on path.
func (a *AttributeStats) RecordSort(path string) {
	a.record(a.sortPaths, path, "")
}

func (a *AttributeStats) record(m map[string]*PathStats, path, match string) {
	if path == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, exists := m[path]
	if !exists {
		stats = &PathStats{Path: path, Matches: make(map[string]int)}
		m[path] = stats
	}
	stats.Frequency++
	stats.LastSeen = a.now()
	if match != "" {
		stats.Matches[match]++
	}
}

// Frequency returns how often path was filtered on.
func (a *AttributeStats) Frequency(path string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.filters[path]; ok {
		return s.Frequency
	}
	return 0
}

// TopFilters returns the n most filtered paths, most frequent first.
func (a *AttributeStats) TopFilters(n int) []PathStats {
	return a.top(a.filters, n)
}

// TopSortPaths returns the n most sorted-on paths, most frequent first.
func (a *AttributeStats) TopSortPaths(n int) []PathStats {
	return a.top(a.sortPaths, n)
}

func (a *AttributeStats) top(m map[string]*PathStats, n int) []PathStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 || len(m) == 0 {
		return []PathStats{}
	}

	stats := make([]PathStats, 0, len(m))
	for _, s := range m {
		cp := *s
		cp.Matches = make(map[string]int, len(s.Matches))
		for k, v := range s.Matches {
			cp.Matches[k] = v
		}
		stats = append(stats, cp)
	}

	// Ties resolve by path so results are deterministic
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Path < stats[j].Path
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes paths not seen within the window.
func (a *AttributeStats) Prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	threshold := a.now().Add(-a.window)
	for _, m := range []map[string]*PathStats{a.filters, a.sortPaths} {
		for path, stats := range m {
			if stats.LastSeen.Before(threshold) {
				delete(m, path)
			}
		}
	}
}

// Reset forgets every recorded path.
func (a *AttributeStats) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filters = make(map[string]*PathStats)
	a.sortPaths = make(map[string]*PathStats)
}
