// Package observability tracks statistics over the result sets tsdemo decodes.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/tsdemo/tsdemo/pkg/types"
)

// ResultStats tracks how often each column appears in query results, the
// types it was declared with and how many of its cells were NULL.
type ResultStats struct {
	mu      sync.RWMutex
	columns map[string]*ColumnStats
	pages   int64
	rows    int64
	window  time.Duration
	now     func() time.Time
}

// ColumnStats holds statistics for one result column.
type ColumnStats struct {
	Column    string
	Frequency int64
	Nulls     int64
	LastSeen  time.Time
	Types     map[string]int // type notation → pages declaring it
}

// NewResultStats creates a tracker. Entries unseen for longer than window are
// dropped by Prune.
func NewResultStats(window time.Duration) *ResultStats {
	return &ResultStats{
		columns: make(map[string]*ColumnStats),
		window:  window,
		now:     time.Now,
	}
}

// RecordPage records the columns and NULL cells of page. Safe for concurrent use.
func (s *ResultStats) RecordPage(page types.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pages++
	s.rows += int64(len(page.Rows))

	for i, col := range page.Columns {
		stats, exists := s.columns[col.Name]
		if !exists {
			stats = &ColumnStats{Column: col.Name, Types: make(map[string]int)}
			s.columns[col.Name] = stats
		}
		stats.Frequency++
		stats.LastSeen = now
		notation := "<malformed>"
		if col.Type != nil {
			notation = col.Type.String()
		}
		stats.Types[notation]++

		for _, row := range page.Rows {
			if i < len(row.Data) && row.Data[i].Null {
				stats.Nulls++
			}
		}
	}
}

// Totals returns the number of pages and rows recorded.
func (s *ResultStats) Totals() (pages, rows int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages, s.rows
}

// GetTopColumns returns copies of the n most frequent columns, most frequent
// first. Ties are ordered by name.
func (s *ResultStats) GetTopColumns(n int) []ColumnStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.columns) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(s.columns))
	for _, c := range s.columns {
		cp := *c
		cp.Types = make(map[string]int, len(c.Types))
		for t, count := range c.Types {
			cp.Types[t] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes columns not seen within the window.
func (s *ResultStats) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.now().Add(-s.window)
	for name, c := range s.columns {
		if c.LastSeen.Before(threshold) {
			delete(s.columns, name)
		}
	}
}
