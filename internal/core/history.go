package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistorySize is how many import reports are retained.
const DefaultHistorySize = 50

// ImportReport describes one finished import run.
type ImportReport struct {
	ID         string        `json:"id"`
	FileName   string        `json:"fileName,omitempty"`
	Options    ImportOptions `json:"options"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Result     ImportResult  `json:"result"`
	// Blocked is set when invalid rows stopped the import before any write.
	Blocked bool `json:"blocked"`
	// BlankRows counts blank and instructional rows the parser ignored.
	BlankRows int `json:"blankRows"`
	ClientIP  string `json:"clientIp,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Duration returns how long the run took.
func (r ImportReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func newImportReport(ctx context.Context, fileName string, opts ImportOptions) *ImportReport {
	ip, ua := ClientFromContext(ctx)
	return &ImportReport{
		ID:        uuid.New().String(),
		FileName:  fileName,
		Options:   opts,
		StartedAt: time.Now(),
		Result:    ImportResult{Errors: []RowError{}},
		ClientIP:  ip,
		UserAgent: ua,
	}
}

// ImportHistory keeps the most recent import reports in memory.
type ImportHistory struct {
	mu      sync.RWMutex
	size    int
	order   []string
	reports map[string]ImportReport
}

// NewImportHistory retains at most size reports.
func NewImportHistory(size int) *ImportHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &ImportHistory{
		size:    size,
		reports: make(map[string]ImportReport, size),
	}
}

// Add stores r, evicting the oldest report when full.
func (h *ImportHistory) Add(r ImportReport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.reports[r.ID]; !exists {
		h.order = append(h.order, r.ID)
	}
	h.reports[r.ID] = r

	for len(h.order) > h.size {
		delete(h.reports, h.order[0])
		h.order = h.order[1:]
	}
}

// Get returns the report with id.
func (h *ImportHistory) Get(id string) (ImportReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.reports[id]
	return r, ok
}

// Recent returns up to n reports, newest first.
func (h *ImportHistory) Recent(n int) []ImportReport {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.order) {
		n = len(h.order)
	}
	out := make([]ImportReport, 0, n)
	for i := len(h.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.reports[h.order[i]])
	}
	return out
}

// mergeRowErrors combines error lists ordered by line. Errors on the same
// line keep their input order. The result is never nil.
func mergeRowErrors(lists ...[]RowError) []RowError {
	out := []RowError{}
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
