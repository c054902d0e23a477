package models

import (
	"fmt"
	"time"
)

// RunKind names a harvesting pass
type RunKind string

const (
	RunDiscover  RunKind = "discover"
	RunItems     RunKind = "items"
	RunReconcile RunKind = "reconcile"
	RunFull      RunKind = "full"
)

// ParseRunKind validates a run kind received from the CLI or API
func ParseRunKind(s string) (RunKind, error) {
	switch k := RunKind(s); k {
	case RunDiscover, RunItems, RunReconcile, RunFull:
		return k, nil
	}
	return "", fmt.Errorf("unknown run kind %q", s)
}

// TenantResult holds the outcome of one tenant inside a run
type TenantResult struct {
	TenantID        int64   `json:"tenant_id"`
	Pass            RunKind `json:"pass"`
	Pages           int     `json:"pages"`
	LimitReached    bool    `json:"limit_reached"`
	Discovered      int     `json:"discovered"`
	EventsInserted  int     `json:"events_inserted"`
	LinksInserted   int     `json:"links_inserted"`
	EventsProcessed int     `json:"events_processed"`
	EventsFailed    int     `json:"events_failed"`
	ItemsExtracted  int     `json:"items_extracted"`
	ItemsInserted   int     `json:"items_inserted"`
	RowsSkipped     int     `json:"rows_skipped"`
	Error           string  `json:"error,omitempty"`
}

// RunSummary is the report of one harvesting run
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Kind       RunKind        `json:"kind"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Tenants    []TenantResult `json:"tenants,omitempty"`

	EventsChecked int    `json:"events_checked"`
	EventsMarked  int    `json:"events_marked"`
	Error         string `json:"error,omitempty"`
}

// Duration returns how long the run took
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Totals sums the per-tenant counters
func (s *RunSummary) Totals() TenantResult {
	var t TenantResult
	for _, r := range s.Tenants {
		t.Pages += r.Pages
		t.Discovered += r.Discovered
		t.EventsInserted += r.EventsInserted
		t.LinksInserted += r.LinksInserted
		t.EventsProcessed += r.EventsProcessed
		t.EventsFailed += r.EventsFailed
		t.ItemsExtracted += r.ItemsExtracted
		t.ItemsInserted += r.ItemsInserted
		t.RowsSkipped += r.RowsSkipped
		t.LimitReached = t.LimitReached || r.LimitReached
	}
	return t
}

// Merge appends the results of another pass into s
func (s *RunSummary) Merge(other *RunSummary) {
	if other == nil {
		return
	}
	s.Tenants = append(s.Tenants, other.Tenants...)
	s.EventsChecked += other.EventsChecked
	s.EventsMarked += other.EventsMarked
	if s.Error == "" {
		s.Error = other.Error
	}
}
