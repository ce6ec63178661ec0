package ledger

import (
	"context"
	"strings"
	"time"
)

// DefaultPageLimit is applied when a caller asks for a page without a limit.
const DefaultPageLimit = 50

// Filter selects a subset of one ledger's entries. Zero values mean "no
// constraint". Search is matched case-insensitively as a substring of actor,
// resource, and action, and as a prefix of the entry hash. From and To bound
// the timestamp inclusively.
type Filter struct {
	Search   string
	Action   string
	Severity string
	Status   string
	Resource string
	From     time.Time
	To       time.Time
}

// Pagination describes the page actually returned, computed over the
// filtered set rather than the full ledger.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Stats aggregates counts over the filtered set. Recomputed on every query;
// the ledger is append-only and cheap to scan, so nothing is cached.
type Stats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity,omitempty"`
	ByStatus   map[string]int `json:"by_status,omitempty"`
	ByAction   map[string]int `json:"by_action"`
}

// QueryResult is one page of filtered entries plus pagination and aggregate
// statistics over the whole filtered set.
type QueryResult struct {
	Entries    []*Entry   `json:"entries"`
	Pagination Pagination `json:"pagination"`
	Stats      Stats      `json:"stats"`
}

// Query filters, aggregates, and paginates one ledger's entries. Results are
// always sorted by sequence descending (most recent first) regardless of the
// filter combination. limit <= 0 returns the entire filtered set in one page,
// which is what the export path uses.
func Query(ctx context.Context, store Store, f Filter, page, limit int) (*QueryResult, error) {
	if page < 1 {
		page = 1
	}

	head, err := store.Head(ctx)
	if err != nil {
		return nil, err
	}
	all, err := store.Range(ctx, 1, head)
	if err != nil {
		return nil, err
	}

	stats := Stats{
		BySeverity: make(map[string]int),
		ByStatus:   make(map[string]int),
		ByAction:   make(map[string]int),
	}

	// Newest first.
	var matched []*Entry
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if !f.matches(e) {
			continue
		}
		matched = append(matched, e)
		stats.Total++
		stats.ByAction[e.Action]++
		if sev := e.Payload["severity"]; sev != "" {
			stats.BySeverity[sev]++
		}
		if st := e.Payload["status"]; st != "" {
			stats.ByStatus[st]++
		}
	}

	total := len(matched)
	if limit <= 0 {
		return &QueryResult{
			Entries:    matched,
			Pagination: Pagination{Page: 1, Limit: total, Total: total, Pages: 1},
			Stats:      stats,
		}, nil
	}

	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &QueryResult{
		Entries:    matched[start:end],
		Pagination: Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
		Stats:      stats,
	}, nil
}

func (f Filter) matches(e *Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Severity != "" && e.Payload["severity"] != f.Severity {
		return false
	}
	if f.Status != "" && e.Payload["status"] != f.Status {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.ActorID), q) &&
			!strings.Contains(strings.ToLower(e.Resource), q) &&
			!strings.Contains(strings.ToLower(e.Action), q) &&
			!strings.HasPrefix(e.Hash, q) {
			return false
		}
	}
	return true
}
