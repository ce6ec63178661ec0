package ledger_test

import (
	"testing"
	"time"

	"github.com/verdantio/carbonledger/internal/ledger"
)

func queryStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)

	appends := []ledger.Draft{
		{ActorID: "admin@verdant.io", ActorRole: "admin", Action: "login", Resource: "session/1", Payload: map[string]string{"severity": "info"}},
		{ActorID: "ops@aurora-steel.com", ActorRole: "corporate", Action: "create", Resource: "project/PRJ-0042", Payload: map[string]string{"severity": "info"}},
		{ActorID: "ops@aurora-steel.com", ActorRole: "corporate", Action: "access", Resource: "project/PRJ-0042", Payload: map[string]string{"severity": "warning"}},
		{ActorID: "admin@verdant.io", ActorRole: "admin", Action: "security_event", Resource: "auth/ratelimit", Payload: map[string]string{"severity": "critical"}},
		{ActorID: "watch@rainforest.org", ActorRole: "ngo", Action: "access", Resource: "project/PRJ-0042", Payload: map[string]string{"severity": "info"}},
	}
	for _, d := range appends {
		if _, err := s.Append(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestQuery_noFilterNewestFirst(t *testing.T) {
	s := queryStore(t)

	result, err := ledger.Query(ctx, s, ledger.Filter{}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(result.Entries))
	}
	for i := 1; i < len(result.Entries); i++ {
		if result.Entries[i].Sequence >= result.Entries[i-1].Sequence {
			t.Fatal("entries not sorted newest first")
		}
	}
}

func TestQuery_filterByAction(t *testing.T) {
	s := queryStore(t)

	result, err := ledger.Query(ctx, s, ledger.Filter{Action: "access"}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 access entries, got %d", len(result.Entries))
	}
	for _, e := range result.Entries {
		if e.Action != "access" {
			t.Errorf("filter leaked action %q", e.Action)
		}
	}
}

func TestQuery_filterBySeverity(t *testing.T) {
	s := queryStore(t)

	result, err := ledger.Query(ctx, s, ledger.Filter{Severity: "critical"}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Action != "security_event" {
		t.Fatalf("expected only the security_event entry, got %d entries", len(result.Entries))
	}
}

func TestQuery_filterCombination(t *testing.T) {
	s := queryStore(t)

	f := ledger.Filter{Action: "access", Resource: "project/PRJ-0042", Severity: "warning"}
	result, err := ledger.Query(ctx, s, f, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry matching all filters, got %d", len(result.Entries))
	}
	if result.Entries[0].ActorID != "ops@aurora-steel.com" {
		t.Errorf("wrong entry matched: %+v", result.Entries[0])
	}
}

func TestQuery_searchActorCaseInsensitive(t *testing.T) {
	s := queryStore(t)

	result, err := ledger.Query(ctx, s, ledger.Filter{Search: "AURORA"}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries for actor substring, got %d", len(result.Entries))
	}
}

func TestQuery_searchHashPrefix(t *testing.T) {
	s := queryStore(t)
	e3, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}

	result, err := ledger.Query(ctx, s, ledger.Filter{Search: e3.Hash[:12]}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Sequence != 3 {
		t.Fatalf("hash prefix search: got %d entries", len(result.Entries))
	}
}

func TestQuery_dateRangeInclusive(t *testing.T) {
	s := queryStore(t)
	e2, _ := s.Get(ctx, 2)
	e4, _ := s.Get(ctx, 4)

	f := ledger.Filter{From: e2.Timestamp, To: e4.Timestamp}
	result, err := ledger.Query(ctx, s, f, 1, 50)
	if err != nil {
		t.Fatal(err)
	}

	// Boundary entries are included on both ends.
	seen := map[uint64]bool{}
	for _, e := range result.Entries {
		seen[e.Sequence] = true
		if e.Timestamp.Before(f.From) || e.Timestamp.After(f.To) {
			t.Errorf("entry %d outside [from, to]", e.Sequence)
		}
	}
	if !seen[2] || !seen[4] {
		t.Error("boundary entries must be included")
	}
}

func TestQuery_pagination(t *testing.T) {
	s := queryStore(t)

	page1, err := ledger.Query(ctx, s, ledger.Filter{}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Entries) != 2 {
		t.Fatalf("page 1: expected 2 entries, got %d", len(page1.Entries))
	}
	if page1.Pagination.Total != 5 || page1.Pagination.Pages != 3 {
		t.Errorf("pagination: %+v", page1.Pagination)
	}

	page3, err := ledger.Query(ctx, s, ledger.Filter{}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Entries) != 1 {
		t.Errorf("page 3: expected 1 entry, got %d", len(page3.Entries))
	}

	beyond, err := ledger.Query(ctx, s, ledger.Filter{}, 9, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond.Entries) != 0 {
		t.Errorf("page past the end: expected 0 entries, got %d", len(beyond.Entries))
	}
}

func TestQuery_statsOverFilteredSet(t *testing.T) {
	s := queryStore(t)

	// Stats cover every match, not just the returned page.
	result, err := ledger.Query(ctx, s, ledger.Filter{}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if result.Stats.Total != 5 {
		t.Errorf("stats total: got %d, want 5", result.Stats.Total)
	}
	if result.Stats.ByAction["access"] != 2 {
		t.Errorf("by_action[access]: got %d, want 2", result.Stats.ByAction["access"])
	}
	if result.Stats.BySeverity["info"] != 3 {
		t.Errorf("by_severity[info]: got %d, want 3", result.Stats.BySeverity["info"])
	}
	if result.Stats.BySeverity["critical"] != 1 {
		t.Errorf("by_severity[critical]: got %d, want 1", result.Stats.BySeverity["critical"])
	}
}

func TestQuery_unboundedLimitReturnsAll(t *testing.T) {
	s := queryStore(t)

	result, err := ledger.Query(ctx, s, ledger.Filter{}, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 5 {
		t.Fatalf("limit 0: expected all 5 entries, got %d", len(result.Entries))
	}
	if result.Pagination.Pages != 1 {
		t.Errorf("unbounded query should be a single page, got %d", result.Pagination.Pages)
	}
}

func TestQuery_emptyLedger(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)

	result, err := ledger.Query(ctx, s, ledger.Filter{}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 0 || result.Pagination.Total != 0 {
		t.Errorf("empty ledger: %+v", result.Pagination)
	}
}

func TestQuery_noMatchWindow(t *testing.T) {
	s := queryStore(t)

	f := ledger.Filter{From: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)}
	result, err := ledger.Query(ctx, s, f, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 0 {
		t.Errorf("window before the ledger existed matched %d entries", result.Pagination.Total)
	}
}
