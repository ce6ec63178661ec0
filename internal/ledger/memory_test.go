package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/verdantio/carbonledger/internal/ledger"
)

var ctx = context.Background()

func draft(action string) ledger.Draft {
	return ledger.Draft{
		ActorID:   "admin@verdant.io",
		ActorRole: "admin",
		Action:    action,
		Resource:  "session/abc",
	}
}

func TestMemoryAppend_firstEntryLinksGenesis(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)

	e, err := s.Append(ctx, draft("login"))
	if err != nil {
		t.Fatal(err)
	}
	if e.Sequence != 1 {
		t.Errorf("first sequence: got %d, want 1", e.Sequence)
	}
	if e.PrevHash != ledger.GenesisHash {
		t.Errorf("first PrevHash: got %q, want GenesisHash", e.PrevHash)
	}
	if e.Hash != ledger.ComputeHash(e) {
		t.Error("stored hash does not match recomputed hash")
	}
	if e.SubjectType != ledger.SubjectAuditEvent {
		t.Errorf("subject type: got %q", e.SubjectType)
	}
}

func TestMemoryAppend_chainsCorrectly(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)

	e1, err := s.Append(ctx, draft("login"))
	if err != nil {
		t.Fatal(err)
	}
	e2, err := s.Append(ctx, draft("access"))
	if err != nil {
		t.Fatal(err)
	}

	if e2.Sequence != e1.Sequence+1 {
		t.Errorf("sequences not contiguous: %d then %d", e1.Sequence, e2.Sequence)
	}
	if e2.PrevHash != e1.Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", e2.PrevHash, e1.Hash)
	}
}

func TestMemoryAppend_rejectsInvalidDraft(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)

	cases := []ledger.Draft{
		{Action: "login"},                 // missing actor
		{ActorID: "admin@verdant.io"},     // missing action
		{ActorID: "a", Action: "login", Payload: map[string]string{"": "x"}}, // empty payload key
	}
	for i, d := range cases {
		_, err := s.Append(ctx, d)
		var verr *ledger.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}

	if head, _ := s.Head(ctx); head != 0 {
		t.Errorf("rejected drafts must write nothing, head=%d", head)
	}
}

func TestMemoryAppend_concurrentContiguous(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Append(ctx, draft("access")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	head, err := s.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head != n {
		t.Fatalf("head: got %d, want %d", head, n)
	}

	// Every sequence must exist and link to its true predecessor.
	prev := ledger.GenesisHash
	for seq := uint64(1); seq <= n; seq++ {
		e, err := s.Get(ctx, seq)
		if err != nil {
			t.Fatalf("Get(%d): %v", seq, err)
		}
		if e.PrevHash != prev {
			t.Fatalf("entry %d: PrevHash=%q, want %q", seq, e.PrevHash, prev)
		}
		prev = e.Hash
	}
}

func TestMemoryAppend_payloadCopied(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)

	p := map[string]string{"severity": "info"}
	d := draft("login")
	d.Payload = p
	e, err := s.Append(ctx, d)
	if err != nil {
		t.Fatal(err)
	}

	p["severity"] = "critical" // caller mutates its own map afterwards
	if e.Payload["severity"] != "info" {
		t.Error("stored payload aliased the caller's map")
	}
	if cerr := ledger.VerifyOne(e, ledger.GenesisHash); cerr != nil {
		t.Errorf("entry no longer verifies: %v", cerr)
	}
}

func TestMemoryGet_notFound(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)
	_, _ = s.Append(ctx, draft("login"))

	for _, seq := range []uint64{0, 2, 999} {
		if _, err := s.Get(ctx, seq); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("Get(%d): expected ErrNotFound, got %v", seq, err)
		}
	}
}

func TestMemoryRange_clampsAndOrders(t *testing.T) {
	s := ledger.NewMemoryStore(ledger.SubjectAuditEvent)
	for i := 0; i < 5; i++ {
		_, _ = s.Append(ctx, draft("access"))
	}

	entries, err := s.Range(ctx, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Sequence != uint64(i+1) {
			t.Errorf("position %d: sequence %d, want ascending from 1", i, e.Sequence)
		}
	}

	empty, err := s.Range(ctx, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("inverted range: expected empty, got %d entries", len(empty))
	}
}
