package ledger

import (
	"time"
)

// SubjectType partitions the chains: the security audit trail and the carbon
// credit lifecycle ledger are independent instances of the same engine.
type SubjectType string

const (
	SubjectAuditEvent      SubjectType = "audit_event"
	SubjectCreditLifecycle SubjectType = "credit_lifecycle"
)

// Entry is a single immutable record in a ledger chain.
//
// Sequence, Timestamp, PrevHash, and Hash are assigned by the Store at append
// time and are never client-supplied. Payload values are carried as strings so
// canonicalization never depends on number formatting.
type Entry struct {
	Sequence    uint64            `json:"sequence"`
	SubjectType SubjectType       `json:"subject_type"`
	Timestamp   time.Time         `json:"timestamp"`
	ActorID     string            `json:"actor_id"`
	ActorRole   string            `json:"actor_role"`
	Action      string            `json:"action"`
	Resource    string            `json:"resource"`
	Payload     map[string]string `json:"payload,omitempty"`
	PrevHash    string            `json:"previous_hash"`
	Hash        string            `json:"hash"`
}

// Draft is the caller-suppliable portion of an entry. The Store fills in
// everything else.
type Draft struct {
	ActorID   string
	ActorRole string
	Action    string
	Resource  string
	Payload   map[string]string
}

// Validate rejects drafts that must never reach storage.
func (d Draft) Validate() error {
	if d.ActorID == "" {
		return &ValidationError{Field: "actor_id", Detail: "actor id is required"}
	}
	if d.Action == "" {
		return &ValidationError{Field: "action", Detail: "action is required"}
	}
	for k := range d.Payload {
		if k == "" {
			return &ValidationError{Field: "payload", Detail: "payload keys must be non-empty"}
		}
	}
	return nil
}

// appendTime returns the timestamp stamped onto new entries. Truncated to
// microseconds so a round-trip through timestamptz storage reproduces the
// exact instant that was hashed.
func appendTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
