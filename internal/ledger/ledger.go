// Package ledger implements the tamper-evident hash-chain ledger backing the
// carbon-credit platform's audit trail and credit lifecycle history.
//
// Every entry carries the SHA-256 of its own canonical serialization chained
// to its predecessor's hash, so any retroactive edit, reorder, or deletion is
// detectable via the Verifier. The chain starts at sequence 1; the first
// entry's PrevHash is the well-known GenesisHash constant (64 hex zeros).
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - PostgresStore: durable, for production use.
package ledger

import "context"

// Store is the append-only ordered storage primitive for one ledger instance.
// A Store holds exactly one chain: entries of a single SubjectType with
// contiguous sequence numbers starting at 1. Entries are immutable once
// appended; reads require no locking.
type Store interface {
	// Append assigns the next sequence number, stamps the append time,
	// computes the chain hash, and persists the completed entry atomically.
	// Concurrent callers never receive the same sequence number.
	Append(ctx context.Context, draft Draft) (*Entry, error)

	// Get returns the entry at the given sequence, or ErrNotFound.
	Get(ctx context.Context, seq uint64) (*Entry, error)

	// Range returns the entries with sequence in [from, to] inclusive, in
	// ascending order. Sequences absent from storage are simply omitted;
	// gap detection is the Verifier's job.
	Range(ctx context.Context, from, to uint64) ([]*Entry, error)

	// Head returns the highest assigned sequence number, or 0 for an
	// empty ledger.
	Head(ctx context.Context) (uint64, error)

	// Subject returns the subject type this store's chain records.
	Subject() SubjectType
}
