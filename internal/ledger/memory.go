package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do not
// require durable persistence across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	subject SubjectType
	entries []*Entry
}

// NewMemoryStore creates an empty MemoryStore recording the given subject type.
func NewMemoryStore(subject SubjectType) *MemoryStore {
	return &MemoryStore{subject: subject}
}

// Append implements Store. Appends are serialized under the write lock, so
// sequence numbers are contiguous and the chain link is always the true
// predecessor.
func (s *MemoryStore) Append(_ context.Context, draft Draft) (*Entry, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := GenesisHash
	if n := len(s.entries); n > 0 {
		prevHash = s.entries[n-1].Hash
	}

	entry := &Entry{
		Sequence:    uint64(len(s.entries)) + 1,
		SubjectType: s.subject,
		Timestamp:   appendTime(),
		ActorID:     draft.ActorID,
		ActorRole:   draft.ActorRole,
		Action:      draft.Action,
		Resource:    draft.Resource,
		Payload:     clonePayload(draft.Payload),
		PrevHash:    prevHash,
	}
	entry.Hash = ComputeHash(entry)
	s.entries = append(s.entries, entry)
	return entry, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, seq uint64) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 1 || seq > uint64(len(s.entries)) {
		return nil, ErrNotFound
	}
	return s.entries[seq-1], nil
}

// Range implements Store.
func (s *MemoryStore) Range(_ context.Context, from, to uint64) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from < 1 {
		from = 1
	}
	if to > uint64(len(s.entries)) {
		to = uint64(len(s.entries))
	}
	if from > to {
		return nil, nil
	}
	out := make([]*Entry, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		out = append(out, s.entries[seq-1])
	}
	return out, nil
}

// Head implements Store.
func (s *MemoryStore) Head(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

// Subject implements Store.
func (s *MemoryStore) Subject() SubjectType {
	return s.subject
}

// Tamper overwrites the stored entry at seq in place. Only for integrity
// tests: it simulates storage-level modification that the chain must detect.
func (s *MemoryStore) Tamper(seq uint64, mutate func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq >= 1 && seq <= uint64(len(s.entries)) {
		cp := *s.entries[seq-1]
		cp.Payload = clonePayload(cp.Payload)
		mutate(&cp)
		s.entries[seq-1] = &cp
	}
}

func clonePayload(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
