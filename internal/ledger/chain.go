package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// GenesisHash is the well-known PrevHash of the first entry in every chain
// (64 hex zeros). It is the trust anchor: all subsequent entry hashes chain
// from this constant.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Canonicalize produces the deterministic byte serialization an entry's hash
// is computed over: fixed field order, %q-quoted strings, RFC3339Nano UTC
// timestamps, payload keys in lexicographic order. Identical logical content
// always yields identical bytes, so independent verification runs reproduce
// the stored hash exactly.
func Canonicalize(e *Entry) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d|%s|%s|%q|%q|%q|%q|",
		e.Sequence, e.SubjectType,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.ActorID, e.ActorRole, e.Action, e.Resource,
	)
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%q=%q;", k, e.Payload[k])
	}
	fmt.Fprintf(&b, "|%s", e.PrevHash)
	return b.Bytes()
}

// ComputeHash returns the hex-encoded SHA-256 of the entry's canonical form.
// The canonical form includes PrevHash, which is what links the chain.
func ComputeHash(e *Entry) string {
	sum := sha256.Sum256(Canonicalize(e))
	return hex.EncodeToString(sum[:])
}

// Reason classifies a chain integrity failure.
type Reason string

const (
	// ReasonContentTampered means the stored hash does not match the hash
	// recomputed from the entry's own stored fields: the entry was altered.
	ReasonContentTampered Reason = "ContentTampered"

	// ReasonLinkBroken means the entry's PrevHash does not match the true
	// predecessor's hash: an entry was removed, reordered, or relinked.
	ReasonLinkBroken Reason = "LinkBroken"

	// ReasonMissingEntry means a sequence number expected in the chain is
	// absent from storage.
	ReasonMissingEntry Reason = "MissingEntry"
)

// ChainIntegrityError reports a verification failure at a specific sequence.
// Integrity failures are never auto-corrected; the ledger is only ever
// appended to.
type ChainIntegrityError struct {
	Sequence uint64
	Reason   Reason
	Detail   string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at sequence %d: %s (%s)", e.Sequence, e.Reason, e.Detail)
}

// VerifyOne checks a single entry against its own content and against the
// true predecessor hash. The two checks are independent: a ContentTampered
// entry is reported as such even when its link field is intact, and vice
// versa. Returns nil when the entry is sound.
func VerifyOne(e *Entry, expectedPrev string) *ChainIntegrityError {
	if got := ComputeHash(e); got != e.Hash {
		return &ChainIntegrityError{
			Sequence: e.Sequence,
			Reason:   ReasonContentTampered,
			Detail:   fmt.Sprintf("stored hash %s, recomputed %s", e.Hash, got),
		}
	}
	if e.PrevHash != expectedPrev {
		return &ChainIntegrityError{
			Sequence: e.Sequence,
			Reason:   ReasonLinkBroken,
			Detail:   fmt.Sprintf("previous_hash %s, predecessor hash %s", e.PrevHash, expectedPrev),
		}
	}
	return nil
}
