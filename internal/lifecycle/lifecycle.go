// Package lifecycle implements the carbon-credit status state machine on top
// of the ledger. Every accepted transition is a credit_lifecycle ledger entry;
// the current status of a credit is always reconstructed from the chain, never
// stored separately, so the view cannot drift from the ledger.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/internal/ledger"
	"go.uber.org/zap"
)

// Credit statuses, in lifecycle order. Retired is terminal.
const (
	StatusIssued   = "issued"
	StatusVerified = "verified"
	StatusSold     = "sold"
	StatusRetired  = "retired"
)

// ActionOverride is the distinct action recorded for an administrative
// override. It forces a credit to retired from any state and is excluded from
// the normal forward-walk invariant, but is fully logged like any other entry.
const ActionOverride = "override"

// validTransitions holds the forward edges of the lifecycle chain: from -> to.
var validTransitions = map[string]string{
	StatusIssued:   StatusVerified,
	StatusVerified: StatusSold,
	StatusSold:     StatusRetired,
}

// InvalidTransitionError rejects a lifecycle request before anything is
// written. CurrentStatus is empty when the credit has never been issued.
type InvalidTransitionError struct {
	CreditID      string
	CurrentStatus string
	Requested     string
}

func (e *InvalidTransitionError) Error() string {
	if e.CurrentStatus == "" {
		return fmt.Sprintf("credit %s: cannot transition to %q before issuance", e.CreditID, e.Requested)
	}
	return fmt.Sprintf("credit %s: invalid transition %s -> %s", e.CreditID, e.CurrentStatus, e.Requested)
}

// CreditSubject is the derived view of one credit: its current status and the
// ledger entries that produced it, in sequence order. Recomputed on demand.
type CreditSubject struct {
	CreditID      string          `json:"credit_id"`
	CurrentStatus string          `json:"current_status"`
	Entries       []*ledger.Entry `json:"entries"`
}

// Service validates and records credit lifecycle transitions.
type Service struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewService creates a lifecycle Service writing to the given
// credit_lifecycle ledger store.
func NewService(store ledger.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Transition moves a credit to newStatus. Only the forward edges
// issued -> verified -> sold -> retired are accepted; a skip, repeat, or
// backward request fails with InvalidTransitionError and writes nothing.
// Validation always happens before the append.
func (s *Service) Transition(ctx context.Context, creditID, newStatus string, actor identity.Actor, metadata map[string]string) (*ledger.Entry, error) {
	if creditID == "" {
		return nil, &ledger.ValidationError{Field: "credit_id", Detail: "credit id is required"}
	}
	if !isStatus(newStatus) {
		return nil, &ledger.ValidationError{Field: "status", Detail: fmt.Sprintf("unknown status %q", newStatus)}
	}
	if !identity.Allowed(actor.Role, identity.CapTransitionCredit) {
		return nil, identity.ErrForbidden
	}

	current, err := s.currentStatus(ctx, creditID)
	if err != nil {
		return nil, err
	}

	switch {
	case current == "" && newStatus == StatusIssued:
		// First entry for this credit.
	case current != "" && validTransitions[current] == newStatus:
		// Forward edge.
	default:
		return nil, &InvalidTransitionError{CreditID: creditID, CurrentStatus: current, Requested: newStatus}
	}

	return s.append(ctx, creditID, newStatus, newStatus, actor, metadata)
}

// Override force-retires a credit from any state. The entry's action is
// ActionOverride rather than a status, so audits can always distinguish it
// from a normal retirement. A reason is mandatory and admin capability is
// enforced server-side regardless of what a dashboard disables.
func (s *Service) Override(ctx context.Context, creditID, reason string, actor identity.Actor, metadata map[string]string) (*ledger.Entry, error) {
	if creditID == "" {
		return nil, &ledger.ValidationError{Field: "credit_id", Detail: "credit id is required"}
	}
	if reason == "" {
		return nil, &ledger.ValidationError{Field: "reason", Detail: "override reason is required"}
	}
	if !identity.Allowed(actor.Role, identity.CapOverrideCredit) {
		return nil, identity.ErrForbidden
	}

	current, err := s.currentStatus(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if current == "" {
		return nil, &InvalidTransitionError{CreditID: creditID, Requested: ActionOverride}
	}
	if current == StatusRetired {
		return nil, &InvalidTransitionError{CreditID: creditID, CurrentStatus: current, Requested: ActionOverride}
	}

	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["reason"] = reason
	return s.append(ctx, creditID, ActionOverride, StatusRetired, actor, md)
}

// History reconstructs the CreditSubject view for one credit by filtering the
// ledger on its id. Returns ledger.ErrNotFound for a credit with no entries.
func (s *Service) History(ctx context.Context, creditID string) (*CreditSubject, error) {
	entries, err := s.creditEntries(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ledger.ErrNotFound
	}
	return &CreditSubject{
		CreditID:      creditID,
		CurrentStatus: statusOf(entries[len(entries)-1]),
		Entries:       entries,
	}, nil
}

func (s *Service) append(ctx context.Context, creditID, action, status string, actor identity.Actor, metadata map[string]string) (*ledger.Entry, error) {
	payload := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["status"] = status

	entry, err := s.store.Append(ctx, ledger.Draft{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Resource:  creditID,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("credit transition recorded",
		zap.String("credit_id", creditID),
		zap.String("action", action),
		zap.Uint64("seq", entry.Sequence),
	)
	return entry, nil
}

// currentStatus returns the status after the most recent entry for creditID,
// or "" when the credit has never been issued.
func (s *Service) currentStatus(ctx context.Context, creditID string) (string, error) {
	entries, err := s.creditEntries(ctx, creditID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return statusOf(entries[len(entries)-1]), nil
}

func (s *Service) creditEntries(ctx context.Context, creditID string) ([]*ledger.Entry, error) {
	head, err := s.store.Head(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.store.Range(ctx, 1, head)
	if err != nil {
		return nil, err
	}
	var out []*ledger.Entry
	for _, e := range all {
		if e.Resource == creditID {
			out = append(out, e)
		}
	}
	return out, nil
}

// statusOf maps an entry to the credit status it left behind: the recorded
// status payload for overrides, the action itself otherwise.
func statusOf(e *ledger.Entry) string {
	if e.Action == ActionOverride {
		return StatusRetired
	}
	return e.Action
}

func isStatus(s string) bool {
	switch s {
	case StatusIssued, StatusVerified, StatusSold, StatusRetired:
		return true
	}
	return false
}
