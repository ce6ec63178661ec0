// Package auditlog is the write facade for the security audit trail. It
// validates events and enforces the capability check before anything reaches
// the ledger; a rejected event never produces a partial write.
package auditlog

import (
	"context"
	"fmt"

	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/internal/ledger"
	"go.uber.org/zap"
)

// Audit event actions accepted by the trail.
const (
	ActionLogin            = "login"
	ActionCreate           = "create"
	ActionUpdate           = "update"
	ActionDelete           = "delete"
	ActionAccess           = "access"
	ActionPermissionChange = "permission_change"
	ActionSecurityEvent    = "security_event"
	ActionDataExport       = "data_export"
	ActionPasswordChange   = "password_change"
	ActionRoleChange       = "role_change"
	ActionSuspension       = "suspension"
)

var validActions = map[string]bool{
	ActionLogin:            true,
	ActionCreate:           true,
	ActionUpdate:           true,
	ActionDelete:           true,
	ActionAccess:           true,
	ActionPermissionChange: true,
	ActionSecurityEvent:    true,
	ActionDataExport:       true,
	ActionPasswordChange:   true,
	ActionRoleChange:       true,
	ActionSuspension:       true,
}

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

var validSeverities = map[string]bool{
	SeverityInfo:     true,
	SeverityWarning:  true,
	SeverityCritical: true,
}

// Event is one audit event to record.
type Event struct {
	Action   string
	Resource string
	Details  string
	Severity string
	Metadata map[string]string
}

// Service appends audit events to the audit_event ledger.
type Service struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewService creates an audit Service writing to the given audit_event
// ledger store.
func NewService(store ledger.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Append validates and records one audit event, returning the completed
// ledger entry.
func (s *Service) Append(ctx context.Context, actor identity.Actor, ev Event) (*ledger.Entry, error) {
	if !validActions[ev.Action] {
		return nil, &ledger.ValidationError{Field: "action", Detail: fmt.Sprintf("unknown audit action %q", ev.Action)}
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if !validSeverities[ev.Severity] {
		return nil, &ledger.ValidationError{Field: "severity", Detail: fmt.Sprintf("unknown severity %q", ev.Severity)}
	}
	if !identity.Allowed(actor.Role, identity.CapAppendAudit) {
		return nil, identity.ErrForbidden
	}

	payload := make(map[string]string, len(ev.Metadata)+2)
	for k, v := range ev.Metadata {
		payload[k] = v
	}
	payload["severity"] = ev.Severity
	if ev.Details != "" {
		payload["details"] = ev.Details
	}

	entry, err := s.store.Append(ctx, ledger.Draft{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    ev.Action,
		Resource:  ev.Resource,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("audit event recorded",
		zap.String("action", ev.Action),
		zap.String("actor", actor.ID),
		zap.Uint64("seq", entry.Sequence),
	)
	return entry, nil
}
