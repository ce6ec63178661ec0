package auditlog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/verdantio/carbonledger/internal/auditlog"
	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/internal/ledger"
	"go.uber.org/zap"
)

var (
	ctx   = context.Background()
	admin = identity.Actor{ID: "admin@verdant.io", Role: identity.RoleAdmin}
)

func newService(t *testing.T) (*auditlog.Service, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore(ledger.SubjectAuditEvent)
	return auditlog.NewService(store, zap.NewNop()), store
}

func TestAppend_recordsEvent(t *testing.T) {
	svc, _ := newService(t)

	entry, err := svc.Append(ctx, admin, auditlog.Event{
		Action:   auditlog.ActionLogin,
		Resource: "session/abc",
		Details:  "admin console login",
		Severity: auditlog.SeverityWarning,
		Metadata: map[string]string{"ip": "203.0.113.7"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if entry.Action != auditlog.ActionLogin {
		t.Errorf("action: got %q", entry.Action)
	}
	if entry.ActorID != admin.ID || entry.ActorRole != admin.Role {
		t.Errorf("actor: got %s/%s", entry.ActorID, entry.ActorRole)
	}
	if entry.Payload["severity"] != auditlog.SeverityWarning {
		t.Errorf("severity: got %q", entry.Payload["severity"])
	}
	if entry.Payload["details"] != "admin console login" {
		t.Errorf("details: got %q", entry.Payload["details"])
	}
	if entry.Payload["ip"] != "203.0.113.7" {
		t.Errorf("metadata: got %v", entry.Payload)
	}
}

func TestAppend_defaultsSeverityToInfo(t *testing.T) {
	svc, _ := newService(t)

	entry, err := svc.Append(ctx, admin, auditlog.Event{Action: auditlog.ActionAccess})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Payload["severity"] != auditlog.SeverityInfo {
		t.Errorf("severity: got %q, want info", entry.Payload["severity"])
	}
}

func TestAppend_rejectsUnknownAction(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.Append(ctx, admin, auditlog.Event{Action: "reboot"})
	var verr *ledger.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if head, _ := store.Head(ctx); head != 0 {
		t.Errorf("rejected event appended an entry, head=%d", head)
	}
}

func TestAppend_rejectsUnknownSeverity(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Append(ctx, admin, auditlog.Event{Action: auditlog.ActionLogin, Severity: "fatal"})
	var verr *ledger.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestAppend_requiresCapability(t *testing.T) {
	svc, _ := newService(t)

	unknown := identity.Actor{ID: "someone", Role: "auditor"}
	_, err := svc.Append(ctx, unknown, auditlog.Event{Action: auditlog.ActionLogin})
	if !errors.Is(err, identity.ErrForbidden) {
		t.Errorf("expected ErrForbidden for unknown role, got %v", err)
	}
}

func TestAppend_allPlatformRolesMayWrite(t *testing.T) {
	svc, _ := newService(t)

	for _, role := range []string{identity.RoleAdmin, identity.RoleCorporate, identity.RoleNGO, identity.RoleSystem} {
		actor := identity.Actor{ID: "actor@" + role, Role: role}
		if _, err := svc.Append(ctx, actor, auditlog.Event{Action: auditlog.ActionAccess}); err != nil {
			t.Errorf("role %s: %v", role, err)
		}
	}
}
