package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func transition(env *testEnv, creditID, status, actorID, role string) int {
	w := env.do(http.MethodPost, "/api/v1/credits/"+creditID+"/transition",
		`{"status":"`+status+`"}`, actorID, role)
	return w.Code
}

func TestCreditTransition_201_fullWalk(t *testing.T) {
	env := setup(t)

	for _, status := range []string{"issued", "verified", "sold", "retired"} {
		if code := transition(env, "CC-2024-001234", status, "registry-sync", "system"); code != http.StatusCreated {
			t.Fatalf("transition to %s: expected 201, got %d", status, code)
		}
	}

	w := env.get("/api/v1/credits/CC-2024-001234")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		CurrentStatus string `json:"current_status"`
		Entries       []any  `json:"entries"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.CurrentStatus != "retired" {
		t.Errorf("current status: got %q, want retired", resp.CurrentStatus)
	}
	if len(resp.Entries) != 4 {
		t.Errorf("expected 4 lifecycle entries, got %d", len(resp.Entries))
	}
}

func TestCreditTransition_409_skipWritesNothing(t *testing.T) {
	env := setup(t)
	if code := transition(env, "CC-1", "issued", "registry-sync", "system"); code != http.StatusCreated {
		t.Fatal("issuance failed")
	}

	// issued -> sold skips verified.
	if code := transition(env, "CC-1", "sold", "registry-sync", "system"); code != http.StatusConflict {
		t.Fatalf("expected 409 for skipped status, got %d", code)
	}

	// The rejected attempt left no trace: the credit still shows only issuance.
	w := env.get("/api/v1/credits/CC-1")
	var resp struct {
		CurrentStatus string `json:"current_status"`
		Entries       []any  `json:"entries"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.CurrentStatus != "issued" {
		t.Errorf("current status: got %q, want issued", resp.CurrentStatus)
	}
	if len(resp.Entries) != 1 {
		t.Errorf("expected 1 entry after rejected skip, got %d", len(resp.Entries))
	}
}

func TestCreditTransition_409_beforeIssuance(t *testing.T) {
	env := setup(t)

	if code := transition(env, "CC-1", "verified", "registry-sync", "system"); code != http.StatusConflict {
		t.Fatalf("expected 409 for unissued credit, got %d", code)
	}
}

func TestCreditTransition_400_unknownStatus(t *testing.T) {
	env := setup(t)

	if code := transition(env, "CC-1", "recycled", "registry-sync", "system"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestCreditTransition_403_roleNotPermitted(t *testing.T) {
	env := setup(t)

	if code := transition(env, "CC-1", "issued", "watch@rainforest.org", "ngo"); code != http.StatusForbidden {
		t.Fatalf("expected 403 for ngo role, got %d", code)
	}
}

func TestCreditOverride_201_adminOnly(t *testing.T) {
	env := setup(t)
	transition(env, "CC-1", "issued", "registry-sync", "system")

	body := `{"override":true,"reason":"duplicate issuance detected"}`

	// The system role can transition but not override.
	w := env.do(http.MethodPost, "/api/v1/credits/CC-1/transition", body, "registry-sync", "system")
	if w.Code != http.StatusForbidden {
		t.Fatalf("system override: expected 403, got %d", w.Code)
	}

	w = env.do(http.MethodPost, "/api/v1/credits/CC-1/transition", body, "admin@verdant.io", "admin")
	if w.Code != http.StatusCreated {
		t.Fatalf("admin override: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var entry struct {
		Action  string            `json:"action"`
		Payload map[string]string `json:"payload"`
	}
	json.Unmarshal(w.Body.Bytes(), &entry)
	if entry.Action != "override" {
		t.Errorf("action: got %q, want override", entry.Action)
	}
	if entry.Payload["reason"] != "duplicate issuance detected" {
		t.Errorf("reason not on record: %v", entry.Payload)
	}
}

func TestCreditOverride_400_missingReason(t *testing.T) {
	env := setup(t)
	transition(env, "CC-1", "issued", "registry-sync", "system")

	w := env.do(http.MethodPost, "/api/v1/credits/CC-1/transition",
		`{"override":true}`, "admin@verdant.io", "admin")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetCredit_404_unknown(t *testing.T) {
	env := setup(t)

	w := env.get("/api/v1/credits/CC-nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
