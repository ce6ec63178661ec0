package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/carbonledger/internal/api/handler"
	"github.com/verdantio/carbonledger/internal/auditlog"
	"github.com/verdantio/carbonledger/internal/ledger"
	"github.com/verdantio/carbonledger/internal/lifecycle"
	"go.uber.org/zap"
)

var ctxBackground = context.Background()

// testEnv wires the full handler surface over in-memory stores, with a nil
// token verifier so actors come from X-Actor-ID / X-Actor-Role headers.
type testEnv struct {
	router      *gin.Engine
	auditStore  *ledger.MemoryStore
	creditStore *ledger.MemoryStore
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auditStore := ledger.NewMemoryStore(ledger.SubjectAuditEvent)
	creditStore := ledger.NewMemoryStore(ledger.SubjectCreditLifecycle)
	stores := map[ledger.SubjectType]ledger.Store{
		ledger.SubjectAuditEvent:      auditStore,
		ledger.SubjectCreditLifecycle: creditStore,
	}

	logger := zap.NewNop()
	auditSvc := auditlog.NewService(auditStore, logger)
	lifecycleSvc := lifecycle.NewService(creditStore, logger)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuditHandler(auditSvc, nil, logger).Register(v1)
	handler.NewCreditHandler(lifecycleSvc, nil, logger).Register(v1)
	handler.NewLedgerHandler(stores, logger).Register(v1)
	handler.NewExportHandler(stores, auditSvc, nil, logger).Register(v1)

	return &testEnv{router: r, auditStore: auditStore, creditStore: creditStore}
}

// do executes a request with actor headers attached.
func (env *testEnv) do(method, path, body, actorID, actorRole string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
		req.Header.Set("X-Actor-Role", actorRole)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) get(path string) *httptest.ResponseRecorder {
	return env.do(http.MethodGet, path, "", "", "")
}
