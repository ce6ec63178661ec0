package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/carbonledger/internal/auditlog"
	"github.com/verdantio/carbonledger/internal/identity"
	"go.uber.org/zap"
)

// AuditHandler exposes the audit trail's write endpoint.
type AuditHandler struct {
	svc      *auditlog.Service
	verifier *identity.TokenVerifier // nil = dev mode, actor from headers
	logger   *zap.Logger
}

// NewAuditHandler creates an AuditHandler. verifier may be nil to accept
// actor headers instead of bearer tokens (development only).
func NewAuditHandler(svc *auditlog.Service, verifier *identity.TokenVerifier, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{svc: svc, verifier: verifier, logger: logger}
}

// Register mounts the audit routes on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/audit/events", identity.RequireActor(h.verifier), h.AppendEvent)
}

type appendEventRequest struct {
	Action   string            `json:"action" binding:"required"`
	Resource string            `json:"resource"`
	Details  string            `json:"details"`
	Severity string            `json:"severity"`
	Metadata map[string]string `json:"metadata"`
}

// AppendEvent handles POST /audit/events.
func (h *AuditHandler) AppendEvent(c *gin.Context) {
	actor, ok := identity.ActorFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "actor required"})
		return
	}

	var req appendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	entry, err := h.svc.Append(c.Request.Context(), actor, auditlog.Event{
		Action:   req.Action,
		Resource: req.Resource,
		Details:  req.Details,
		Severity: req.Severity,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordAppend(string(entry.SubjectType))
	c.JSON(http.StatusCreated, entry)
}
