package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/internal/lifecycle"
	"go.uber.org/zap"
)

// CreditHandler exposes the carbon-credit lifecycle endpoints.
type CreditHandler struct {
	svc      *lifecycle.Service
	verifier *identity.TokenVerifier // nil = dev mode, actor from headers
	logger   *zap.Logger
}

// NewCreditHandler creates a CreditHandler. verifier may be nil to accept
// actor headers instead of bearer tokens (development only).
func NewCreditHandler(svc *lifecycle.Service, verifier *identity.TokenVerifier, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{svc: svc, verifier: verifier, logger: logger}
}

// Register mounts the credit routes on the given router group.
func (h *CreditHandler) Register(rg *gin.RouterGroup) {
	credits := rg.Group("/credits")
	{
		credits.GET("/:id", h.GetCredit)
		credits.POST("/:id/transition", identity.RequireActor(h.verifier), h.Transition)
	}
}

type transitionRequest struct {
	Status   string            `json:"status"`
	Override bool              `json:"override"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata"`
}

// Transition handles POST /credits/:id/transition. A normal request carries
// the target status; an override request sets override=true with a reason and
// force-retires the credit.
func (h *CreditHandler) Transition(c *gin.Context) {
	actor, ok := identity.ActorFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "actor required"})
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	creditID := c.Param("id")
	ctx := c.Request.Context()

	var entry any
	var err error
	if req.Override {
		entry, err = h.svc.Override(ctx, creditID, req.Reason, actor, req.Metadata)
	} else {
		entry, err = h.svc.Transition(ctx, creditID, req.Status, actor, req.Metadata)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordAppend("credit_lifecycle")
	c.JSON(http.StatusCreated, entry)
}

// GetCredit handles GET /credits/:id — the reconstructed lifecycle view.
func (h *CreditHandler) GetCredit(c *gin.Context) {
	subject, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, subject)
}
