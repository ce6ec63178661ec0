package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/carbonledger/internal/auditlog"
	"github.com/verdantio/carbonledger/internal/export"
	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/internal/ledger"
	"go.uber.org/zap"
)

// ExportHandler streams filtered ledger entries as CSV or JSON. Each export
// is itself recorded in the audit trail as a data_export event.
type ExportHandler struct {
	stores   map[ledger.SubjectType]ledger.Store
	audit    *auditlog.Service
	verifier *identity.TokenVerifier
	logger   *zap.Logger
}

// NewExportHandler creates an ExportHandler over the given stores.
func NewExportHandler(stores map[ledger.SubjectType]ledger.Store, audit *auditlog.Service, verifier *identity.TokenVerifier, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{stores: stores, audit: audit, verifier: verifier, logger: logger}
}

// Register mounts the export route on the given router group.
func (h *ExportHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/export", identity.RequireActor(h.verifier), h.Export)
}

// Export handles GET /export — runs the query engine unbounded and
// serializes the full filtered set.
func (h *ExportHandler) Export(c *gin.Context) {
	actor, ok := identity.ActorFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "actor required"})
		return
	}

	subject := ledger.SubjectType(c.DefaultQuery("subject_type", string(ledger.SubjectAuditEvent)))
	store, found := h.stores[subject]
	if !found {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown subject_type"})
		return
	}

	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	filter, _, _, err := parseQuery(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	result, err := ledger.Query(ctx, store, filter, 1, 0)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	filename := fmt.Sprintf("carbonledger-%s-%s.%s", subject, time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := export.Write(c.Writer, result.Entries, format); err != nil {
		h.logger.Error("export write failed", zap.Error(err))
		return
	}

	// The export itself goes on the record.
	if _, err := h.audit.Append(ctx, actor, auditlog.Event{
		Action:   auditlog.ActionDataExport,
		Resource: string(subject),
		Details:  fmt.Sprintf("exported %d entries as %s", len(result.Entries), format),
		Severity: auditlog.SeverityInfo,
	}); err != nil {
		h.logger.Warn("failed to record export audit event", zap.Error(err))
	}
}
