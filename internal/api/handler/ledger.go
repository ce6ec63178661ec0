package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/carbonledger/internal/ledger"
	"go.uber.org/zap"
)

const maxPageLimit = 500

// LedgerHandler exposes read and verification endpoints over the ledgers.
// The audit trail and the credit lifecycle ledger are independent chains; the
// subject_type query parameter selects one (default: audit_event).
type LedgerHandler struct {
	stores map[ledger.SubjectType]ledger.Store
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler over the given stores.
func NewLedgerHandler(stores map[ledger.SubjectType]ledger.Store, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{stores: stores, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/ledger", h.Overview)
	rg.GET("/entries", h.QueryEntries)
	rg.GET("/entries/:seq", h.GetEntry)
	rg.GET("/entries/:seq/verify", h.VerifyEntry)
	rg.GET("/verify", h.VerifyRange)
}

// pickStore resolves the subject_type query parameter to a store.
func (h *LedgerHandler) pickStore(c *gin.Context) (ledger.Store, bool) {
	subject := ledger.SubjectType(c.DefaultQuery("subject_type", string(ledger.SubjectAuditEvent)))
	store, ok := h.stores[subject]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown subject_type"})
		return nil, false
	}
	return store, true
}

// Overview handles GET /ledger — chain length and current root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	store, ok := h.pickStore(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	head, err := store.Head(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	root := ledger.GenesisHash
	if head > 0 {
		tip, err := store.Get(ctx, head)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		root = tip.Hash
	}

	c.JSON(http.StatusOK, gin.H{
		"subject_type": store.Subject(),
		"entries":      head,
		"root":         root,
	})
}

// QueryEntries handles GET /entries — filter, paginate, and aggregate.
func (h *LedgerHandler) QueryEntries(c *gin.Context) {
	store, ok := h.pickStore(c)
	if !ok {
		return
	}

	filter, page, limit, err := parseQuery(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := ledger.Query(c.Request.Context(), store, filter, page, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetEntry handles GET /entries/:seq — a single entry.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	store, ok := h.pickStore(c)
	if !ok {
		return
	}
	seq, ok := parseSeq(c, c.Param("seq"))
	if !ok {
		return
	}

	entry, err := store.Get(c.Request.Context(), seq)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// VerifyEntry handles GET /entries/:seq/verify — recompute one entry's hash
// against its stored predecessor.
func (h *LedgerHandler) VerifyEntry(c *gin.Context) {
	store, ok := h.pickStore(c)
	if !ok {
		return
	}
	seq, ok := parseSeq(c, c.Param("seq"))
	if !ok {
		return
	}

	result, err := ledger.NewVerifier(store).VerifyEntry(c.Request.Context(), seq)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordVerification(result.Valid)
	c.JSON(http.StatusOK, result)
}

// VerifyRange handles GET /verify — walk the chain over [from, to]. Defaults
// cover the whole ledger up to the current head, never just a visible page.
func (h *LedgerHandler) VerifyRange(c *gin.Context) {
	store, ok := h.pickStore(c)
	if !ok {
		return
	}

	from := uint64(1)
	to := uint64(0)
	if s := c.Query("from"); s != "" {
		v, ok := parseSeq(c, s)
		if !ok {
			return
		}
		from = v
	}
	if s := c.Query("to"); s != "" {
		v, ok := parseSeq(c, s)
		if !ok {
			return
		}
		to = v
	}

	result, err := ledger.NewVerifier(store).VerifyRange(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !result.Valid && !result.Partial {
		h.logger.Warn("ledger integrity check failed",
			zap.String("subject_type", string(store.Subject())),
			zap.Uint64("broken_at", result.BrokenAt),
			zap.String("reason", string(result.Reason)),
		)
	}
	RecordVerification(result.Valid)
	c.JSON(http.StatusOK, result)
}

func parseSeq(c *gin.Context, s string) (uint64, bool) {
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil || seq < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sequence must be a positive integer"})
		return 0, false
	}
	return seq, true
}

// parseQuery extracts the common filter/pagination parameters.
func parseQuery(c *gin.Context) (ledger.Filter, int, int, error) {
	filter := ledger.Filter{
		Search:   c.Query("search"),
		Action:   c.Query("action"),
		Severity: c.Query("severity"),
		Status:   c.Query("status"),
		Resource: c.Query("resource"),
	}

	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, 0, 0, &ledger.ValidationError{Field: "from", Detail: "must be RFC3339"}
		}
		filter.From = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, 0, 0, &ledger.ValidationError{Field: "to", Detail: "must be RFC3339"}
		}
		filter.To = t
	}

	page := 1
	if s := c.Query("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return filter, 0, 0, &ledger.ValidationError{Field: "page", Detail: "must be a positive integer"}
		}
		page = v
	}

	limit := ledger.DefaultPageLimit
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxPageLimit {
			return filter, 0, 0, &ledger.ValidationError{Field: "limit", Detail: "must be between 1 and 500"}
		}
		limit = v
	}

	return filter, page, limit, nil
}
