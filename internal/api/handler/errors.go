package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/carbonledger/internal/identity"
	"github.com/verdantio/carbonledger/internal/ledger"
	"github.com/verdantio/carbonledger/internal/lifecycle"
	"go.uber.org/zap"
)

// respondError maps service errors onto HTTP status codes. Chain integrity
// failures never come through here: verification outcomes are results, not
// transport errors.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		return
	}

	var terr *lifecycle.InvalidTransitionError
	if errors.As(err, &terr) {
		c.JSON(http.StatusConflict, gin.H{"error": terr.Error()})
		return
	}

	switch {
	case errors.Is(err, identity.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "role not permitted for this operation"})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger busy, retry"})
	default:
		logger.Error("internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
