package handler

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"

	"docxingest/internal/domain"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LedgerLookup reads committed entries.
type LedgerLookup interface {
	Get(ctx context.Context, hash string) (*domain.LedgerEntry, error)
}

// LedgerHandler answers whether a content hash was committed.
type LedgerHandler struct {
	ledger LedgerLookup
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger LedgerLookup) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Get handles GET /api/v1/ledger/:hash
// @Summary      Look up a content hash
// @Description  Returns the ledger entry for a committed document
// @Tags         ledger
// @Produce      json
// @Param        hash path string true "sha256 of the document bytes"
// @Success      200 {object} APIResponse{data=domain.LedgerEntry}
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Failure      404 {object} APIResponse
// @Security     BearerAuth
// @Router       /ledger/{hash} [get]
func (h *LedgerHandler) Get(c *gin.Context) {
	hash := c.Param("hash")
	if !hashPattern.MatchString(hash) {
		HandleError(c, domain.ErrInvalidHash)
		return
	}

	entry, err := h.ledger.Get(c.Request.Context(), hash)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, entry)
}
