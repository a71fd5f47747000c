package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/provenancekit/fossilforest/internal/ledger"
)

// LedgerHandler exposes read-only HTTP endpoints for the hash-chain ledger.
type LedgerHandler struct {
	ledger ledger.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l ledger.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	lg := rg.Group("/ledger")
	{
		lg.GET("", h.Overview)
		lg.GET("/verify", h.Verify)
		lg.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /ledger — chain length and current tip hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	root, err := h.ledger.Root(ctx)
	if err != nil {
		h.logger.Error("ledger Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /ledger/verify — replays the full chain and reports
// integrity. A broken chain is reported, never silently recovered.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.ledger.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetEntry handles GET /ledger/entries/:idx — returns a single record.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	idxStr := c.Param("idx")
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	rec, err := h.ledger.Get(c.Request.Context(), idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no entry at that index"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
