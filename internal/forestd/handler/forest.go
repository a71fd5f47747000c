package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/provenancekit/fossilforest/internal/forest"
	"github.com/provenancekit/fossilforest/internal/merkle"
)

// ForestHandler exposes read-only and maintenance HTTP endpoints for the
// Merkle forest. Leaf ingestion is deliberately not exposed here; fossils
// enter the forest through snapshot replay.
type ForestHandler struct {
	forest *forest.Forest
	logger *zap.Logger
}

// NewForestHandler creates a new ForestHandler.
func NewForestHandler(f *forest.Forest, logger *zap.Logger) *ForestHandler {
	return &ForestHandler{forest: f, logger: logger}
}

// Register mounts the forest routes on the given router group.
func (h *ForestHandler) Register(rg *gin.RouterGroup) {
	fg := rg.Group("/forest")
	{
		fg.GET("/roots", h.Roots)
		fg.GET("/threads/:thread/root", h.ThreadRoot)
		fg.GET("/threads/:thread/proof/:leaf", h.ThreadProof)
		fg.POST("/verify", h.Verify)
		fg.DELETE("/threads/:thread", h.PruneThread)
	}
}

// Roots handles GET /forest/roots — a snapshot of every non-empty branch.
func (h *ForestHandler) Roots(c *gin.Context) {
	roots := h.forest.Roots()
	c.JSON(http.StatusOK, gin.H{
		"threads": len(roots),
		"roots":   roots,
	})
}

// ThreadRoot handles GET /forest/threads/:thread/root.
func (h *ForestHandler) ThreadRoot(c *gin.Context) {
	threadID := c.Param("thread")
	root, ok := h.forest.RootFor(threadID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown thread or empty tree"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"thread_id": threadID,
		"root":      root,
	})
}

// ThreadProof handles GET /forest/threads/:thread/proof/:leaf — returns the
// leaf's inclusion proof against the branch's current root. The proof is
// only valid for that root; it must be regenerated after the branch grows.
func (h *ForestHandler) ThreadProof(c *gin.Context) {
	threadID := c.Param("thread")
	leafID := c.Param("leaf")

	proof, root, ok := h.forest.Proof(threadID, leafID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown thread or leaf"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"thread_id": threadID,
		"leaf_id":   leafID,
		"root":      root,
		"proof":     proof,
	})
}

// verifyRequest is the body of POST /forest/verify.
type verifyRequest struct {
	LeafHash string       `json:"leaf_hash" binding:"required"`
	RootHash string       `json:"root_hash" binding:"required"`
	Proof    merkle.Proof `json:"proof"`
}

// Verify handles POST /forest/verify — a pure cryptographic check of an
// inclusion proof against a published root. It touches no forest state.
func (h *ForestHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "leaf_hash, root_hash and proof are required"})
		return
	}
	valid := merkle.VerifyInclusion(req.LeafHash, req.RootHash, req.Proof)
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// PruneThread handles DELETE /forest/threads/:thread — unconditional removal
// of one branch. Pruning an absent branch is not an error.
func (h *ForestHandler) PruneThread(c *gin.Context) {
	threadID := c.Param("thread")
	h.forest.PruneThread(threadID)
	h.logger.Info("thread pruned via API", zap.String("thread", threadID))
	c.JSON(http.StatusOK, gin.H{"pruned": threadID})
}
