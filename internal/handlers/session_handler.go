package handlers

import (
	"errors"
	"net/http"

	"zap-backend/internal/models"
	"zap-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// SessionHandler handles the deposit session API
type SessionHandler struct {
	pipeline *services.DepositPipelineService
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(pipeline *services.DepositPipelineService) *SessionHandler {
	return &SessionHandler{pipeline: pipeline}
}

// CreateSessionHandler handles POST /api/sessions
func (h *SessionHandler) CreateSessionHandler(c *gin.Context) {
	session := h.pipeline.NewSession()
	view, err := h.pipeline.Snapshot(session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetSessionHandler handles GET /api/sessions/:id
func (h *SessionHandler) GetSessionHandler(c *gin.Context) {
	view, err := h.pipeline.Snapshot(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CloseSessionHandler handles DELETE /api/sessions/:id
func (h *SessionHandler) CloseSessionHandler(c *gin.Context) {
	h.pipeline.CloseSession(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// AddVaultHandler handles POST /api/sessions/:id/vaults
func (h *SessionHandler) AddVaultHandler(c *gin.Context) {
	var req struct {
		VaultID string `json:"vaultId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.pipeline.AddVault(c.Request.Context(), c.Param("id"), req.VaultID); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

// RemoveVaultHandler handles DELETE /api/sessions/:id/vaults/:vaultId
func (h *SessionHandler) RemoveVaultHandler(c *gin.Context) {
	if err := h.pipeline.RemoveVault(c.Param("id"), c.Param("vaultId")); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

// SetTokenHandler handles PUT /api/sessions/:id/token
func (h *SessionHandler) SetTokenHandler(c *gin.Context) {
	var req struct {
		ChainID  string `json:"chainId" binding:"required"`
		Address  string `json:"address"`
		Decimals int    `json:"decimals" binding:"required"`
		Symbol   string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	token := models.Token{
		ChainID:  req.ChainID,
		Address:  common.HexToAddress(req.Address),
		Decimals: req.Decimals,
		Symbol:   req.Symbol,
	}
	if err := h.pipeline.SetToken(c.Param("id"), token); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

// SetAmountHandler handles PUT /api/sessions/:id/amount
func (h *SessionHandler) SetAmountHandler(c *gin.Context) {
	var req struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid amount",
			"details": err.Error(),
		})
		return
	}

	if err := h.pipeline.SetAmount(c.Param("id"), amount); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

// SetSlippageHandler handles PUT /api/sessions/:id/slippage
// An optional vaultId scopes the tolerance to one vault; without it the value
// becomes the session default and applies to every vault.
func (h *SessionHandler) SetSlippageHandler(c *gin.Context) {
	var req struct {
		Slippage *float64 `json:"slippage" binding:"required"`
		VaultID  string   `json:"vaultId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.pipeline.SetSlippage(c.Param("id"), req.VaultID, *req.Slippage); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

// QuoteHandler handles POST /api/sessions/:id/quote
func (h *SessionHandler) QuoteHandler(c *gin.Context) {
	if err := h.pipeline.QuoteAll(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

// BuildHandler handles POST /api/sessions/:id/build
func (h *SessionHandler) BuildHandler(c *gin.Context) {
	if err := h.pipeline.BuildAll(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

// ExecuteHandler handles POST /api/sessions/:id/execute
func (h *SessionHandler) ExecuteHandler(c *gin.Context) {
	if err := h.pipeline.ExecuteAll(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c)
}

func (h *SessionHandler) respondSnapshot(c *gin.Context) {
	view, err := h.pipeline.Snapshot(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// respondError maps domain errors onto HTTP statuses. Batch failures keep
// the failing vault id in the payload so clients can mark the right row.
func respondError(c *gin.Context, err error) {
	var batchErr *models.BatchError
	if errors.As(err, &batchErr) {
		status := http.StatusBadGateway
		var validationErr *models.ValidationError
		if errors.As(batchErr.Err, &validationErr) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":   batchErr.Err.Error(),
			"vaultId": batchErr.VaultID,
		})
		return
	}

	var validationErr *models.ValidationError
	var unsupportedErr *models.UnsupportedChainError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &unsupportedErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNoQuoteAvailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
