package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"zap-backend/internal/repository"
	"zap-backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// VaultHandler handles vault lookup and deposit history API requests
type VaultHandler struct {
	vaults      *services.VaultService
	depositRepo repository.DepositRepository
}

// NewVaultHandler creates a new VaultHandler instance
func NewVaultHandler(vaults *services.VaultService, depositRepo repository.DepositRepository) *VaultHandler {
	return &VaultHandler{vaults: vaults, depositRepo: depositRepo}
}

// GetVaultHandler handles GET /api/vaults/:id
func (h *VaultHandler) GetVaultHandler(c *gin.Context) {
	vault, depositToken, err := h.vaults.LoadVault(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vault":        vault,
		"depositToken": depositToken,
	})
}

// GetZapTokensHandler handles GET /api/chains/:chainId/zap-tokens
func (h *VaultHandler) GetZapTokensHandler(c *gin.Context) {
	supported, err := h.vaults.ZapSupportedTokens(c.Request.Context(), c.Param("chainId"))
	if err != nil {
		respondError(c, err)
		return
	}

	tokens := make([]string, 0, len(supported))
	for addr := range supported {
		tokens = append(tokens, addr)
	}
	c.JSON(http.StatusOK, gin.H{
		"chainId": c.Param("chainId"),
		"tokens":  tokens,
	})
}

// GetVaultDepositsHandler handles GET /api/vaults/:id/deposits
func (h *VaultHandler) GetVaultDepositsHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, total, err := h.depositRepo.FindByVault(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deposits": records,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// GetDepositHandler handles GET /api/deposits/:id
func (h *VaultHandler) GetDepositHandler(c *gin.Context) {
	record, err := h.depositRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Deposit not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposit": record})
}

// GetSessionDepositsHandler handles GET /api/sessions/:id/deposits
func (h *VaultHandler) GetSessionDepositsHandler(c *gin.Context) {
	records, err := h.depositRepo.FindBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": records})
}
