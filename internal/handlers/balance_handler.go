package handlers

import (
	"net/http"

	"zap-backend/internal/models"
	"zap-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// BalanceHandler handles wallet balance scan API requests
type BalanceHandler struct {
	scanner *services.BalanceScannerService
}

// NewBalanceHandler creates a new BalanceHandler instance
func NewBalanceHandler(scanner *services.BalanceScannerService) *BalanceHandler {
	return &BalanceHandler{scanner: scanner}
}

type balanceScanRequest struct {
	ChainID string `json:"chainId" binding:"required"`
	Owner   string `json:"owner" binding:"required"`
	Tokens  []struct {
		Address  string `json:"address"`
		Decimals int    `json:"decimals"`
		Symbol   string `json:"symbol"`
	} `json:"tokens" binding:"required"`
}

type balanceEntry struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Balance  string `json:"balance"` // base units
}

// ScanBalancesHandler handles POST /api/balances
// Reads wallet balances for the submitted token list. Tokens whose read
// failed are omitted from the response.
func (h *BalanceHandler) ScanBalancesHandler(c *gin.Context) {
	var req balanceScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if !common.IsHexAddress(req.Owner) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner address"})
		return
	}

	tokens := make([]models.Token, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		tokens = append(tokens, models.Token{
			ChainID:  req.ChainID,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
			Symbol:   t.Symbol,
		})
	}

	scanned := h.scanner.ScanBalances(c.Request.Context(), req.ChainID, common.HexToAddress(req.Owner), tokens)

	entries := make([]balanceEntry, 0, len(scanned))
	for _, t := range scanned {
		entries = append(entries, balanceEntry{
			Address:  t.Address.Hex(),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			Balance:  t.Balance.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"chainId":  req.ChainID,
		"owner":    common.HexToAddress(req.Owner).Hex(),
		"balances": entries,
	})
}
