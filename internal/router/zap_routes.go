package router

import (
	"zap-backend/internal/app"
	"zap-backend/internal/handlers"
	"zap-backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupZapRoutes registers the deposit pipeline API under /api.
func SetupZapRoutes(r *gin.Engine, container *app.ServiceContainer, localhostOnly *middleware.LocalhostOnly) {
	sessionHandler := handlers.NewSessionHandler(container.PipelineService)
	vaultHandler := handlers.NewVaultHandler(container.VaultService, container.DepositRepo)
	balanceHandler := handlers.NewBalanceHandler(container.ScannerService)

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheckHandler)

		// Vault registry
		api.GET("/vaults/:id", vaultHandler.GetVaultHandler)
		api.GET("/vaults/:id/deposits", vaultHandler.GetVaultDepositsHandler)
		api.GET("/chains/:chainId/zap-tokens", vaultHandler.GetZapTokensHandler)

		// Deposit history
		api.GET("/deposits/:id", vaultHandler.GetDepositHandler)

		// Wallet balances
		api.POST("/balances", balanceHandler.ScanBalancesHandler)

		// Deposit sessions
		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.CreateSessionHandler)
			sessions.GET("/:id", sessionHandler.GetSessionHandler)
			sessions.DELETE("/:id", sessionHandler.CloseSessionHandler)
			sessions.GET("/:id/deposits", vaultHandler.GetSessionDepositsHandler)

			sessions.POST("/:id/vaults", sessionHandler.AddVaultHandler)
			sessions.DELETE("/:id/vaults/:vaultId", sessionHandler.RemoveVaultHandler)
			sessions.PUT("/:id/token", sessionHandler.SetTokenHandler)
			sessions.PUT("/:id/amount", sessionHandler.SetAmountHandler)
			sessions.PUT("/:id/slippage", sessionHandler.SetSlippageHandler)

			sessions.POST("/:id/quote", sessionHandler.QuoteHandler)
			sessions.POST("/:id/build", sessionHandler.BuildHandler)

			// Execution signs with the server key, restricted
			sessions.POST("/:id/execute", localhostOnly.Restrict(), sessionHandler.ExecuteHandler)
		}
	}
}
