package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/feral-file/launch-ledger/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Read surface (public)
		v1.GET("/groups", handler.ListGroups)
		v1.GET("/groups/:group_id", handler.GetGroup)
		v1.GET("/groups/:group_id/currencies", handler.ListGroupCurrencies)
		v1.GET("/groups/:group_id/currencies/:currency", handler.GetGroupCurrency)
		v1.GET("/groups/:group_id/participations", handler.ListGroupParticipations)
		v1.GET("/groups/:group_id/users/:user_id/allocation", handler.GetUserAllocation)
		v1.GET("/groups/:group_id/journal", handler.ListJournal)
		v1.GET("/participations/:participation_id", handler.GetParticipation)
		v1.GET("/treasury/withdrawable", handler.ListWithdrawableBalances)
		v1.GET("/treasury/withdrawable/:currency", handler.GetWithdrawableBalance)

		// Signed user operations (requires authentication; the JWT subject
		// must match the request's user address)
		v1.POST("/participations", middleware.Auth(authCfg), handler.Participate)
		v1.PUT("/participations", middleware.Auth(authCfg), handler.UpdateParticipation)
		v1.POST("/participations/cancel", middleware.Auth(authCfg), handler.CancelParticipation)
		v1.POST("/refunds/claim", middleware.Auth(authCfg), handler.ClaimRefund)

		// Capability-gated operations (requires authentication; the ledger
		// checks the caller's capability role)
		v1.POST("/groups", middleware.Auth(authCfg), handler.CreateGroup)
		v1.PUT("/groups/:group_id/settings", middleware.Auth(authCfg), handler.SetGroupSettings)
		v1.PUT("/groups/:group_id/status", middleware.Auth(authCfg), handler.SetGroupStatus)
		v1.PUT("/groups/:group_id/currencies/:currency", middleware.Auth(authCfg), handler.SetGroupCurrency)
		v1.POST("/groups/:group_id/finalize", middleware.Auth(authCfg), handler.FinalizeWinners)
		v1.POST("/groups/:group_id/refunds/batch", middleware.Auth(authCfg), handler.BatchRefund)
		v1.POST("/treasury/withdraw", middleware.Auth(authCfg), handler.Withdraw)
		v1.POST("/capabilities", middleware.Auth(authCfg), handler.GrantCapability)
		v1.DELETE("/capabilities", middleware.Auth(authCfg), handler.RevokeCapability)
		v1.PUT("/pause", middleware.Auth(authCfg), handler.SetPause)
	}
}
