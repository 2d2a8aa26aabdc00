package routes

import (
	"github.com/bellapacxx/raffle-backend/controllers"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// ----------------------
	// User routes
	// ----------------------
	api.POST("/users", controllers.RegisterUser)        // Register user
	api.GET("/users/:telegram_id", controllers.GetUser) // Get user by Telegram ID

	// ----------------------
	// Raffle routes
	// ----------------------
	api.GET("/raffle", controllers.GetRaffle)                 // Current round snapshot
	api.GET("/raffle/entrants/:index", controllers.GetEntrant) // Entrant by entry index
	api.POST("/raffle/enter", controllers.EnterRaffle)         // Stake into the round
	api.GET("/rounds", controllers.ListRounds)                 // Round history

	// ----------------------
	// VRF routes (operator/dev)
	// ----------------------
	api.POST("/vrf/fulfill", controllers.FulfillRandomness)        // Deliver a random word
	api.GET("/vrf/outstanding", controllers.ListOutstandingRequests) // Pending requests

	// ----------------------
	// Transaction routes
	// ----------------------
	api.POST("/deposit", controllers.Deposit)                              // Deposit funds
	api.POST("/withdraw", controllers.Withdraw)                            // Withdraw funds
	api.GET("/transactions/:telegram_id", controllers.ListTransactions) // Transaction history
}
