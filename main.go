package main

import (
	"log"
	"net/http"
	"time"

	"github.com/bellapacxx/raffle-backend/config"
	"github.com/bellapacxx/raffle-backend/routes"
	"github.com/bellapacxx/raffle-backend/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// setupRouter initializes Gin routes and middleware
func setupRouter() *gin.Engine {
	r := gin.Default()

	// Middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"}, // your frontend origin
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Setup REST routes
	routes.SetupRoutes(r)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	// WebSocket raffle state stream
	r.GET("/ws/raffle", services.HandleWebSocket)

	return r
}

func main() {
	// Load env variables
	cfg := config.Load()

	// Connect to database
	config.SetupDatabase(cfg.DatabaseURL)

	// Start the in-memory raffle round controller
	services.InitRaffleService(cfg)

	// Setup Gin router
	router := setupRouter()

	log.Printf("🚀 Raffle Backend server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("[FATAL] Failed to start server: %v", err)
	}
}
