package routes

import (
	"log"
	"net/http"

	"trivianight/handlers"
	"trivianight/middleware"
	"trivianight/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	catalogHandler *handlers.CatalogHandler,
	gameHandler *handlers.GameHandler,
	usageHandler *handlers.UsageHandler,
	hub *services.Hub,
	jwtSecret string,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			// User profile
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Catalog routes
			protected.GET("/catalog", catalogHandler.GetCatalog)
			categories := protected.Group("/categories")
			{
				categories.POST("", catalogHandler.CreateCategory)
				categories.GET("/:slug", catalogHandler.GetCategory)
				categories.POST("/:id/questions", catalogHandler.AddQuestions)
				categories.DELETE("/:id", catalogHandler.DeleteCategory)
			}

			// Game routes
			games := protected.Group("/games")
			{
				games.POST("", gameHandler.StartGame)
				games.GET("", gameHandler.ListGames)
				games.POST("/:pin/questions/used", gameHandler.MarkQuestionUsed)
				games.POST("/:pin/finish", gameHandler.FinishGame)
				games.DELETE("/:id", gameHandler.DeleteGame)
			}

			// Usage routes
			usage := protected.Group("/usage")
			{
				usage.GET("", usageHandler.GetUsage)
				usage.GET("/health", usageHandler.GetCategoryHealth)
				usage.POST("/sync", usageHandler.SyncFromHistory)
				usage.POST("/categories/:slug/reset", usageHandler.ResetCategory)
				usage.POST("/invalidate", usageHandler.InvalidateCache)
			}
		}

		// Public game routes (second device can watch without the owner token)
		publicGames := api.Group("/games")
		{
			publicGames.GET("/:pin", gameHandler.GetGameByPin)
			publicGames.GET("/:pin/state", gameHandler.GetGameState)
		}
	}

	// WebSocket endpoint for account device sync. Authenticated via query
	// parameter because browsers cannot set headers on websocket upgrades.
	router.GET("/ws/sync", func(c *gin.Context) {
		token := c.Query("token")
		device := c.Query("device")
		if device == "" {
			device = "unknown"
		}

		userID, err := middleware.ParseUserID(token, jwtSecret)
		if err != nil {
			log.Printf("WebSocket auth failed for device %s: %v", device, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
			return
		}

		log.Printf("WebSocket connection established for user %d (%s)", userID, device)
		hub.RegisterClient(conn, userID, device)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
