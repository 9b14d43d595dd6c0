package main

import (
	"log"

	"trivianight/config"
	"trivianight/handlers"
	"trivianight/middleware"
	"trivianight/models"
	"trivianight/routes"
	"trivianight/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Question{},
		&models.Game{},
		&models.Team{},
		&models.UsageEntry{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize device-sync hub
	hub := services.NewHub()
	go hub.Run()

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	catalogService := services.NewCatalogService(db)
	usageStore := services.NewUsageStore(db)
	usageCache := services.NewUsageCache(usageStore, redisClient)
	tracker := services.NewUsageTracker(usageStore, usageCache, hub)
	engine := services.NewAssignmentEngine(usageStore, usageCache, hub, cfg.AssignSyncCommit)
	gameService := services.NewGameService(db, redisClient, engine, tracker, catalogService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	gameHandler := handlers.NewGameHandler(gameService, hub)
	usageHandler := handlers.NewUsageHandler(tracker, gameService, catalogService)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, catalogHandler, gameHandler, usageHandler, hub, cfg.JWTSecret)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
