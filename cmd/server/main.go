package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"fortunet/internal/config"
	"fortunet/internal/handlers"
	authMiddleware "fortunet/internal/middleware"
	"fortunet/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize Database
	db, err := services.InitDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis is optional; the catalog cache degrades to direct reads.
	var cache *services.RedisCache
	if cfg.Redis.URL != "" {
		cache, err = services.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
		}
	}

	// External capabilities, constructed once and injected.
	mpesa := services.NewMpesaService(cfg.Mpesa)
	router := services.NewMikroTikService(cfg.MikroTik)
	defer router.Close()

	provisioning := services.NewProvisioningService(db, router)
	payments := services.NewPaymentService(db, mpesa, provisioning)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, cfg.JWT)
	packageHandler := handlers.NewPackageHandler(db, cache)
	paymentHandler := handlers.NewPaymentHandler(db, payments)
	sessionHandler := handlers.NewSessionHandler(router)
	userHandler := handlers.NewUserHandler(db, provisioning)
	dashboardHandler := handlers.NewDashboardHandler(db, router)

	// Public routes
	api := e.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/packages", packageHandler.ListPackages)
	api.POST("/initiate-payment", paymentHandler.InitiatePayment)
	api.POST("/mpesa-callback", paymentHandler.MpesaCallback)
	api.GET("/current-session", sessionHandler.CurrentSession)
	api.GET("/health", dashboardHandler.Health)

	// Admin routes
	admin := e.Group("/api", authMiddleware.RequireAuth(cfg.JWT.Secret))
	admin.GET("/packages/:id", packageHandler.GetPackage)
	admin.POST("/packages", packageHandler.CreatePackage)
	admin.PUT("/packages/:id", packageHandler.UpdatePackage)
	admin.DELETE("/packages/:id", packageHandler.DeletePackage)
	admin.GET("/users", userHandler.ListUsers)
	admin.GET("/users/:id", userHandler.GetUser)
	admin.GET("/users/:id/package-status", userHandler.PackageStatus)
	admin.GET("/transactions", paymentHandler.ListTransactions)
	admin.GET("/transactions/unprovisioned", paymentHandler.UnprovisionedTransactions)
	admin.GET("/transactions/:id", paymentHandler.GetTransaction)
	admin.POST("/transactions/:id/provision", paymentHandler.RetryProvisioning)
	admin.GET("/active-users", sessionHandler.ActiveUsers)
	admin.GET("/hotspot-users", sessionHandler.HotspotUsers)
	admin.POST("/disconnect-user/:id", sessionHandler.DisconnectUser)
	admin.POST("/block-user/:id", sessionHandler.BlockUser)
	admin.GET("/stats", dashboardHandler.Stats)

	log.Printf("Server starting on port %s", cfg.Server.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Server.Port))
}
