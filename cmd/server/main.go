package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shelfshare/shelfshare/internal/config"
	"github.com/shelfshare/shelfshare/internal/database"
	"github.com/shelfshare/shelfshare/internal/handlers"
	"github.com/shelfshare/shelfshare/internal/middleware"
	"github.com/shelfshare/shelfshare/internal/services"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database connection
	db, err := database.New(cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis connection
	redis, err := database.NewRedis(cfg)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	// Initialize services
	store := database.NewStore(db)
	events := services.NewRedisEventPublisher(redis.Client, logger)

	catalog := services.NewCatalogService(store, redis, logger).
		WithGoogleBooksKey(cfg.Catalog.GoogleBooksAPIKey).
		WithCacheTTL(time.Duration(cfg.Catalog.MetadataCacheTTLMin) * time.Minute)

	circulation := services.NewCirculationService(store, catalog, events, logger).
		WithLoanPolicy(cfg.Circulation.DefaultLoanHours, cfg.Circulation.MaxLoanHours, cfg.Circulation.DefaultBorrowLimit).
		WithReadyWindow(time.Duration(cfg.Circulation.ReadyWindowHours) * time.Hour)

	sweeper := services.NewSweeper(circulation, cfg.Sweeper.Interval(), logger)

	// Initialize Gin router
	r := gin.New()

	// Add global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.SecurityHeaders())

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redis.Client)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redis)
	loanHandler := handlers.NewLoanHandler(circulation, logger)
	reservationHandler := handlers.NewReservationHandler(circulation, logger)
	sweeperHandler := handlers.NewSweeperHandler(sweeper, logger)

	// Public routes (no authentication required)
	public := r.Group("/api/v1")
	{
		public.GET("/ping", healthHandler.Ping)
		public.GET("/health", healthHandler.Health)
	}

	// Protected routes (authentication required)
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware.RequireAuth())
	protected.Use(rateLimiter.APILimit())
	{
		loans := protected.Group("/loans")
		{
			loans.POST("/borrow", loanHandler.BorrowBook)
			loans.POST("/return", loanHandler.ReturnBook)
			loans.GET("/mine", loanHandler.GetMyLoans)
			loans.GET("/overdue", loanHandler.GetMyOverdueLoans)
		}

		reservations := protected.Group("/reservations")
		{
			reservations.POST("", reservationHandler.ReserveBook)
			reservations.GET("/mine", reservationHandler.GetMyReservations)
			reservations.DELETE("/:id", reservationHandler.CancelReservation)
		}

		admin := protected.Group("/admin")
		admin.Use(authMiddleware.RequireAdmin())
		{
			admin.POST("/sweeper/auto-return", sweeperHandler.AutoReturn)
			admin.POST("/sweeper/expire-ready", sweeperHandler.ExpireReady)
			admin.POST("/sweeper/repair-status", sweeperHandler.RepairStatus)
		}
	}

	// Root health check
	r.GET("/health", healthHandler.Health)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the sweeper alongside the server
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "port", port, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	stopSweeper()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
