package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/handlers"
	"github.com/theset/backend/internal/middleware"
	"github.com/theset/backend/internal/models"
	"github.com/theset/backend/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.New()

	// Initialize database
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Optional elevated credential for write retries
	elevated, err := models.InitElevatedDB(cfg)
	if err != nil {
		log.Printf("WARN: elevated database credential unusable, continuing without it: %v", err)
		elevated = nil
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg)
	defer redisClient.Close()

	// Background executor for fire-and-forget work
	runner := services.NewBackgroundRunner(cfg.BackgroundWorkers, cfg.BackgroundQueueSize, cfg.ExternalAPITimeout*4)
	defer runner.Stop()

	// Initialize services
	oplogService := services.NewOpLogService(db)
	spotifyService := services.NewSpotifyService(cfg)
	ticketmasterService := services.NewTicketmasterService(cfg)
	setlistFMService := services.NewSetlistFMService(cfg)
	authService := services.NewAuthService(cfg)
	artistService := services.NewArtistService(db, elevated, cfg, spotifyService, runner, oplogService)
	venueService := services.NewVenueService(db, elevated, cfg, oplogService)
	showService := services.NewShowService(db, elevated, cfg, venueService, ticketmasterService, runner, oplogService)
	setlistService := services.NewSetlistService(db, elevated, cfg, oplogService)
	voteService := services.NewVoteService(db, redisClient, cfg)
	syncService := services.NewSyncService(db, cfg, spotifyService, ticketmasterService, setlistFMService,
		artistService, venueService, showService, setlistService, oplogService)

	// Setup Gin router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	syncHandler := handlers.NewSyncHandler(syncService, oplogService)
	showHandler := handlers.NewShowHandler(artistService, venueService, showService, oplogService)
	publicHandler := handlers.NewPublicHandler(artistService, showService, setlistService, voteService, syncService, runner, oplogService)
	voteHandler := handlers.NewVoteHandler(voteService, oplogService)
	realtimeHandler := handlers.NewRealtimeHandler(redisClient)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Setup routes
	api := router.Group("/api")
	{
		// Catch-all OPTIONS handler for CORS preflight requests
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		api.POST("/auth/token", authHandler.Token)

		// Public catalog reads
		api.GET("/artists/:id", publicHandler.GetArtist)
		api.GET("/shows/upcoming", publicHandler.GetUpcomingShows)
		api.GET("/setlist/:artistId", publicHandler.GetArtistSetlists)
		api.GET("/setlists/:id/songs", middleware.OptionalVoter(authService), publicHandler.GetSetlistSongs)

		// Voting
		api.POST("/votes", middleware.OptionalVoter(authService), voteHandler.CastVote)
		api.GET("/realtime/votes", realtimeHandler.VoteFeed)

		// Sync endpoints require a sync token
		sync := api.Group("")
		sync.Use(middleware.Auth(authService))
		{
			sync.POST("/unified-sync", syncHandler.UnifiedSync)
			sync.POST("/sync/venue", syncHandler.SyncVenue)
			sync.POST("/save-show", showHandler.SaveShow)
		}
	}

	// Periodic refresh of the stalest artists. Each pass picks a small
	// batch so a cold database converges without hammering the upstream
	// APIs all at once.
	go func() {
		time.Sleep(1 * time.Minute)
		for {
			stale, err := syncService.StaleArtists(5)
			if err != nil {
				log.Printf("Stale artist scan error: %v", err)
			}
			for _, artist := range stale {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := syncService.Run(ctx, models.EntityTypeArtist, artist.ID.String(), services.SyncOptions{}); err != nil && err != services.ErrSyncNotEligible {
					log.Printf("Background artist sync error for %s: %v", artist.ID, err)
				}
				cancel()
			}
			time.Sleep(15 * time.Minute)
		}
	}()

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
