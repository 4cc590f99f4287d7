package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/models"
	"github.com/theset/backend/internal/services"
)

// The sync runner drives reconciliation from the command line or cron:
// one entity at a time, or a batch of the stalest artists.
func main() {
	entityType := flag.String("entity", models.EntityTypeArtist, "entity type to sync: artist, venue, show or setlist")
	entityID := flag.String("id", "", "entity id to sync")
	allStale := flag.Bool("all-stale", false, "sync the stalest artists instead of a single entity")
	staleLimit := flag.Int("limit", 10, "maximum artists to process with -all-stale")
	force := flag.Bool("force", false, "ignore the per-entity cooldown")
	skipShows := flag.Bool("skip-shows", false, "skip the event listing pass")
	skipSetlists := flag.Bool("skip-setlists", false, "skip the setlist catalog pass")
	maxSetlists := flag.Int("max-setlists", 0, "cap on setlists fetched per artist (0 = default)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline per entity")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.New()
	if err := cfg.ValidateSync(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	elevated, err := models.InitElevatedDB(cfg)
	if err != nil {
		log.Printf("WARN: elevated database credential unusable, continuing without it: %v", err)
		elevated = nil
	}

	runner := services.NewBackgroundRunner(cfg.BackgroundWorkers, cfg.BackgroundQueueSize, cfg.ExternalAPITimeout*4)
	defer runner.Stop()

	oplogService := services.NewOpLogService(db)
	spotifyService := services.NewSpotifyService(cfg)
	ticketmasterService := services.NewTicketmasterService(cfg)
	setlistFMService := services.NewSetlistFMService(cfg)
	artistService := services.NewArtistService(db, elevated, cfg, spotifyService, runner, oplogService)
	venueService := services.NewVenueService(db, elevated, cfg, oplogService)
	showService := services.NewShowService(db, elevated, cfg, venueService, ticketmasterService, runner, oplogService)
	setlistService := services.NewSetlistService(db, elevated, cfg, oplogService)
	syncService := services.NewSyncService(db, cfg, spotifyService, ticketmasterService, setlistFMService,
		artistService, venueService, showService, setlistService, oplogService)

	opts := services.SyncOptions{
		Force:        *force,
		SkipShows:    *skipShows,
		SkipSetlists: *skipSetlists,
		MaxSetlists:  *maxSetlists,
	}

	if *allStale {
		stale, err := syncService.StaleArtists(*staleLimit)
		if err != nil {
			log.Fatalf("Failed to list stale artists: %v", err)
		}
		if len(stale) == 0 {
			log.Println("No stale artists to sync")
			return
		}

		failed := 0
		for _, artist := range stale {
			if err := syncOne(syncService, models.EntityTypeArtist, artist.ID.String(), opts, *timeout); err != nil {
				failed++
			}
		}
		log.Printf("Stale sync finished: %d/%d artists failed", failed, len(stale))
		if failed == len(stale) {
			os.Exit(1)
		}
		return
	}

	if *entityID == "" {
		log.Fatal("Either -id or -all-stale is required")
	}
	if err := syncOne(syncService, *entityType, *entityID, opts, *timeout); err != nil {
		os.Exit(1)
	}
}

func syncOne(syncService *services.SyncService, entityType, entityID string, opts services.SyncOptions, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := syncService.Run(ctx, entityType, entityID, opts)
	if err != nil {
		log.Printf("Sync failed for %s %s: %v", entityType, entityID, err)
		return err
	}

	log.Printf("Sync completed for %s %s: processed=%d created=%d updated=%d failed=%d",
		entityType, entityID, result.Processed, result.Created, result.Updated, result.Failed)
	for _, msg := range result.Errors {
		log.Printf("  partial failure: %s", msg)
	}
	return nil
}
