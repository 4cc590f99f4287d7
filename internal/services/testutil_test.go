package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	// One in-memory database means one connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		ArtistStaleness:    24 * time.Hour,
		ShowStaleness:      24 * time.Hour,
		VenueStaleness:     24 * time.Hour,
		TrackStaleness:     168 * time.Hour,
		SyncCooldown:       time.Hour,
		ExternalAPITimeout: 5 * time.Second,
		AnonVoteDailyLimit: 10,
		SpotifyClientID:    "test-client",
		TicketmasterAPIKey: "test-key",
		SetlistFMAPIKey:    "test-key",
		JWTSecret:          "test-secret",
		JWTTokenDuration:   time.Hour,
	}
}

func createTestArtist(t *testing.T, db *gorm.DB, name string) *models.Artist {
	t.Helper()
	artist := &models.Artist{Name: name}
	require.NoError(t, db.Create(artist).Error)
	return artist
}

func createTestShowWithSetlist(t *testing.T, db *gorm.DB, artistID uuid.UUID, titles ...string) (*models.Show, *models.Setlist) {
	t.Helper()

	venue := &models.Venue{Name: "Test Hall", City: "Austin"}
	require.NoError(t, db.Create(venue).Error)

	show := &models.Show{
		Name:     "Test Show",
		Date:     time.Now().UTC().Add(48 * time.Hour),
		ArtistID: artistID,
		VenueID:  &venue.ID,
		Status:   models.ShowStatusUpcoming,
	}
	require.NoError(t, db.Create(show).Error)

	setlist := &models.Setlist{ShowID: show.ID}
	require.NoError(t, db.Create(setlist).Error)

	for i, title := range titles {
		song := &models.SetlistSong{
			SetlistID: setlist.ID,
			Title:     title,
			Position:  i,
		}
		require.NoError(t, db.Create(song).Error)
	}
	return show, setlist
}

func songsForSetlist(t *testing.T, db *gorm.DB, setlistID uuid.UUID) []models.SetlistSong {
	t.Helper()
	var songs []models.SetlistSong
	require.NoError(t, db.Where("setlist_id = ?", setlistID).Order("position ASC").Find(&songs).Error)
	return songs
}

func testCtx() context.Context {
	return context.Background()
}
