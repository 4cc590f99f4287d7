package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/middleware"
	"github.com/theset/backend/internal/models"
	"github.com/theset/backend/internal/services"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db     *gorm.DB
	cfg    *config.Config
	router *gin.Engine
	auth   *services.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	cfg := &config.Config{
		ArtistStaleness:    24 * time.Hour,
		ShowStaleness:      24 * time.Hour,
		VenueStaleness:     24 * time.Hour,
		TrackStaleness:     168 * time.Hour,
		SyncCooldown:       time.Hour,
		AnonVoteDailyLimit: 10,
		JWTSecret:          "test-secret",
		JWTTokenDuration:   time.Hour,
		AdminUsername:      "admin",
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg.AdminPasswordHash = string(hash)

	oplog := services.NewOpLogService(db)
	authService := services.NewAuthService(cfg)
	artistService := services.NewArtistService(db, nil, cfg, nil, nil, oplog)
	venueService := services.NewVenueService(db, nil, cfg, oplog)
	showService := services.NewShowService(db, nil, cfg, venueService, nil, nil, oplog)
	setlistService := services.NewSetlistService(db, nil, cfg, oplog)
	voteService := services.NewVoteService(db, nil, cfg)
	syncService := services.NewSyncService(db, cfg, nil, nil, nil,
		artistService, venueService, showService, setlistService, oplog)
	runner := services.NewBackgroundRunner(1, 4, time.Second)
	t.Cleanup(runner.Stop)

	authHandler := NewAuthHandler(authService)
	syncHandler := NewSyncHandler(syncService, oplog)
	showHandler := NewShowHandler(artistService, venueService, showService, oplog)
	publicHandler := NewPublicHandler(artistService, showService, setlistService, voteService, syncService, runner, oplog)
	voteHandler := NewVoteHandler(voteService, oplog)

	router := gin.New()
	api := router.Group("/api")
	api.POST("/auth/token", authHandler.Token)
	api.GET("/artists/:id", publicHandler.GetArtist)
	api.GET("/shows/upcoming", publicHandler.GetUpcomingShows)
	api.GET("/setlists/:id/songs", middleware.OptionalVoter(authService), publicHandler.GetSetlistSongs)
	api.POST("/votes", middleware.OptionalVoter(authService), voteHandler.CastVote)
	sync := api.Group("")
	sync.Use(middleware.Auth(authService))
	sync.POST("/unified-sync", syncHandler.UnifiedSync)
	sync.POST("/save-show", showHandler.SaveShow)

	return &testEnv{db: db, cfg: cfg, router: router, auth: authService}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedSong(t *testing.T) (artist *models.Artist, song *models.SetlistSong) {
	t.Helper()
	artist = &models.Artist{Name: "Radiohead"}
	require.NoError(t, e.db.Create(artist).Error)

	show := &models.Show{
		Name:     "Radiohead Live",
		Date:     time.Now().UTC().Add(48 * time.Hour),
		ArtistID: artist.ID,
		Status:   models.ShowStatusUpcoming,
	}
	require.NoError(t, e.db.Create(show).Error)

	setlist := &models.Setlist{ShowID: show.ID}
	require.NoError(t, e.db.Create(setlist).Error)

	song = &models.SetlistSong{SetlistID: setlist.ID, Title: "Karma Police", Position: 0}
	require.NoError(t, e.db.Create(song).Error)
	return artist, song
}

func TestTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/token",
		gin.H{"username": "admin", "password": "hunter2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	rec = env.request(t, http.MethodPost, "/api/auth/token",
		gin.H{"username": "admin", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/auth/token", gin.H{"username": "admin"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetArtistEndpoint(t *testing.T) {
	env := newTestEnv(t)
	artist, _ := env.seedSong(t)

	rec := env.request(t, http.MethodGet, "/api/artists/"+artist.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Radiohead")

	rec = env.request(t, http.MethodGet, "/api/artists/"+uuid.New().String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/artists/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCastVoteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, song := env.seedSong(t)

	body := gin.H{"setlistSongId": song.ID.String(), "fingerprint": "fp-abc123XYZ"}

	rec := env.request(t, http.MethodPost, "/api/votes", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		AlreadyVoted bool `json:"alreadyVoted"`
		Votes        int  `json:"votes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.AlreadyVoted)
	assert.Equal(t, 1, resp.Votes)

	// Same fingerprint again: no-op, counter unchanged.
	rec = env.request(t, http.MethodPost, "/api/votes", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.AlreadyVoted)
	assert.Equal(t, 1, resp.Votes)
}

func TestCastVoteEndpoint_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, song := env.seedSong(t)

	rec := env.request(t, http.MethodPost, "/api/votes",
		gin.H{"setlistSongId": song.ID.String()}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/votes",
		gin.H{"setlistSongId": song.ID.String(), "fingerprint": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/votes",
		gin.H{"setlistSongId": uuid.New().String(), "fingerprint": "fp-abc123XYZ"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCastVoteEndpoint_AuthenticatedVoter(t *testing.T) {
	env := newTestEnv(t)
	_, song := env.seedSong(t)

	token, err := env.auth.IssueSyncToken("admin", "hunter2")
	require.NoError(t, err)

	// A token-bearing request needs no fingerprint.
	rec := env.request(t, http.MethodPost, "/api/votes",
		gin.H{"setlistSongId": song.ID.String()},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)

	var vote models.Vote
	require.NoError(t, env.db.First(&vote, "setlist_song_id = ?", song.ID).Error)
	assert.Equal(t, "admin", vote.VoterID)
	assert.False(t, vote.IsAnonymous())
}

func TestSetlistSongsEndpoint_VotedFlags(t *testing.T) {
	env := newTestEnv(t)
	_, song := env.seedSong(t)

	voteBody := gin.H{"setlistSongId": song.ID.String(), "fingerprint": "fp-abc123XYZ"}
	rec := env.request(t, http.MethodPost, "/api/votes", voteBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet,
		fmt.Sprintf("/api/setlists/%s/songs", song.SetlistID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Songs []struct {
			Title string `json:"title"`
			Votes int    `json:"votes"`
			Voted bool   `json:"voted"`
		} `json:"songs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Songs, 1)
	assert.Equal(t, "Karma Police", resp.Songs[0].Title)
	assert.Equal(t, 1, resp.Songs[0].Votes)
	// Anonymous read carries no identity, so no voted flag.
	assert.False(t, resp.Songs[0].Voted)
}

func TestUnifiedSyncEndpoint_InvalidArgumentsAreClientErrors(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.auth.IssueSyncToken("admin", "hunter2")
	require.NoError(t, err)
	headers := map[string]string{"Authorization": "Bearer " + token}

	rec := env.request(t, http.MethodPost, "/api/unified-sync",
		gin.H{"entityType": "playlist", "entityId": uuid.New().String()}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown entity type")

	rec = env.request(t, http.MethodPost, "/api/unified-sync",
		gin.H{"entityType": "artist", "entityId": "not-a-uuid"}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Caller mistakes never land in the error log.
	var logged int64
	require.NoError(t, env.db.Model(&models.ErrorLog{}).Count(&logged).Error)
	assert.Zero(t, logged)
}

func TestSaveShowEndpoint_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	body := gin.H{
		"artist": gin.H{"name": "Radiohead"},
		"show":   gin.H{"name": "Radiohead Live", "date": time.Now().UTC().Add(48 * time.Hour)},
	}

	rec := env.request(t, http.MethodPost, "/api/save-show", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := env.auth.IssueSyncToken("admin", "hunter2")
	require.NoError(t, err)

	rec = env.request(t, http.MethodPost, "/api/save-show", body,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "showId")

	var count int64
	require.NoError(t, env.db.Model(&models.Show{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpcomingShowsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	artist, _ := env.seedSong(t)

	venue := &models.Venue{Name: "The Anthem"}
	require.NoError(t, env.db.Create(venue).Error)
	show := &models.Show{
		Name:     "Display Ready",
		Date:     time.Now().UTC().Add(24 * time.Hour),
		ArtistID: artist.ID,
		VenueID:  &venue.ID,
		Status:   models.ShowStatusUpcoming,
	}
	require.NoError(t, env.db.Create(show).Error)

	rec := env.request(t, http.MethodGet, "/api/shows/upcoming", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Shows      []models.Show `json:"shows"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// The venue-less seeded show stays hidden.
	assert.Equal(t, int64(1), resp.Pagination.Total)
	require.Len(t, resp.Shows, 1)
	assert.Equal(t, "Display Ready", resp.Shows[0].Name)
}
