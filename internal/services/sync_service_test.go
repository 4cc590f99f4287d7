package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theset/backend/internal/models"
	"gorm.io/gorm"
)

// newTestSyncService wires the full reconciliation stack against one fake
// upstream serving Spotify, Ticketmaster and Setlist.fm paths.
func newTestSyncService(t *testing.T, upstream http.Handler) (*SyncService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	cfg := testConfig()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	spotify := &SpotifyService{cfg: cfg, client: server.Client(), baseURL: server.URL}
	tm := NewTicketmasterService(cfg)
	tm.client = server.Client()
	tm.baseURL = server.URL
	sfm := NewSetlistFMService(cfg)
	sfm.client = server.Client()
	sfm.baseURL = server.URL

	oplog := NewOpLogService(db)
	artists := NewArtistService(db, nil, cfg, nil, nil, oplog)
	venues := NewVenueService(db, nil, cfg, oplog)
	shows := NewShowService(db, nil, cfg, venues, tm, nil, oplog)
	setlists := NewSetlistService(db, nil, cfg, oplog)

	return NewSyncService(db, cfg, spotify, tm, sfm, artists, venues, shows, setlists, oplog), db
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// artistSyncUpstream serves a full sync pass: the spotify profile, two
// Ticketmaster events (one unusable), and two setlists (one without a
// venue).
func artistSyncUpstream(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/artists/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, SpotifyArtist{
			ID:         "4Z8W4fKeB5YxbusRsdQVPb",
			Name:       "Radiohead",
			Popularity: 82,
		})
	})

	mux.HandleFunc("/events.json", func(w http.ResponseWriter, r *http.Request) {
		page := tmEventsPage{}
		page.Page.TotalPages = 1

		good := TMEvent{ID: "tm-event-1", Name: "Radiohead Live", URL: "https://tm.example/1"}
		good.Dates.Start.DateTime = time.Now().UTC().Add(96 * time.Hour).Format(time.RFC3339)
		good.Dates.Status.Code = "onsale"
		venue := TMVenue{ID: "tm-venue-1", Name: "Madison Square Garden"}
		venue.City.Name = "New York"
		good.Embedded.Venues = []TMVenue{venue}

		// No name means reconciliation has nothing to store.
		bad := TMEvent{ID: "tm-event-2"}
		bad.Dates.Start.LocalDate = "2026-11-01"

		page.Embedded.Events = []TMEvent{good, bad}
		writeJSON(t, w, page)
	})

	mux.HandleFunc("/artist/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/setlists") {
			http.NotFound(w, r)
			return
		}

		good := SFMSetlist{ID: "sfm-1", EventDate: "03-05-2026"}
		good.Venue.Name = "Paradiso"
		good.Venue.City.Name = "Amsterdam"
		good.Sets.Set = []SFMSet{
			{Songs: []SFMSong{{Name: "15 Step"}, {Name: "Nude"}}},
			{Encore: 1, Songs: []SFMSong{{Name: "Karma Police"}}},
		}

		bad := SFMSetlist{ID: "sfm-2", EventDate: "04-05-2026"}

		writeJSON(t, w, SFMSetlistsPage{
			Setlists:     []SFMSetlist{good, bad},
			Total:        2,
			Page:         1,
			ItemsPerPage: 20,
		})
	})

	return mux
}

func seedSyncedArtist(t *testing.T, db *gorm.DB) *models.Artist {
	t.Helper()
	now := time.Now().UTC()
	artist := &models.Artist{
		Name:           "Radiohead",
		SpotifyID:      strPtr("4Z8W4fKeB5YxbusRsdQVPb"),
		TicketmasterID: strPtr("K8vZ9171ob7"),
		MBID:           strPtr("a74b1b7f-71a5-4011-9441-d0b5e4122711"),
		LastSyncedAt:   &now,
	}
	require.NoError(t, db.Create(artist).Error)
	return artist
}

func TestRun_ArtistSyncWithPartialFailures(t *testing.T) {
	svc, db := newTestSyncService(t, artistSyncUpstream(t))
	artist := seedSyncedArtist(t, db)

	result, err := svc.Run(testCtx(), models.EntityTypeArtist, artist.ID.String(), SyncOptions{})
	require.NoError(t, err)

	// 1 artist + 2 events + 2 setlists.
	assert.Equal(t, 5, result.Processed)
	// The good event's show and the good setlist.
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)

	// The good event landed fully reconciled.
	var show models.Show
	require.NoError(t, db.First(&show, "ticketmaster_id = ?", "tm-event-1").Error)
	assert.Equal(t, artist.ID, show.ArtistID)
	require.NotNil(t, show.VenueID)

	// The good setlist landed with its flattened songs.
	var setlist models.Setlist
	require.NoError(t, db.First(&setlist, "setlistfm_id = ?", "sfm-1").Error)
	songs := songsForSetlist(t, db, setlist.ID)
	require.Len(t, songs, 3)
	assert.Equal(t, "15 Step", songs[0].Title)
	assert.True(t, songs[2].IsEncore)

	// The bad event left nothing behind.
	var count int64
	require.NoError(t, db.Model(&models.Show{}).Where("ticketmaster_id = ?", "tm-event-2").Count(&count).Error)
	assert.Zero(t, count)
}

func TestRun_TaskLifecycle(t *testing.T) {
	svc, db := newTestSyncService(t, artistSyncUpstream(t))
	artist := seedSyncedArtist(t, db)

	_, err := svc.Run(testCtx(), models.EntityTypeArtist, artist.ID.String(), SyncOptions{})
	require.NoError(t, err)

	var task models.SyncTask
	require.NoError(t, db.First(&task, "entity_id = ?", artist.ID.String()).Error)
	assert.Equal(t, models.SyncStatusCompleted, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.NotNil(t, task.FinishedAt)

	var recorded SyncResult
	require.NoError(t, json.Unmarshal([]byte(task.Result), &recorded))
	assert.Equal(t, 5, recorded.Processed)
}

func TestRun_CooldownBlocksRepeat(t *testing.T) {
	svc, db := newTestSyncService(t, artistSyncUpstream(t))
	artist := seedSyncedArtist(t, db)

	_, err := svc.Run(testCtx(), models.EntityTypeArtist, artist.ID.String(), SyncOptions{})
	require.NoError(t, err)

	_, err = svc.Run(testCtx(), models.EntityTypeArtist, artist.ID.String(), SyncOptions{})
	assert.ErrorIs(t, err, ErrSyncNotEligible)

	// Force ignores the cooldown.
	result, err := svc.Run(testCtx(), models.EntityTypeArtist, artist.ID.String(), SyncOptions{Force: true})
	require.NoError(t, err)
	assert.NotNil(t, result)

	var state models.SyncState
	require.NoError(t, db.First(&state, "entity_type = ? AND entity_id = ?", models.EntityTypeArtist, artist.ID.String()).Error)
	assert.Equal(t, models.SyncStatusCompleted, state.Status)
	require.NotNil(t, state.NextEligibleAt)
	assert.True(t, state.NextEligibleAt.After(time.Now().UTC()))
}

func TestRun_FailureMarksTaskFailed(t *testing.T) {
	svc, db := newTestSyncService(t, http.NotFoundHandler())

	missing := uuid.New()
	_, err := svc.Run(testCtx(), models.EntityTypeArtist, missing.String(), SyncOptions{})
	require.Error(t, err)

	var task models.SyncTask
	require.NoError(t, db.First(&task, "entity_id = ?", missing.String()).Error)
	assert.Equal(t, models.SyncStatusFailed, task.Status)
	assert.NotEmpty(t, task.Error)
	assert.NotNil(t, task.FinishedAt)
}

func TestRun_RejectsBadArguments(t *testing.T) {
	svc, db := newTestSyncService(t, http.NotFoundHandler())

	_, err := svc.Run(testCtx(), "playlist", uuid.New().String(), SyncOptions{})
	assert.ErrorIs(t, err, ErrInvalidEntity)

	_, err = svc.Run(testCtx(), models.EntityTypeArtist, "not-a-uuid", SyncOptions{})
	assert.ErrorIs(t, err, ErrInvalidEntity)

	// Caller mistakes are rejected before any task is tracked.
	var tasks int64
	require.NoError(t, db.Model(&models.SyncTask{}).Count(&tasks).Error)
	assert.Zero(t, tasks)
}

// enrichmentFailureUpstream serves an unusable spotify search hit while
// Ticketmaster still has one good event for the artist.
func enrichmentFailureUpstream(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		var response struct {
			Artists struct {
				Items []SpotifyArtist `json:"items"`
			} `json:"artists"`
		}
		response.Artists.Items = []SpotifyArtist{{ID: "bad!id", Name: "Radiohead"}}
		writeJSON(t, w, response)
	})

	mux.HandleFunc("/events.json", func(w http.ResponseWriter, r *http.Request) {
		page := tmEventsPage{}
		page.Page.TotalPages = 1

		ev := TMEvent{ID: "tm-event-9", Name: "Radiohead Live", URL: "https://tm.example/9"}
		ev.Dates.Start.DateTime = time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
		ev.Dates.Status.Code = "onsale"
		venue := TMVenue{ID: "tm-venue-9", Name: "Ziggo Dome"}
		venue.City.Name = "Amsterdam"
		ev.Embedded.Venues = []TMVenue{venue}

		page.Embedded.Events = []TMEvent{ev}
		writeJSON(t, w, page)
	})

	return mux
}

func TestSyncArtist_EnrichmentFailureKeepsStoredRow(t *testing.T) {
	svc, db := newTestSyncService(t, enrichmentFailureUpstream(t))

	artist := &models.Artist{
		Name:           "Radiohead",
		TicketmasterID: strPtr("K8vZ9171ob7"),
		MBID:           strPtr("a74b1b7f-71a5-4011-9441-d0b5e4122711"),
	}
	require.NoError(t, db.Create(artist).Error)

	result, err := svc.SyncArtist(testCtx(), artist.ID, SyncOptions{SkipSetlists: true})
	require.NoError(t, err)

	// The rejected search hit is a counted failure, and the stored row
	// still drives the Ticketmaster pass.
	assert.GreaterOrEqual(t, result.Failed, 1)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "artist enrichment")

	var shows int64
	require.NoError(t, db.Model(&models.Show{}).Where("ticketmaster_id = ?", "tm-event-9").Count(&shows).Error)
	assert.EqualValues(t, 1, shows)
}

func TestRun_SkipOptions(t *testing.T) {
	svc, db := newTestSyncService(t, artistSyncUpstream(t))
	artist := seedSyncedArtist(t, db)

	result, err := svc.Run(testCtx(), models.EntityTypeArtist, artist.ID.String(), SyncOptions{
		SkipShows:    true,
		SkipSetlists: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Created)

	var count int64
	require.NoError(t, db.Model(&models.Show{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStaleArtists(t *testing.T) {
	svc, db := newTestSyncService(t, http.NotFoundHandler())

	fresh := seedSyncedArtist(t, db)

	never := &models.Artist{Name: "Wilco"}
	require.NoError(t, db.Create(never).Error)

	old := time.Now().UTC().Add(-72 * time.Hour)
	ancient := &models.Artist{Name: "Pavement", LastSyncedAt: &old}
	require.NoError(t, db.Create(ancient).Error)

	stale, err := svc.StaleArtists(10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	// Never-synced rows come first, then oldest.
	assert.Equal(t, never.ID, stale[0].ID)
	assert.Equal(t, ancient.ID, stale[1].ID)

	for _, a := range stale {
		assert.NotEqual(t, fresh.ID, a.ID)
	}
}
