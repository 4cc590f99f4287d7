package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/theset/backend/internal/models"
	"github.com/theset/backend/internal/services"
)

type PublicHandler struct {
	artistService  *services.ArtistService
	showService    *services.ShowService
	setlistService *services.SetlistService
	voteService    *services.VoteService
	syncService    *services.SyncService
	runner         *services.BackgroundRunner
	oplog          *services.OpLogService
}

func NewPublicHandler(artistService *services.ArtistService, showService *services.ShowService, setlistService *services.SetlistService,
	voteService *services.VoteService, syncService *services.SyncService, runner *services.BackgroundRunner, oplog *services.OpLogService) *PublicHandler {
	return &PublicHandler{
		artistService:  artistService,
		showService:    showService,
		setlistService: setlistService,
		voteService:    voteService,
		syncService:    syncService,
		runner:         runner,
		oplog:          oplog,
	}
}

// GetArtist retrieves a stored artist.
func (h *PublicHandler) GetArtist(c *gin.Context) {
	artistID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid artist id"})
		return
	}

	artist, err := h.artistService.GetArtistByID(artistID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Artist not found"})
			return
		}
		h.oplog.RecordError("artists/:id", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve artist"})
		return
	}

	c.JSON(http.StatusOK, artist)
}

// GetUpcomingShows lists display-ready upcoming shows.
func (h *PublicHandler) GetUpcomingShows(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	shows, total, err := h.showService.GetUpcomingShows(offset, limit)
	if err != nil {
		h.oplog.RecordError("shows/upcoming", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve shows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shows": shows,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetArtistSetlists serves cached setlist/show data for an artist. Sparse
// local data (< 2 shows) triggers a background refresh from the setlist
// catalog; the response never waits for it.
func (h *PublicHandler) GetArtistSetlists(c *gin.Context) {
	artistID, err := uuid.Parse(c.Param("artistId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid artist id"})
		return
	}

	data, sparse, err := h.setlistService.GetArtistSetlists(artistID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Artist not found"})
			return
		}
		h.oplog.RecordError("setlist/:artistId", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve setlists"})
		return
	}

	if sparse {
		h.runner.Submit("setlist_refresh", func(ctx context.Context) error {
			_, rerr := h.syncService.Run(ctx, models.EntityTypeArtist, artistID.String(), services.SyncOptions{SkipShows: true})
			if errors.Is(rerr, services.ErrSyncNotEligible) {
				return nil
			}
			return rerr
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": data, "fromCache": true})
}

// GetSetlistSongs lists a setlist's songs in order with counters and, when
// the caller is identified, per-song voted flags.
func (h *PublicHandler) GetSetlistSongs(c *gin.Context) {
	setlistID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setlist id"})
		return
	}

	voterID := resolveVoterID(c)
	songs, voted, err := h.voteService.SongsWithVotedFlags(setlistID, voterID)
	if err != nil {
		h.oplog.RecordError("setlists/:id/songs", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve songs"})
		return
	}

	songList := make([]gin.H, len(songs))
	for i, song := range songs {
		songList[i] = gin.H{
			"id":               song.ID,
			"title":            song.Title,
			"position":         song.Position,
			"votes":            song.VoteCount,
			"is_encore":        song.IsEncore,
			"spotify_track_id": song.SpotifyTrackID,
			"voted":            voted[song.ID],
		}
	}

	c.JSON(http.StatusOK, gin.H{"songs": songList})
}
