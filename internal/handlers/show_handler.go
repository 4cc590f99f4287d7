package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/theset/backend/internal/services"
)

type ShowHandler struct {
	artistService *services.ArtistService
	venueService  *services.VenueService
	showService   *services.ShowService
	oplog         *services.OpLogService
}

func NewShowHandler(artistService *services.ArtistService, venueService *services.VenueService, showService *services.ShowService, oplog *services.OpLogService) *ShowHandler {
	return &ShowHandler{
		artistService: artistService,
		venueService:  venueService,
		showService:   showService,
		oplog:         oplog,
	}
}

type saveShowRequest struct {
	Show struct {
		ID             string    `json:"id"`
		Name           string    `json:"name" binding:"required"`
		Date           time.Time `json:"date"`
		TicketmasterID string    `json:"ticketmaster_id"`
		TicketURL      string    `json:"ticket_url"`
		Status         string    `json:"status"`
	} `json:"show" binding:"required"`
	Artist struct {
		ID             string `json:"id"`
		Name           string `json:"name" binding:"required"`
		SpotifyID      string `json:"spotify_id"`
		TicketmasterID string `json:"ticketmaster_id"`
	} `json:"artist" binding:"required"`
	Venue *struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		TicketmasterID string `json:"ticketmaster_id"`
		City           string `json:"city"`
		Country        string `json:"country"`
	} `json:"venue"`
}

// SaveShow idempotently upserts a show together with its artist and venue.
// The venue may be omitted; the show is stored provisionally and a
// background venue sync fills it in when an external venue id is known.
func (h *ShowHandler) SaveShow(c *gin.Context) {
	var req saveShowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "show and artist are required"})
		return
	}
	ctx := c.Request.Context()

	artist, err := h.artistService.SaveArtist(ctx, services.ArtistInput{
		ID:             req.Artist.ID,
		Name:           req.Artist.Name,
		SpotifyID:      req.Artist.SpotifyID,
		TicketmasterID: req.Artist.TicketmasterID,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	showInput := services.ShowInput{
		ID:             req.Show.ID,
		Name:           req.Show.Name,
		Date:           req.Show.Date,
		ArtistID:       artist.ID,
		TicketmasterID: req.Show.TicketmasterID,
		TicketURL:      req.Show.TicketURL,
		Status:         req.Show.Status,
	}

	if req.Venue != nil && req.Venue.Name != "" {
		venue, verr := h.venueService.SaveVenue(ctx, services.VenueInput{
			ID:             req.Venue.ID,
			Name:           req.Venue.Name,
			TicketmasterID: req.Venue.TicketmasterID,
			City:           req.Venue.City,
			Country:        req.Venue.Country,
		})
		if verr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		showInput.VenueID = &venue.ID
	} else if req.Venue != nil && req.Venue.TicketmasterID != "" {
		showInput.TicketmasterVenueID = req.Venue.TicketmasterID
	}

	show, err := h.showService.SaveShow(ctx, showInput)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "showId": show.ID})
}
