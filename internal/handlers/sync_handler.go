package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/theset/backend/internal/services"
)

type SyncHandler struct {
	syncService *services.SyncService
	oplog       *services.OpLogService
}

func NewSyncHandler(syncService *services.SyncService, oplog *services.OpLogService) *SyncHandler {
	return &SyncHandler{syncService: syncService, oplog: oplog}
}

type unifiedSyncRequest struct {
	EntityType string               `json:"entityType" binding:"required"`
	EntityID   string               `json:"entityId" binding:"required"`
	Options    services.SyncOptions `json:"options"`
}

// UnifiedSync runs one sync task for any entity type.
func (h *SyncHandler) UnifiedSync(c *gin.Context) {
	var req unifiedSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entityType and entityId are required"})
		return
	}

	result, err := h.syncService.Run(c.Request.Context(), req.EntityType, req.EntityID, req.Options)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidEntity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrSyncNotEligible):
			c.JSON(http.StatusConflict, gin.H{"error": "Entity was synced recently; retry later or pass options.force"})
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
		default:
			h.oplog.RecordError("unified-sync", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

type venueSyncRequest struct {
	VenueID             string `json:"venueId" binding:"required"`
	TicketmasterVenueID string `json:"ticketmasterVenueId"`
}

// SyncVenue reconciles all shows at a venue.
func (h *SyncHandler) SyncVenue(c *gin.Context) {
	var req venueSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "venueId is required"})
		return
	}
	venueID, err := uuid.Parse(req.VenueID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "venueId must be a valid id"})
		return
	}

	result, err := h.syncService.SyncVenue(c.Request.Context(), venueID, req.TicketmasterVenueID, services.SyncOptions{})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Venue not found"})
			return
		}
		h.oplog.RecordError("sync/venue", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Venue sync failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"savedShows":  result.Created + result.Updated,
		"failedShows": result.Failed,
		"message":     fmt.Sprintf("Processed %d events for venue", result.Processed),
	})
}
