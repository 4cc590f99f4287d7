package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/theset/backend/internal/models"
	"github.com/theset/backend/internal/services"
	"github.com/theset/backend/pkg/validation"
)

type VoteHandler struct {
	voteService *services.VoteService
	oplog       *services.OpLogService
}

func NewVoteHandler(voteService *services.VoteService, oplog *services.OpLogService) *VoteHandler {
	return &VoteHandler{voteService: voteService, oplog: oplog}
}

type castVoteRequest struct {
	SetlistSongID string `json:"setlistSongId" binding:"required"`
	Fingerprint   string `json:"fingerprint"`
}

// CastVote records one vote for a setlist song. The voter is either the
// authenticated token subject or an anonymous client fingerprint; repeating
// the same vote is a no-op, never an error.
func (h *VoteHandler) CastVote(c *gin.Context) {
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	songID, err := uuid.Parse(req.SetlistSongID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid song id"})
		return
	}

	voterID := resolveVoterID(c)
	if voterID == "" {
		if !validation.ValidateFingerprint(req.Fingerprint) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A token or a valid fingerprint is required"})
			return
		}
		voterID = models.AnonVoterID(req.Fingerprint)
	}

	result, err := h.voteService.CastVote(c.Request.Context(), songID, voterID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Song not found"})
		case errors.Is(err, services.ErrAnonVoteLimit):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Daily vote limit reached"})
		default:
			h.oplog.RecordError("votes", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record vote"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"alreadyVoted": result.AlreadyVoted,
		"votes":        result.Votes,
	})
}

// resolveVoterID returns the voter identity set by the optional-voter
// middleware, or "" when the request carried no usable token.
func resolveVoterID(c *gin.Context) string {
	if v, ok := c.Get("voter_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
