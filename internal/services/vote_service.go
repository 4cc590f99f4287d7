package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/theset/backend/internal/config"
	"github.com/theset/backend/internal/models"
	"gorm.io/gorm"
)

// VotesChannel is the Redis pub/sub channel carrying counter updates.
const VotesChannel = "votes:updates"

// ErrAnonVoteLimit is returned when an anonymous fingerprint has used up
// its daily vote budget.
var ErrAnonVoteLimit = errors.New("anonymous vote limit reached")

// VoteResult reports the outcome of a cast attempt.
type VoteResult struct {
	AlreadyVoted bool `json:"already_voted"`
	Votes        int  `json:"votes"`
}

// VoteUpdate is the payload published on VotesChannel.
type VoteUpdate struct {
	SetlistSongID uuid.UUID `json:"setlist_song_id"`
	Votes         int       `json:"votes"`
}

type VoteService struct {
	db    *gorm.DB
	redis *redis.Client
	cfg   *config.Config
}

func NewVoteService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *VoteService {
	return &VoteService{db: db, redis: redisClient, cfg: cfg}
}

// CastVote records one vote for (voter, song). A second attempt for the
// same pair is a no-op reported as AlreadyVoted, whether it is caught by
// the advisory precheck or by the unique index under a race. The counter
// moves only via a single atomic UPDATE, never read-modify-write.
func (s *VoteService) CastVote(ctx context.Context, songID uuid.UUID, voterID string) (*VoteResult, error) {
	if voterID == "" {
		return nil, errors.New("voter id is required")
	}

	var song models.SetlistSong
	if err := s.db.First(&song, "id = ?", songID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Advisory precheck; the unique index is the real guard.
	var count int64
	if err := s.db.Model(&models.Vote{}).
		Where("setlist_song_id = ? AND voter_id = ?", songID, voterID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return &VoteResult{AlreadyVoted: true, Votes: song.VoteCount}, nil
	}

	anon := strings.HasPrefix(voterID, models.AnonVoterPrefix)
	if anon {
		if err := s.consumeAnonQuota(ctx, voterID); err != nil {
			return nil, err
		}
	}

	// Insert and increment commit together so the counter never falls
	// behind the surviving vote rows.
	raced := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vote := &models.Vote{SetlistSongID: songID, VoterID: voterID}
		if err := tx.Create(vote).Error; err != nil {
			if isDuplicateKeyError(err) {
				raced = true
			}
			return err
		}
		return tx.Model(&models.SetlistSong{}).
			Where("id = ?", songID).
			Update("vote_count", gorm.Expr("vote_count + 1")).Error
	})
	if txErr != nil {
		if anon {
			s.refundAnonQuota(ctx, voterID)
		}
		if raced {
			return &VoteResult{AlreadyVoted: true, Votes: song.VoteCount}, nil
		}
		return nil, txErr
	}

	if err := s.db.First(&song, "id = ?", songID).Error; err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, songID, song.VoteCount)

	return &VoteResult{AlreadyVoted: false, Votes: song.VoteCount}, nil
}

// HasVoted reports whether the voter already voted for the song.
func (s *VoteService) HasVoted(songID uuid.UUID, voterID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Vote{}).
		Where("setlist_song_id = ? AND voter_id = ?", songID, voterID).
		Count(&count).Error
	return count > 0, err
}

// SongVotes returns the denormalized counter for a song.
func (s *VoteService) SongVotes(songID uuid.UUID) (int, error) {
	var song models.SetlistSong
	if err := s.db.First(&song, "id = ?", songID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return song.VoteCount, nil
}

// SongsWithVotedFlags returns a setlist's songs in order, marking the ones
// the given voter has voted for. voterID may be empty for anonymous reads.
func (s *VoteService) SongsWithVotedFlags(setlistID uuid.UUID, voterID string) ([]models.SetlistSong, map[uuid.UUID]bool, error) {
	var songs []models.SetlistSong
	if err := s.db.Where("setlist_id = ?", setlistID).Order("position ASC").Find(&songs).Error; err != nil {
		return nil, nil, err
	}

	voted := make(map[uuid.UUID]bool)
	if voterID != "" && len(songs) > 0 {
		ids := make([]uuid.UUID, len(songs))
		for i, song := range songs {
			ids[i] = song.ID
		}
		var votes []models.Vote
		if err := s.db.Where("voter_id = ? AND setlist_song_id IN ?", voterID, ids).Find(&votes).Error; err != nil {
			return nil, nil, err
		}
		for _, v := range votes {
			voted[v.SetlistSongID] = true
		}
	}
	return songs, voted, nil
}

// consumeAnonQuota enforces the per-day anonymous budget in Redis. A Redis
// outage degrades the quota to advisory rather than blocking votes, the
// same policy the rate limiter follows.
func (s *VoteService) consumeAnonQuota(ctx context.Context, voterID string) error {
	if s.redis == nil || s.cfg.AnonVoteDailyLimit <= 0 {
		return nil
	}
	key := fmt.Sprintf("anon_votes:%s:%s", voterID, time.Now().UTC().Format("2006-01-02"))

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("WARN: anon vote quota unavailable: %v", err)
		return nil
	}
	if count == 1 {
		s.redis.Expire(ctx, key, 24*time.Hour)
	}
	if count > int64(s.cfg.AnonVoteDailyLimit) {
		return ErrAnonVoteLimit
	}
	return nil
}

// refundAnonQuota returns a unit consumed for a vote that never landed,
// such as losing the unique-index race to an earlier vote.
func (s *VoteService) refundAnonQuota(ctx context.Context, voterID string) {
	if s.redis == nil || s.cfg.AnonVoteDailyLimit <= 0 {
		return
	}
	key := fmt.Sprintf("anon_votes:%s:%s", voterID, time.Now().UTC().Format("2006-01-02"))
	if err := s.redis.Decr(ctx, key).Err(); err != nil {
		log.Printf("WARN: anon vote quota refund failed: %v", err)
	}
}

func (s *VoteService) publishUpdate(ctx context.Context, songID uuid.UUID, votes int) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(VoteUpdate{SetlistSongID: songID, Votes: votes})
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, VotesChannel, payload).Err(); err != nil {
		log.Printf("WARN: vote update publish failed: %v", err)
	}
}
