package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theset/backend/internal/models"
)

func newTestVenueService(t *testing.T) *VenueService {
	t.Helper()
	db := newTestDB(t)
	return NewVenueService(db, nil, testConfig(), NewOpLogService(db))
}

func TestSaveVenue_KeyedByTicketmasterID(t *testing.T) {
	svc := newTestVenueService(t)

	first, err := svc.SaveVenue(testCtx(), VenueInput{
		Name:           "Red Rocks Amphitheatre",
		TicketmasterID: "KovZpZA6kltA",
		City:           "Morrison",
		State:          "Colorado",
	})
	require.NoError(t, err)

	second, err := svc.SaveVenue(testCtx(), VenueInput{
		Name:           "Red Rocks Amphitheatre",
		TicketmasterID: "KovZpZA6kltA",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, svc.db.Model(&models.Venue{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSaveVenue_MergePreservesStoredFields(t *testing.T) {
	svc := newTestVenueService(t)

	first, err := svc.SaveVenue(testCtx(), VenueInput{
		Name:           "Red Rocks Amphitheatre",
		TicketmasterID: "KovZpZA6kltA",
		City:           "Morrison",
		Latitude:       39.6654,
		Longitude:      -105.2057,
	})
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, svc.db.Model(&models.Venue{}).
		Where("id = ?", first.ID).
		Update("last_synced_at", stale).Error)

	// The re-import carries no geo data; the stored coordinates survive.
	merged, err := svc.SaveVenue(testCtx(), VenueInput{
		Name:           "Red Rocks Amphitheatre",
		TicketmasterID: "KovZpZA6kltA",
		State:          "Colorado",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, "Morrison", merged.City)
	assert.Equal(t, "Colorado", merged.State)
	assert.InDelta(t, 39.6654, merged.Latitude, 0.0001)
}

func TestSaveVenue_WithoutExternalID(t *testing.T) {
	svc := newTestVenueService(t)

	// Setlist.fm venues arrive without a Ticketmaster id; each save without
	// an id match keys on the generated primary key.
	venue, err := svc.SaveVenue(testCtx(), VenueInput{
		Name: "Paradiso",
		City: "Amsterdam",
	})
	require.NoError(t, err)
	assert.Nil(t, venue.TicketmasterID)

	again, err := svc.SaveVenue(testCtx(), VenueInput{
		ID:             venue.ID.String(),
		Name:           "Paradiso",
		TicketmasterID: "Z198xZG2Zae7t",
	})
	require.NoError(t, err)
	assert.Equal(t, venue.ID, again.ID)
	require.NotNil(t, again.TicketmasterID)
}

func TestSaveVenue_RequiresName(t *testing.T) {
	svc := newTestVenueService(t)

	_, err := svc.SaveVenue(testCtx(), VenueInput{TicketmasterID: "KovZpZA6kltA"})
	assert.Error(t, err)
}
