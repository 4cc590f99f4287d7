package services

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/theset/backend/internal/models"
)

// Vendor payloads arrive loosely shaped; everything below normalizes them
// into the typed inputs reconciliation runs on. No reconciliation logic
// belongs here.

// ArtistInputFromSpotify maps a Spotify artist onto a candidate record.
func ArtistInputFromSpotify(sa *SpotifyArtist) ArtistInput {
	in := ArtistInput{
		Name:       sa.Name,
		SpotifyID:  sa.ID,
		Popularity: sa.Popularity,
		Followers:  sa.Followers.Total,
		Genres:     sa.Genres,
	}
	if len(sa.Images) > 0 {
		in.ImageURL = sa.Images[0].URL
	}
	return in
}

// VenueInputFromTM maps a Ticketmaster venue onto a candidate record.
func VenueInputFromTM(v *TMVenue) VenueInput {
	in := VenueInput{
		Name:           v.Name,
		TicketmasterID: v.ID,
		City:           v.City.Name,
		State:          v.State.Name,
		Country:        v.Country.Name,
		Address:        v.Address.Line1,
		PostalCode:     v.PostalCode,
	}
	if lat, err := strconv.ParseFloat(v.Location.Latitude, 64); err == nil {
		in.Latitude = lat
	}
	if lng, err := strconv.ParseFloat(v.Location.Longitude, 64); err == nil {
		in.Longitude = lng
	}
	return in
}

// ShowInputFromTMEvent maps a Ticketmaster event onto a candidate show for
// the given artist. The venue id stays vendor-side; SaveShow resolves it.
func ShowInputFromTMEvent(ev TMEvent, artistID uuid.UUID, venueID *uuid.UUID) ShowInput {
	in := ShowInput{
		Name:           ev.Name,
		Date:           ParseEventDate(ev),
		ArtistID:       artistID,
		VenueID:        venueID,
		TicketmasterID: ev.ID,
		TicketURL:      ev.URL,
		Status:         showStatusFromTM(ev.Dates.Status.Code),
	}
	if venueID == nil && len(ev.Embedded.Venues) > 0 {
		in.TicketmasterVenueID = ev.Embedded.Venues[0].ID
	}
	return in
}

func showStatusFromTM(code string) string {
	switch code {
	case "cancelled", "canceled":
		return models.ShowStatusCanceled
	case "offsale":
		return models.ShowStatusCompleted
	default:
		return models.ShowStatusUpcoming
	}
}

// VenueInputFromSFM maps the venue block of a Setlist.fm setlist.
func VenueInputFromSFM(sl *SFMSetlist) VenueInput {
	return VenueInput{
		Name:      sl.Venue.Name,
		City:      sl.Venue.City.Name,
		State:     sl.Venue.City.State,
		Country:   sl.Venue.City.Country.Name,
		Latitude:  sl.Venue.City.Coords.Lat,
		Longitude: sl.Venue.City.Coords.Long,
	}
}

// ParseSFMEventDate parses Setlist.fm's dd-MM-yyyy event dates.
func ParseSFMEventDate(s string) time.Time {
	t, err := time.Parse("02-01-2006", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FlattenSFMSets flattens nested sets-of-sets into one ordered song list,
// preserving source order as the position index. Songs of encore sets carry
// the encore flag. Tape-only entries (walk-on music etc.) are skipped.
func FlattenSFMSets(sets []SFMSet) []SongInput {
	var songs []SongInput
	position := 0
	for _, set := range sets {
		for _, song := range set.Songs {
			if song.Tape || song.Name == "" {
				continue
			}
			songs = append(songs, SongInput{
				Title:    song.Name,
				Position: position,
				IsEncore: set.Encore > 0,
			})
			position++
		}
	}
	return songs
}
