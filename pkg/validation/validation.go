package validation

import (
	"regexp"
	"strings"
)

var (
	// Spotify ids are base62, 22 chars.
	spotifyIDRegex = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)
	// MusicBrainz ids (used by Setlist.fm) are UUIDs.
	mbidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	// Ticketmaster Discovery ids are short alphanumeric tokens, e.g. "K8vZ917G7x0".
	ticketmasterIDRegex = regexp.MustCompile(`^[0-9A-Za-z_-]{4,32}$`)
	// Fingerprints from anonymous clients: hex or base64-url, bounded length.
	fingerprintRegex = regexp.MustCompile(`^[0-9A-Za-z_-]{8,128}$`)
)

// ValidateSpotifyID validates a Spotify artist/track identifier.
func ValidateSpotifyID(id string) bool {
	return spotifyIDRegex.MatchString(strings.TrimSpace(id))
}

// ValidateMBID validates a MusicBrainz identifier.
func ValidateMBID(id string) bool {
	return mbidRegex.MatchString(strings.TrimSpace(id))
}

// ValidateTicketmasterID validates a Ticketmaster Discovery identifier.
func ValidateTicketmasterID(id string) bool {
	return ticketmasterIDRegex.MatchString(strings.TrimSpace(id))
}

// ValidateFingerprint validates an anonymous client fingerprint.
func ValidateFingerprint(fp string) bool {
	return fingerprintRegex.MatchString(strings.TrimSpace(fp))
}

// ValidateEntityName checks display names coming from vendor payloads.
func ValidateEntityName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) > 0 && len(name) <= 300
}

// SanitizeName collapses whitespace in vendor-provided names.
func SanitizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
