package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTMService(t *testing.T, handler http.HandlerFunc) *TicketmasterService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewTicketmasterService(testConfig())
	svc.client = server.Client()
	svc.baseURL = server.URL
	return svc
}

func TestTMEventsByAttraction_Pagination(t *testing.T) {
	svc := newTestTMService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events.json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "K8vZ9171ob7", r.URL.Query().Get("attractionId"))

		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `{"_embedded":{"events":[{"id":"ev-%s","name":"Show %s"}]},"page":{"totalPages":2,"number":%s}}`, page, page, page)
	})

	events, err := svc.EventsByAttraction(testCtx(), "K8vZ9171ob7")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-0", events[0].ID)
	assert.Equal(t, "ev-1", events[1].ID)
}

func TestTMGetVenue(t *testing.T) {
	svc := newTestTMService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/venues/KovZpZA6kltA.json", r.URL.Path)
		w.Write([]byte(`{"id":"KovZpZA6kltA","name":"Red Rocks Amphitheatre","city":{"name":"Morrison"},"location":{"latitude":"39.6654","longitude":"-105.2057"}}`))
	})

	venue, err := svc.GetVenue(testCtx(), "KovZpZA6kltA")
	require.NoError(t, err)
	assert.Equal(t, "Red Rocks Amphitheatre", venue.Name)
	assert.Equal(t, "Morrison", venue.City.Name)
	assert.Equal(t, "39.6654", venue.Location.Latitude)
}

func TestTMSearchAttraction(t *testing.T) {
	svc := newTestTMService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attractions.json", r.URL.Path)
		assert.Equal(t, "Radiohead", r.URL.Query().Get("keyword"))
		w.Write([]byte(`{"_embedded":{"attractions":[{"id":"K8vZ9171ob7","name":"Radiohead"}]}}`))
	})

	id, err := svc.SearchAttraction(testCtx(), "Radiohead")
	require.NoError(t, err)
	assert.Equal(t, "K8vZ9171ob7", id)
}

func TestTMSearchAttraction_NoMatch(t *testing.T) {
	svc := newTestTMService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_embedded":{"attractions":[]}}`))
	})

	_, err := svc.SearchAttraction(testCtx(), "zzz nobody")
	assert.Error(t, err)
}

func TestTMMissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.TicketmasterAPIKey = ""
	svc := NewTicketmasterService(cfg)

	_, err := svc.GetEvent(testCtx(), "ev-1")
	assert.Error(t, err)
}
