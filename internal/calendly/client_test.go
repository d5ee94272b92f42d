package calendly

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("test-token",
		WithBaseURL(srv.URL),
		WithMaxRetries(1),
	)
	return srv, client
}

func writeUser(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]any{
		"resource": map[string]string{
			"uri":                  "https://api.calendly.com/users/USER1",
			"current_organization": "https://api.calendly.com/organizations/ORG1",
		},
	})
}

func writeEventTypes(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]any{
		"collection": []map[string]string{
			{"uri": "https://api.calendly.com/event_types/ET1"},
		},
	})
}

func TestFetchAvailableSlots(t *testing.T) {
	start := time.Date(2026, time.September, 7, 14, 30, 0, 0, time.UTC)

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/users/me":
			writeUser(w)
		case "/event_types":
			writeEventTypes(w)
		case "/event_type_available_times":
			assert.Equal(t, "https://api.calendly.com/event_types/ET1", r.URL.Query().Get("event_type"))
			json.NewEncoder(w).Encode(map[string]any{
				"collection": []map[string]string{
					{"start_time": start.Format(time.RFC3339), "scheduling_url": "https://calendly.com/s/1"},
					{"start_time": start.Add(time.Hour).Format(time.RFC3339), "scheduling_url": "https://calendly.com/s/2"},
					{"start_time": "garbage", "scheduling_url": "https://calendly.com/s/3"},
				},
			})
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	slots, err := client.FetchAvailableSlots(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, slots, 2, "unparseable start times are skipped")

	assert.Equal(t, "Monday, September 07, 2026", slots[0].Date)
	assert.Equal(t, "02:30 PM", slots[0].Time)
	assert.Equal(t, start.Format(time.RFC3339), slots[0].ISOTime)
	assert.Equal(t, "https://calendly.com/s/1", slots[0].BookingURL)
	assert.Equal(t, "03:30 PM", slots[1].Time)
}

func TestFetchAvailableSlots_MaxCap(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			writeUser(w)
		case "/event_types":
			writeEventTypes(w)
		case "/event_type_available_times":
			var collection []map[string]string
			base := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Hour)
			for i := 0; i < 10; i++ {
				collection = append(collection, map[string]string{
					"start_time":     base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
					"scheduling_url": "https://calendly.com/s/x",
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"collection": collection})
		}
	})

	slots, err := client.FetchAvailableSlots(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestFetchAvailableSlots_CachesEventTypeLookup(t *testing.T) {
	var userCalls, typeCalls int32

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			atomic.AddInt32(&userCalls, 1)
			writeUser(w)
		case "/event_types":
			atomic.AddInt32(&typeCalls, 1)
			writeEventTypes(w)
		case "/event_type_available_times":
			json.NewEncoder(w).Encode(map[string]any{"collection": []map[string]string{}})
		}
	})

	ctx := context.Background()
	_, err := client.FetchAvailableSlots(ctx, 100)
	require.NoError(t, err)
	_, err = client.FetchAvailableSlots(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&userCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&typeCalls))
}

func TestFetchScheduledEvents(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			writeUser(w)
		case "/scheduled_events":
			assert.Equal(t, "john@example.com", r.URL.Query().Get("invitee_email"))
			assert.Equal(t, "active", r.URL.Query().Get("status"))
			json.NewEncoder(w).Encode(map[string]any{
				"collection": []map[string]string{
					{
						"name":       "Dental Check-up",
						"start_time": "2026-09-07T14:30:00Z",
						"status":     "active",
						"uri":        "https://api.calendly.com/scheduled_events/EV1",
					},
				},
			})
		}
	})

	events, err := client.FetchScheduledEvents(context.Background(), "john@example.com", EventActive)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Dental Check-up", events[0].Name)
	assert.Equal(t, EventActive, events[0].Status)
}

func TestCancelEvent(t *testing.T) {
	var gotReason string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scheduled_events/EV1/cancellation", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotReason = body["reason"]
		w.WriteHeader(http.StatusCreated)
	})

	err := client.CancelEvent(context.Background(), "EV1", "Patient requested cancellation")
	require.NoError(t, err)
	assert.Equal(t, "Patient requested cancellation", gotReason)
}

func TestRequest_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"title":"Unauthenticated"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient("bad-token", WithBaseURL(srv.URL), WithMaxRetries(3))

	_, err := client.FetchScheduledEvents(context.Background(), "john@example.com", EventActive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "401 must not be retried")
}

func TestRequest_RetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "oops", http.StatusInternalServerError)
			return
		}
		writeUser(w)
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL), WithMaxRetries(2))

	uri, err := client.currentUserURI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.calendly.com/users/USER1", uri)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRequest_RetryHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL), WithMaxRetries(5))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.currentUserURI(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "backoff waits must abort on context cancel")
}

func TestCreateSchedulingLink(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			writeUser(w)
		case "/event_types":
			writeEventTypes(w)
		case "/scheduling_links":
			assert.Equal(t, http.MethodPost, r.Method)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "EventType", body["owner_type"])
			json.NewEncoder(w).Encode(map[string]any{
				"resource": map[string]string{"booking_url": "https://calendly.com/d/onetime"},
			})
		}
	})

	link, err := client.CreateSchedulingLink(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://calendly.com/d/onetime", link)
}
