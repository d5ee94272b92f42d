package api

import (
	"github.com/acmedental/scheduling-assistant/internal/cache"
	"github.com/acmedental/scheduling-assistant/internal/calendly"
	"github.com/acmedental/scheduling-assistant/internal/eventlog"
)

type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

type ChatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

type AvailabilityResponse struct {
	Slots           []calendly.Slot `json:"slots"`
	Cached          bool            `json:"cached"`
	CacheAgeSeconds float64         `json:"cache_age_seconds"`
}

type BookingSearchRequest struct {
	Email string `json:"email"`
}

type BookingSearchResponse struct {
	Email    string                  `json:"email"`
	Bookings []calendly.BookingEvent `json:"bookings"`
	Count    int                     `json:"count"`
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	CacheStats   *cache.Stats      `json:"cache_stats,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type WebhookEventsResponse struct {
	Events []eventlog.Event `json:"events"`
	Count  int              `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
