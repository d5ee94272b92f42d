package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/acmedental/scheduling-assistant/internal/cache"
	"github.com/acmedental/scheduling-assistant/internal/eventlog"
	"github.com/acmedental/scheduling-assistant/internal/webhook"
)

// ChatAgent is the conversational layer the chat endpoints delegate to.
type ChatAgent interface {
	Respond(ctx context.Context, threadID, message string) (string, error)
	RespondStream(ctx context.Context, threadID, message string, emit func(chunk string) error) error
}

const maxWebhookBody = 1 << 20 // 1 MiB

func chatHandler(agent ChatAgent, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		response, err := agent.Respond(ctx, req.ThreadID, req.Message)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				writeError(w, http.StatusGatewayTimeout, "request_timeout",
					fmt.Sprintf("Request timed out after %s. Please try again.", timeout))
				return
			}
			slog.Error("chat request failed", "thread_id", req.ThreadID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error",
				"Error processing request. Please try again.")
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{
			Response: response,
			ThreadID: req.ThreadID,
		})
	}
}

func chatStreamHandler(agent ChatAgent, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		flusher, canFlush := w.(http.Flusher)
		if !canFlush {
			writeError(w, http.StatusInternalServerError, "streaming_unsupported",
				"response writer does not support streaming")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		err := agent.RespondStream(ctx, req.ThreadID, req.Message, func(chunk string) error {
			writeSSE(w, "message", chunk)
			flusher.Flush()
			return nil
		})
		if err != nil {
			slog.Error("chat stream failed", "thread_id", req.ThreadID, "error", err)
			writeSSE(w, "error", "Error processing request. Please try again.")
			flusher.Flush()
			return
		}

		writeSSE(w, "done", "")
		flusher.Flush()
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return ChatRequest{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty")
		return ChatRequest{}, false
	}
	if len(req.Message) > 2000 {
		writeError(w, http.StatusBadRequest, "message_too_long", "message must be at most 2000 characters")
		return ChatRequest{}, false
	}
	if req.ThreadID == "" {
		req.ThreadID = "default"
	}
	return req, true
}

// writeSSE emits one server-sent event. Multi-line data becomes one data:
// line per line, per the SSE framing rules.
func writeSSE(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func availabilityHandler(schedCache *cache.SchedulingCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pref := cache.TimePreference(r.URL.Query().Get("time_preference"))
		if pref == "" {
			pref = cache.PreferenceAll
		}

		cached, age := schedCache.AvailabilityAge()

		slots, err := schedCache.GetAvailability(r.Context(), pref, false)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "availability_unavailable",
				"could not fetch availability, please try again later")
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Slots:           slots,
			Cached:          cached,
			CacheAgeSeconds: age.Seconds(),
		})
	}
}

func bookingSearchHandler(schedCache *cache.SchedulingCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if !strings.Contains(req.Email, "@") {
			writeError(w, http.StatusBadRequest, "invalid_email", "email must be a valid address")
			return
		}

		bookings, err := schedCache.GetBookings(r.Context(), req.Email, false)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "bookings_unavailable",
				"could not fetch bookings, please try again later")
			return
		}

		writeJSON(w, http.StatusOK, BookingSearchResponse{
			Email:    req.Email,
			Bookings: bookings,
			Count:    len(bookings),
		})
	}
}

func statsHandler(schedCache *cache.SchedulingCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, schedCache.GetStats())
	}
}

func webhookHandler(h *webhook.Handler, signingKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "could not read request body")
			return
		}

		if signingKey != "" {
			signature := r.Header.Get("Calendly-Webhook-Signature")
			if signature == "" {
				writeError(w, http.StatusUnauthorized, "missing_signature", "missing webhook signature")
				return
			}
			if !webhook.VerifySignature(body, signature, signingKey) {
				writeError(w, http.StatusUnauthorized, "invalid_signature", "invalid webhook signature")
				return
			}
		}

		ev, err := webhook.Parse(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", "invalid JSON payload")
			return
		}

		if ev.Type == webhook.EventPing || ev.Type == "" {
			writeJSON(w, http.StatusOK, h.HandlePing())
			return
		}

		writeJSON(w, http.StatusOK, h.Handle(r.Context(), ev))
	}
}

func webhookEventsHandler(store *eventlog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		events, err := store.RecentEvents(r.Context(), limit)
		if err != nil {
			slog.Error("failed to list webhook events", "error", err)
			writeError(w, http.StatusServiceUnavailable, "eventlog_unavailable",
				"could not fetch webhook events, please try again later")
			return
		}

		writeJSON(w, http.StatusOK, WebhookEventsResponse{
			Events: events,
			Count:  len(events),
		})
	}
}

func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    "Acme Dental AI Agent",
			"version": "1.0.0",
			"endpoints": map[string]string{
				"chat":         "POST /chat",
				"chat_stream":  "POST /chat/stream",
				"health":       "GET /health",
				"availability": "GET /availability",
				"bookings":     "POST /bookings/search",
				"stats":        "GET /stats",
				"webhook":      "POST /webhooks/calendly",
			},
		})
	}
}
