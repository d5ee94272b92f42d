package webhook

import (
	"context"
	"fmt"
	"log/slog"
)

// Invalidator is the slice of the scheduling cache the webhook layer is
// allowed to touch: the two invalidation entry points, nothing else.
type Invalidator interface {
	InvalidateAvailability()
	InvalidateBookings(email string)
}

// Recorder persists processed events for auditing. Optional.
type Recorder interface {
	RecordEvent(ctx context.Context, eventType, inviteeEmail string, payload []byte) error
}

// Result is the response body returned to the webhook sender.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

type Handler struct {
	cache Invalidator
	dedup Deduper  // nil disables dedup
	audit Recorder // nil disables auditing
}

func NewHandler(cache Invalidator, dedup Deduper, audit Recorder) *Handler {
	return &Handler{cache: cache, dedup: dedup, audit: audit}
}

// Handle applies one parsed event to the cache.
//
// Booking created and cancelled both clear the availability entry and the
// affected patient's booking entry. No-shows change nothing bookable, so
// they are logged only. Unknown event types are ignored.
func (h *Handler) Handle(ctx context.Context, ev Event) Result {
	slog.Info("received webhook", "event", ev.Type, "invitee_email", ev.InviteeEmail)

	if h.dedup != nil && ev.EventURI != "" {
		seen, err := h.dedup.Seen(ctx, ev.EventURI)
		if err != nil {
			slog.Warn("webhook dedup unavailable, processing anyway", "error", err)
		} else if seen {
			slog.Info("duplicate webhook delivery ignored", "event_uri", ev.EventURI)
			return Result{
				Status:  "ignored",
				Message: "Duplicate delivery",
				Action:  "none",
			}
		}
	}

	var res Result
	switch ev.Type {
	case EventInviteeCreated:
		h.cache.InvalidateAvailability()
		if ev.InviteeEmail != "" {
			h.cache.InvalidateBookings(ev.InviteeEmail)
		}
		slog.Info("booking created",
			"invitee_name", ev.InviteeName,
			"invitee_email", ev.InviteeEmail,
			"scheduled_time", ev.ScheduledTime)
		res = Result{
			Status:  "processed",
			Message: fmt.Sprintf("Booking created for %s", ev.InviteeEmail),
			Action:  "cache_invalidated",
		}

	case EventInviteeCanceled:
		h.cache.InvalidateAvailability()
		if ev.InviteeEmail != "" {
			h.cache.InvalidateBookings(ev.InviteeEmail)
		}
		slog.Info("booking cancelled",
			"invitee_name", ev.InviteeName,
			"invitee_email", ev.InviteeEmail,
			"scheduled_time", ev.ScheduledTime)
		res = Result{
			Status:  "processed",
			Message: fmt.Sprintf("Cancellation processed for %s", ev.InviteeEmail),
			Action:  "cache_invalidated",
		}

	case EventInviteeNoShow:
		slog.Info("no-show recorded", "invitee_email", ev.InviteeEmail)
		res = Result{
			Status:  "processed",
			Message: "No-show event recorded",
			Action:  "logged",
		}

	default:
		slog.Warn("unknown webhook event type", "event", ev.Type)
		return Result{
			Status:  "ignored",
			Message: fmt.Sprintf("Unknown event type: %s", ev.Type),
			Action:  "none",
		}
	}

	if h.audit != nil {
		if err := h.audit.RecordEvent(ctx, ev.Type, ev.InviteeEmail, ev.Raw); err != nil {
			slog.Error("failed to record webhook event", "event", ev.Type, "error", err)
		}
	}

	return res
}

// HandlePing answers the verification request the provider sends when a
// webhook subscription is first created.
func (h *Handler) HandlePing() Result {
	slog.Info("webhook ping received")
	return Result{
		Status:  "ok",
		Message: "Webhook endpoint is active",
	}
}
