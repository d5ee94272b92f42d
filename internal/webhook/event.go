// Package webhook turns asynchronous booking events from the upstream
// provider into targeted cache invalidations.
//
// Event types:
//   - invitee.created: someone booked an appointment
//   - invitee.canceled: someone cancelled an appointment
//   - invitee_no_show: invitee marked as no-show (log only)
package webhook

import "encoding/json"

const (
	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"
	EventInviteeNoShow   = "invitee_no_show"
	EventPing            = "ping"
)

// Event is a parsed webhook delivery.
type Event struct {
	Type          string
	EventURI      string
	InviteeEmail  string
	InviteeName   string
	ScheduledTime string
	Raw           json.RawMessage
}

type rawPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Invitee struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"invitee"`
		Event struct {
			URI       string `json:"uri"`
			StartTime string `json:"start_time"`
		} `json:"event"`
	} `json:"payload"`
}

// Parse decodes a webhook delivery body into an Event. A body without an
// event field parses as type "" so callers can treat it as a ping.
func Parse(body []byte) (Event, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, err
	}
	return Event{
		Type:          raw.Event,
		EventURI:      raw.Payload.Event.URI,
		InviteeEmail:  raw.Payload.Invitee.Email,
		InviteeName:   raw.Payload.Invitee.Name,
		ScheduledTime: raw.Payload.Event.StartTime,
		Raw:           json.RawMessage(body),
	}, nil
}
