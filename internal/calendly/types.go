package calendly

// Slot is one bookable appointment time, formatted for display.
type Slot struct {
	Date       string `json:"date"`     // e.g. "Monday, January 27, 2026"
	Time       string `json:"time"`     // e.g. "02:30 PM"
	ISOTime    string `json:"iso_time"` // RFC 3339 instant from the upstream API
	BookingURL string `json:"booking_url"`
}

type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventCanceled EventStatus = "canceled"
)

// BookingEvent is a scheduled appointment as reported by the upstream API.
type BookingEvent struct {
	Name      string      `json:"name"`
	StartTime string      `json:"start_time"` // RFC 3339
	Status    EventStatus `json:"status"`
	URI       string      `json:"uri"`
}

// Invitee is one attendee of a scheduled event.
type Invitee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	URI   string `json:"uri"`
}
