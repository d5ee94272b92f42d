package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/acmedental/scheduling-assistant/internal/cache"
	"github.com/acmedental/scheduling-assistant/internal/calendly"
	"github.com/acmedental/scheduling-assistant/internal/knowledge"
)

func toolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "check_availability",
				Description: "Check available appointment slots for dental check-ups. " +
					"Use this when a patient wants to book an appointment or see available times.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"time_preference": {
							Type:        jsonschema.String,
							Enum:        []string{"morning", "afternoon", "all"},
							Description: "Time preference: 'morning' (9am-12pm), 'afternoon' (12pm-5pm), or 'all'",
						},
					},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "get_booking_link",
				Description: "Get a booking link for a specific time slot. Use after the patient has " +
					"selected a date and time and provided their full name and email address.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"selected_date": {
							Type:        jsonschema.String,
							Description: "The date the patient selected (e.g., 'Monday, January 27, 2026' or 'Monday')",
						},
						"selected_time": {
							Type:        jsonschema.String,
							Description: "The time the patient selected (e.g., '2:30 PM' or '14:30')",
						},
						"patient_name": {
							Type:        jsonschema.String,
							Description: "The patient's full name",
						},
						"patient_email": {
							Type:        jsonschema.String,
							Description: "The patient's email address",
						},
					},
					Required: []string{"selected_date", "selected_time", "patient_name", "patient_email"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "find_booking",
				Description: "Find existing appointments for a patient by their email. Use when a patient " +
					"wants to view, reschedule, or cancel an appointment.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"patient_email": {
							Type:        jsonschema.String,
							Description: "The patient's email address to search for",
						},
					},
					Required: []string{"patient_email"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "cancel_booking",
				Description: "Cancel an existing appointment. Use after finding the patient's booking " +
					"and confirming they want to cancel.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"event_id": {
							Type:        jsonschema.String,
							Description: "The event ID of the appointment to cancel",
						},
						"reason": {
							Type:        jsonschema.String,
							Description: "The reason for cancellation",
						},
					},
					Required: []string{"event_id"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "get_reschedule_options",
				Description: "Get available slots for rescheduling an existing appointment. Use after " +
					"finding the booking and confirming the patient wants to reschedule.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"event_id": {
							Type:        jsonschema.String,
							Description: "The event ID of the appointment to reschedule",
						},
					},
					Required: []string{"event_id"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "answer_faq",
				Description: "Answer frequently asked questions about the clinic: prices, payment, " +
					"what to bring, cancellation policy, insurance, services offered.",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"question": {
							Type:        jsonschema.String,
							Description: "The patient's question about the clinic",
						},
					},
					Required: []string{"question"},
				},
			},
		},
	}
}

func (a *Agent) executeTool(ctx context.Context, threadID, name, arguments string) string {
	switch name {
	case "check_availability":
		var args struct {
			TimePreference string `json:"time_preference"`
		}
		_ = json.Unmarshal([]byte(arguments), &args)
		return a.checkAvailability(ctx, threadID, args.TimePreference)

	case "get_booking_link":
		var args struct {
			SelectedDate string `json:"selected_date"`
			SelectedTime string `json:"selected_time"`
			PatientName  string `json:"patient_name"`
			PatientEmail string `json:"patient_email"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "Invalid tool arguments: " + err.Error()
		}
		return a.getBookingLink(ctx, threadID, args.SelectedDate, args.SelectedTime, args.PatientName, args.PatientEmail)

	case "find_booking":
		var args struct {
			PatientEmail string `json:"patient_email"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "Invalid tool arguments: " + err.Error()
		}
		return a.findBooking(ctx, args.PatientEmail)

	case "cancel_booking":
		var args struct {
			EventID string `json:"event_id"`
			Reason  string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "Invalid tool arguments: " + err.Error()
		}
		return a.cancelBooking(ctx, args.EventID, args.Reason)

	case "get_reschedule_options":
		var args struct {
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "Invalid tool arguments: " + err.Error()
		}
		return a.getRescheduleOptions(ctx, args.EventID)

	case "answer_faq":
		var args struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "Invalid tool arguments: " + err.Error()
		}
		return a.answerFAQ(args.Question)

	default:
		slog.Warn("model requested unknown tool", "tool", name)
		return "Unknown tool: " + name
	}
}

func (a *Agent) checkAvailability(ctx context.Context, threadID, pref string) string {
	slog.Info("tool: check_availability", "preference", pref)

	slots, err := a.cache.GetAvailability(ctx, cache.TimePreference(pref), false)
	if err != nil {
		slog.Error("check_availability failed", "error", err)
		return "Sorry, I couldn't check availability right now. Please try again in a moment."
	}
	if len(slots) == 0 {
		slog.Warn("no available slots found")
		return "No available slots found in the next 7 days. Please try again later."
	}

	// Snapshot for this conversation so later slot matching in the same
	// exchange does not go back through the shared entry.
	a.cache.SetSessionAvailability(threadID, slots)

	var dates []string
	byDate := make(map[string][]string)
	for _, slot := range slots {
		if _, seen := byDate[slot.Date]; !seen {
			dates = append(dates, slot.Date)
		}
		byDate[slot.Date] = append(byDate[slot.Date], slot.Time)
	}
	if len(dates) > 5 {
		dates = dates[:5]
	}

	var b strings.Builder
	b.WriteString("Available appointment slots:\n\n")
	for _, date := range dates {
		fmt.Fprintf(&b, "%s: %s\n", date, strings.Join(byDate[date], ", "))
	}
	b.WriteString("\nJust tell me your preferred date and time (e.g., 'Monday at 2:30 PM').")
	return b.String()
}

var timePattern = regexp.MustCompile(`(?i)(\d{1,2}):?(\d{2})?\s*(AM|PM)?`)

// normalizeTime reduces a spoken time like "2:30 pm" or "14:30" to the
// "HH:MMAM" shape slot display times use once spaces are stripped.
func normalizeTime(raw string) string {
	compact := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
	m := timePattern.FindStringSubmatch(compact)
	if m == nil {
		return compact
	}
	hour := m[1]
	if len(hour) == 1 {
		hour = "0" + hour
	}
	minutes := m[2]
	if minutes == "" {
		minutes = "00"
	}
	return hour + ":" + minutes + strings.ToUpper(m[3])
}

var dayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func dayNameIn(s string) string {
	for _, d := range dayNames {
		if strings.Contains(s, d) {
			return d
		}
	}
	return ""
}

func matchSlot(slots []calendly.Slot, selectedDate, selectedTime string) *calendly.Slot {
	wantTime := normalizeTime(selectedTime)
	wantHasMeridiem := strings.HasSuffix(wantTime, "AM") || strings.HasSuffix(wantTime, "PM")
	selectedDateLower := strings.ToLower(selectedDate)

	for i := range slots {
		slot := &slots[i]
		slotDateLower := strings.ToLower(slot.Date)

		dateMatches := strings.Contains(slotDateLower, selectedDateLower) ||
			strings.Contains(selectedDateLower, slotDateLower)
		if !dateMatches {
			// Fall back to matching by weekday name alone.
			selectedDay := dayNameIn(selectedDateLower)
			slotDay := dayNameIn(slotDateLower)
			dateMatches = selectedDay != "" && selectedDay == slotDay
		}
		if !dateMatches {
			continue
		}

		slotTime := strings.ToUpper(strings.ReplaceAll(slot.Time, " ", ""))
		if wantTime == slotTime {
			return slot
		}
		if !wantHasMeridiem {
			stripped := strings.NewReplacer("AM", "", "PM", "").Replace(slotTime)
			if wantTime == stripped {
				return slot
			}
		}
	}
	return nil
}

func (a *Agent) getBookingLink(ctx context.Context, threadID, selectedDate, selectedTime, patientName, patientEmail string) string {
	slog.Info("tool: get_booking_link",
		"date", selectedDate, "time", selectedTime, "email", patientEmail)

	// Prefer the snapshot this conversation already saw, so the patient's
	// choice matches the list they were shown.
	slots := a.cache.GetSessionAvailability(threadID)
	if slots == nil {
		var err error
		slots, err = a.cache.GetAvailability(ctx, cache.PreferenceAll, false)
		if err != nil {
			slog.Error("get_booking_link availability fetch failed", "error", err)
			return "Sorry, I couldn't generate the booking link right now. Please try again in a moment."
		}
	}
	if len(slots) == 0 {
		return "No available slots found. Please check availability first."
	}

	selected := matchSlot(slots, selectedDate, selectedTime)
	if selected == nil {
		slog.Warn("no matching slot", "date", selectedDate, "time", selectedTime)
		shown := slots
		if len(shown) > 5 {
			shown = shown[:5]
		}
		var opts []string
		for _, s := range shown {
			opts = append(opts, fmt.Sprintf("%s at %s", s.Date, s.Time))
		}
		return fmt.Sprintf("I couldn't find an available slot for %s at %s. "+
			"Please choose from the available times: %s",
			selectedDate, selectedTime, strings.Join(opts, ", "))
	}

	bookingURL := selected.BookingURL
	if bookingURL != "" {
		prefill := url.Values{"name": {patientName}, "email": {patientEmail}}
		sep := "?"
		if strings.Contains(bookingURL, "?") {
			sep = "&"
		}
		bookingURL = bookingURL + sep + prefill.Encode()
	}

	a.cache.SetSessionSelectedSlot(threadID, *selected)
	a.cache.SetSessionPatientInfo(threadID, "name", patientName)
	a.cache.SetSessionPatientInfo(threadID, "email", patientEmail)

	slog.Info("generated booking link", "date", selected.Date, "time", selected.Time)

	return fmt.Sprintf(`Booking details confirmed:
- Patient: %s
- Email: %s
- Date: %s
- Time: %s
- Duration: 30 minutes
- Service: Dental Check-up

Please click this link to complete your booking:
%s

You will receive a confirmation email at %s once the booking is complete.`,
		patientName, patientEmail, selected.Date, selected.Time, bookingURL, patientEmail)
}

func (a *Agent) findBooking(ctx context.Context, patientEmail string) string {
	slog.Info("tool: find_booking", "email", patientEmail)

	events, err := a.cache.GetBookings(ctx, patientEmail, false)
	if err != nil {
		slog.Error("find_booking failed", "email", patientEmail, "error", err)
		return "Sorry, I couldn't search for bookings right now. Please try again in a moment."
	}
	if len(events) == 0 {
		return fmt.Sprintf("No upcoming appointments found for %s. "+
			"Please check if this is the email you used when booking.", patientEmail)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d appointment(s) for %s:\n\n", len(events), patientEmail)
	for i, ev := range events {
		formatted := "Unknown"
		if t, err := time.Parse(time.RFC3339, ev.StartTime); err == nil {
			formatted = t.Local().Format("Monday, January 02, 2006 at 03:04 PM")
		}
		name := ev.Name
		if name == "" {
			name = "Dental Check-up"
		}
		eventID := ev.URI
		if idx := strings.LastIndex(eventID, "/"); idx >= 0 {
			eventID = eventID[idx+1:]
		}
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, name, formatted)
		fmt.Fprintf(&b, "   Status: %s\n", ev.Status)
		fmt.Fprintf(&b, "   Event ID: %s\n\n", eventID)
	}
	return b.String()
}

func (a *Agent) cancelBooking(ctx context.Context, eventID, reason string) string {
	if reason == "" {
		reason = "Cancelled by patient"
	}
	slog.Info("tool: cancel_booking", "event_id", eventID, "reason", reason)

	if err := a.canceler.CancelEvent(ctx, eventID, reason); err != nil {
		slog.Error("cancel_booking failed", "event_id", eventID, "error", err)
		return "Sorry, I couldn't cancel the appointment. Please try again or contact the clinic directly."
	}

	// The freed slot changes availability.
	a.cache.InvalidateAvailability()
	slog.Info("event cancelled, availability invalidated", "event_id", eventID)

	return `Appointment cancelled successfully.

A confirmation email will be sent shortly.

Remember: If you cancelled less than 24 hours before your appointment, a €20 late cancellation fee may apply.

Would you like to book a new appointment?`
}

func (a *Agent) getRescheduleOptions(ctx context.Context, eventID string) string {
	slog.Info("tool: get_reschedule_options", "event_id", eventID)

	slots, err := a.cache.GetAvailability(ctx, cache.PreferenceAll, false)
	if err != nil {
		slog.Error("get_reschedule_options failed", "error", err)
		return "Sorry, I couldn't get rescheduling options right now. Please try again in a moment."
	}
	if len(slots) == 0 {
		return "No available slots found for rescheduling. Please try again later."
	}
	if len(slots) > 10 {
		slots = slots[:10]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available slots for rescheduling (Event ID: %s):\n\n", eventID)
	for i, slot := range slots {
		fmt.Fprintf(&b, "%d. %s at %s\n", i+1, slot.Date, slot.Time)
	}
	b.WriteString("\nPlease tell me which slot you'd like to reschedule to.")
	b.WriteString("\nNote: Rescheduling less than 24 hours before your appointment may incur a fee.")
	return b.String()
}

func (a *Agent) answerFAQ(question string) string {
	slog.Info("tool: answer_faq", "question", truncate(question, 50))

	if answer := knowledge.Search(question); answer != "" {
		return answer
	}

	info := knowledge.GetClinicInfo()
	return fmt.Sprintf(`I don't have a specific answer for that question. Here's some general information:

- Service: %s (%s)
- Price: %s (Students/Seniors: %s)
- Location: %s
- Cancellation: Free up to %s before; %s late fee

Is there something specific I can help you with?`,
		info.Service, info.Duration, info.Price, info.StudentPrice,
		info.Location, info.CancellationNotice, info.LateCancelFee)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
