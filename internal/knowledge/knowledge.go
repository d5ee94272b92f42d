// Package knowledge holds the static clinic FAQ and a keyword-scored lookup
// over it.
package knowledge

import "strings"

type faqEntry struct {
	keywords []string
	answer   string
}

var faqData = map[string]faqEntry{
	"services": {
		keywords: []string{"service", "offer", "provide", "do you do", "what do you"},
		answer: "Acme Dental currently offers routine dental check-ups only. " +
			"A check-up includes an oral examination and general assessment of your dental health.",
	},
	"duration": {
		keywords: []string{"how long", "duration", "minutes", "time", "length"},
		answer:   "Each dental check-up appointment is 30 minutes.",
	},
	"dentist": {
		keywords: []string{"dentist", "doctor", "who", "staff", "specific dentist"},
		answer: "Acme Dental has one dentist, and all check-ups are completed by that dentist. " +
			"Every booking is automatically scheduled with them.",
	},
	"emergency": {
		keywords: []string{"emergency", "urgent", "pain", "swelling", "bleeding"},
		answer: "Acme Dental is focused on routine check-ups only and does not offer emergency " +
			"dental treatment. If you have severe pain, swelling, or bleeding, please contact " +
			"emergency dental services in your area.",
	},
	"booking_process": {
		keywords: []string{"how to book", "book appointment", "make appointment", "schedule"},
		answer: "You can book directly through this chat assistant. I will show available times, " +
			"help you choose a slot, ask for your name and email, and confirm your booking instantly.",
	},
	"account": {
		keywords: []string{"account", "sign up", "register", "login"},
		answer:   "No account is required. We only need your full name and email address to book an appointment.",
	},
	"walk_in": {
		keywords: []string{"walk-in", "walkin", "walk in", "without appointment", "drop in"},
		answer:   "At the moment, we do not accept walk-ins. All visits must be booked in advance.",
	},
	"reschedule": {
		keywords: []string{"reschedule", "change time", "move appointment", "different time"},
		answer: "Yes, you can reschedule anytime. Just tell me 'I need to reschedule my check-up' " +
			"and I'll find your booking and offer new available time slots.",
	},
	"cancel": {
		keywords: []string{"cancel", "cancellation"},
		answer: "You can cancel by telling me 'Cancel my appointment'. Once confirmed, " +
			"I'll process the cancellation and send you a confirmation.",
	},
	"confirmation": {
		keywords: []string{"confirmation", "confirm", "email confirmation", "receipt"},
		answer: "Yes, after booking you'll receive a confirmation with the date, time, " +
			"and appointment duration (30 minutes).",
	},
	"no_confirmation": {
		keywords: []string{"didn't receive", "no email", "missing confirmation", "didn't get"},
		answer: "First, check your spam/junk folder. If you still don't see it, tell me " +
			"'I didn't get my confirmation email' and I'll help verify your booking details.",
	},
	"book_for_others": {
		keywords: []string{"someone else", "book for", "on behalf", "another person", "family"},
		answer:   "Yes, you can book on behalf of someone else. Just provide their full name and email address when asked.",
	},
	"what_to_bring": {
		keywords: []string{"bring", "need to bring", "prepare", "documents"},
		answer: "Please bring: a valid photo ID, any relevant medical information (if applicable), " +
			"and your insurance details (if you have them).",
	},
	"arrival_time": {
		keywords: []string{"arrive", "early", "when should i", "how early"},
		answer:   "We recommend arriving 5-10 minutes early so you have time to settle in.",
	},
	"late": {
		keywords: []string{"late", "running late", "delayed"},
		answer: "If you're running late, please message us as soon as possible. We'll do our best " +
			"to accommodate you, but the appointment may need to be rescheduled if we can't " +
			"complete the check-up within the 30-minute slot.",
	},
	"privacy": {
		keywords: []string{"privacy", "data", "personal information", "secure", "security"},
		answer: "We only collect the minimum details needed to manage your appointment " +
			"(name and email) and use them solely for scheduling and confirmations.",
	},
	"price": {
		keywords: []string{"price", "cost", "how much", "fee", "charge", "€", "euro"},
		answer: "A standard dental check-up at Acme Dental costs €60. This includes a full oral " +
			"examination, gum health check, a review of any concerns you mention, " +
			"and basic recommendations for next steps.",
	},
	"included": {
		keywords: []string{"include", "what's included", "covered", "part of"},
		answer: "The €60 check-up includes: a full oral examination, gum health check, " +
			"a review of any concerns you mention, and basic recommendations for next steps " +
			"(if needed). X-rays are NOT included.",
	},
	"xray": {
		keywords: []string{"x-ray", "xray", "x ray", "radiograph"},
		answer: "No, Acme Dental check-ups do not include X-rays. If X-rays are required, " +
			"the dentist will explain next steps and options.",
	},
	"discounts": {
		keywords: []string{"discount", "student", "senior", "reduced", "cheaper"},
		answer: "Yes, we offer: Student discount: €50 check-up (valid student ID required), " +
			"and Senior discount (65+): €50 check-up. Discounts cannot be combined.",
	},
	"payment": {
		keywords: []string{"pay", "payment", "card", "cash", "contactless"},
		answer:   "You can pay in-clinic by card, contactless payment, or cash (exact amount preferred).",
	},
	"deposit": {
		keywords: []string{"deposit", "upfront", "advance payment"},
		answer:   "No deposit is required for routine check-ups. You only need your name and email to confirm the booking.",
	},
	"cancellation_policy": {
		keywords: []string{"cancellation policy", "cancel fee", "cancellation fee", "24 hours"},
		answer: "You can cancel or reschedule free of charge up to 24 hours before your appointment. " +
			"Cancellations made less than 24 hours in advance may incur a €20 late cancellation fee.",
	},
	"no_show": {
		keywords: []string{"miss", "no-show", "no show", "didn't attend", "forgot"},
		answer: "If you don't attend without notice (no-show), a €20 no-show fee may apply. " +
			"You can still rebook through the assistant afterwards.",
	},
	"insurance": {
		keywords: []string{"insurance", "claim", "coverage", "insurer"},
		answer: "Acme Dental can provide a receipt for your visit, which you may be able to claim " +
			"through your insurance provider. We do not process insurance claims directly.",
	},
	"invoice": {
		keywords: []string{"invoice", "receipt", "proof"},
		answer: "Yes, we provide receipts for all appointments. If you need an invoice with " +
			"specific details, please ask at reception during your visit.",
	},
	"location": {
		keywords: []string{"where", "location", "address", "find you"},
		answer:   "Acme Dental is located at Acme Dental Lane. The exact address will be in your booking confirmation.",
	},
}

// Search returns the best-matching FAQ answer by counting keyword hits, or
// "" when nothing matches.
func Search(query string) string {
	queryLower := strings.ToLower(query)

	var best string
	bestScore := 0
	for _, entry := range faqData {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(queryLower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = entry.answer
		}
	}
	return best
}

// ClinicInfo is the basic clinic fact sheet used as the FAQ fallback.
type ClinicInfo struct {
	Name               string
	Service            string
	Duration           string
	Price              string
	StudentPrice       string
	SeniorPrice        string
	Location           string
	CancellationNotice string
	LateCancelFee      string
	NoShowFee          string
}

func GetClinicInfo() ClinicInfo {
	return ClinicInfo{
		Name:               "Acme Dental",
		Service:            "Dental Check-up",
		Duration:           "30 minutes",
		Price:              "€60",
		StudentPrice:       "€50",
		SeniorPrice:        "€50",
		Location:           "Acme Dental Lane",
		CancellationNotice: "24 hours",
		LateCancelFee:      "€20",
		NoShowFee:          "€20",
	}
}
