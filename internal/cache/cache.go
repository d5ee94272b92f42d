// Package cache provides the in-memory scheduling cache that sits between
// the conversational tool layer and the upstream booking API. It serves
// reads cache-first, falls back to stale data when the upstream is down,
// keeps availability fresh with a background sync, and accepts targeted
// invalidation from webhook events.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/acmedental/scheduling-assistant/internal/calendly"
)

// Fetcher is the upstream booking API as the cache sees it: an opaque pair
// of fetch calls that may be slow or fail.
type Fetcher interface {
	FetchAvailableSlots(ctx context.Context, max int) ([]calendly.Slot, error)
	FetchScheduledEvents(ctx context.Context, email string, status calendly.EventStatus) ([]calendly.BookingEvent, error)
}

// TimePreference filters availability for display. It is applied after cache
// resolution and is not part of the cache key.
type TimePreference string

const (
	PreferenceAll       TimePreference = "all"
	PreferenceMorning   TimePreference = "morning"
	PreferenceAfternoon TimePreference = "afternoon"
)

type Config struct {
	SyncInterval    time.Duration // background availability sync period (default: 2 minutes)
	AvailabilityTTL time.Duration // availability entry freshness window (default: 3 minutes)
	BookingsTTL     time.Duration // per-email bookings freshness window (default: 5 minutes)
	MaxSlots        int           // slots fetched per availability refresh (default: 100)
	SyncRunTimeout  time.Duration // budget for one background sync run (default: 20 seconds)
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval:    2 * time.Minute,
		AvailabilityTTL: 3 * time.Minute,
		BookingsTTL:     5 * time.Minute,
		MaxSlots:        100,
		SyncRunTimeout:  20 * time.Second,
	}
}

// SchedulingCache holds one shared availability entry, per-patient booking
// entries keyed by lower-cased email, and per-conversation session state.
// A single mutex guards all of them plus the stat counters, so foreground
// reads and the background sync never interleave mid-update.
//
// The bookings map has no eviction beyond per-key TTL checked at read time;
// key cardinality is bounded by the number of distinct patient emails seen.
type SchedulingCache struct {
	fetcher Fetcher
	cfg     Config

	mu           sync.Mutex
	availability *Entry[[]calendly.Slot]
	bookings     map[string]*Entry[[]calendly.BookingEvent]
	sessions     map[string]*Session
	stats        counters

	syncCancel context.CancelFunc
	syncWG     sync.WaitGroup
}

func New(fetcher Fetcher, cfg Config) *SchedulingCache {
	def := DefaultConfig()
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = def.SyncInterval
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = def.AvailabilityTTL
	}
	if cfg.BookingsTTL <= 0 {
		cfg.BookingsTTL = def.BookingsTTL
	}
	if cfg.MaxSlots <= 0 {
		cfg.MaxSlots = def.MaxSlots
	}
	if cfg.SyncRunTimeout <= 0 {
		cfg.SyncRunTimeout = def.SyncRunTimeout
	}

	slog.Info("scheduling cache initialized",
		"sync_interval", cfg.SyncInterval,
		"availability_ttl", cfg.AvailabilityTTL,
		"bookings_ttl", cfg.BookingsTTL)

	return &SchedulingCache{
		fetcher:  fetcher,
		cfg:      cfg,
		bookings: make(map[string]*Entry[[]calendly.BookingEvent]),
		sessions: make(map[string]*Session),
	}
}

// GetAvailability returns available appointment slots, serving from the
// shared entry when fresh and fetching upstream otherwise. When the fetch
// fails and any prior entry exists (even expired), the stale data is served
// instead of the error.
//
// The upstream fetch runs outside the lock; only the freshness check and the
// result installation hold it. Two callers missing at the same time may both
// fetch; the later installation wins. That duplicate work is accepted rather
// than coalesced.
func (c *SchedulingCache) GetAvailability(ctx context.Context, pref TimePreference, forceRefresh bool) ([]calendly.Slot, error) {
	c.mu.Lock()
	if !forceRefresh && c.availability != nil && !c.availability.Expired() {
		c.stats.hits++
		slots := c.availability.Data
		age := c.availability.Age()
		c.mu.Unlock()

		slog.Debug("availability cache hit", "age", age, "slots", len(slots))
		return filterSlots(slots, pref), nil
	}
	c.stats.misses++
	c.mu.Unlock()

	slog.Debug("availability cache miss, fetching upstream", "force_refresh", forceRefresh)

	slots, err := c.fetcher.FetchAvailableSlots(ctx, c.cfg.MaxSlots)

	c.mu.Lock()
	if err != nil {
		if c.availability != nil {
			stale := c.availability.Data
			age := c.availability.Age()
			c.mu.Unlock()

			slog.Warn("availability fetch failed, serving stale entry", "age", age, "error", err)
			return filterSlots(stale, pref), nil
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("fetch availability: %w", err)
	}
	c.availability = NewEntry(slots, c.cfg.AvailabilityTTL)
	c.mu.Unlock()

	slog.Info("fetched and cached availability", "slots", len(slots))
	return filterSlots(slots, pref), nil
}

// GetBookings returns scheduled events for a patient email. Keys are
// case-insensitive; each email has its own entry and TTL. Same read
// discipline as GetAvailability: cache-first, fetch on miss outside the
// lock, stale fallback on upstream failure.
func (c *SchedulingCache) GetBookings(ctx context.Context, email string, forceRefresh bool) ([]calendly.BookingEvent, error) {
	key := strings.ToLower(email)

	c.mu.Lock()
	cached := c.bookings[key]
	if !forceRefresh && cached != nil && !cached.Expired() {
		c.stats.hits++
		events := cached.Data
		c.mu.Unlock()

		slog.Debug("bookings cache hit", "email", key)
		return events, nil
	}
	c.stats.misses++
	c.mu.Unlock()

	slog.Debug("bookings cache miss, fetching upstream", "email", key)

	events, err := c.fetcher.FetchScheduledEvents(ctx, email, calendly.EventActive)

	c.mu.Lock()
	if err != nil {
		if stale := c.bookings[key]; stale != nil {
			events := stale.Data
			c.mu.Unlock()

			slog.Warn("bookings fetch failed, serving stale entry", "email", key, "error", err)
			return events, nil
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("fetch bookings for %s: %w", key, err)
	}
	c.bookings[key] = NewEntry(events, c.cfg.BookingsTTL)
	c.mu.Unlock()

	return events, nil
}

// InvalidateAvailability clears the shared availability entry so the next
// read is a forced miss. Invalidating an absent entry is a no-op beyond the
// counter.
func (c *SchedulingCache) InvalidateAvailability() {
	c.mu.Lock()
	c.availability = nil
	c.stats.invalidations++
	c.mu.Unlock()

	slog.Info("availability cache invalidated")
}

// InvalidateBookings removes one patient's booking entry, or every entry
// when email is empty.
func (c *SchedulingCache) InvalidateBookings(email string) {
	c.mu.Lock()
	if email != "" {
		delete(c.bookings, strings.ToLower(email))
	} else {
		c.bookings = make(map[string]*Entry[[]calendly.BookingEvent])
	}
	c.stats.invalidations++
	c.mu.Unlock()

	if email != "" {
		slog.Info("bookings cache invalidated", "email", strings.ToLower(email))
	} else {
		slog.Info("all bookings cache invalidated")
	}
}

func filterSlots(slots []calendly.Slot, pref TimePreference) []calendly.Slot {
	switch pref {
	case PreferenceMorning:
		return filterByMarker(slots, "AM")
	case PreferenceAfternoon:
		return filterByMarker(slots, "PM")
	default:
		return slots
	}
}

func filterByMarker(slots []calendly.Slot, marker string) []calendly.Slot {
	out := make([]calendly.Slot, 0, len(slots))
	for _, s := range slots {
		if strings.Contains(s.Time, marker) {
			out = append(out, s)
		}
	}
	return out
}
