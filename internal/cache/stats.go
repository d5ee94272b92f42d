package cache

import (
	"math"
	"time"
)

type counters struct {
	hits          int64
	misses        int64
	syncCount     int64
	lastSync      time.Time
	invalidations int64
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	CacheHits            int64   `json:"cache_hits"`
	CacheMisses          int64   `json:"cache_misses"`
	SyncCount            int64   `json:"sync_count"`
	LastSync             string  `json:"last_sync,omitempty"` // RFC 3339, empty before first sync
	WebhookInvalidations int64   `json:"webhook_invalidations"`
	TotalRequests        int64   `json:"total_requests"`
	HitRatePercent       float64 `json:"hit_rate_percent"`
	AvailabilityCached   bool    `json:"availability_cached"`
	BookingsCachedCount  int     `json:"bookings_cached_count"`
	ActiveSessions       int     `json:"active_sessions"`
}

// GetStats returns current counters plus derived totals. Hit rate is
// rounded to one decimal and reported as 0 when there have been no requests.
func (c *SchedulingCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.stats.hits + c.stats.misses
	var hitRate float64
	if total > 0 {
		hitRate = math.Round(float64(c.stats.hits)/float64(total)*1000) / 10
	}

	s := Stats{
		CacheHits:            c.stats.hits,
		CacheMisses:          c.stats.misses,
		SyncCount:            c.stats.syncCount,
		WebhookInvalidations: c.stats.invalidations,
		TotalRequests:        total,
		HitRatePercent:       hitRate,
		AvailabilityCached:   c.availability != nil,
		BookingsCachedCount:  len(c.bookings),
		ActiveSessions:       len(c.sessions),
	}
	if !c.stats.lastSync.IsZero() {
		s.LastSync = c.stats.lastSync.Format(time.RFC3339)
	}
	return s
}

// AvailabilityAge reports whether a fresh availability entry is cached and
// its age. Used by the HTTP availability endpoint.
func (c *SchedulingCache) AvailabilityAge() (cached bool, age time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.availability == nil {
		return false, 0
	}
	return !c.availability.Expired(), c.availability.Age()
}
