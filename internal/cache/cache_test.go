package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmedental/scheduling-assistant/internal/calendly"
)

type stubFetcher struct {
	mu         sync.Mutex
	slots      []calendly.Slot
	slotsErr   error
	slotCalls  int
	events     map[string][]calendly.BookingEvent
	eventsErr  error
	eventCalls int
}

func (f *stubFetcher) FetchAvailableSlots(ctx context.Context, max int) ([]calendly.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotCalls++
	if f.slotsErr != nil {
		return nil, f.slotsErr
	}
	return f.slots, nil
}

func (f *stubFetcher) FetchScheduledEvents(ctx context.Context, email string, status calendly.EventStatus) ([]calendly.BookingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events[email], nil
}

func (f *stubFetcher) setSlotsErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotsErr = err
}

func (f *stubFetcher) slotCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slotCalls
}

var testSlots = []calendly.Slot{
	{Date: "Monday, January 26, 2026", Time: "09:00 AM", ISOTime: "2026-01-26T09:00:00Z", BookingURL: "https://cal.example/a"},
	{Date: "Monday, January 26, 2026", Time: "02:00 PM", ISOTime: "2026-01-26T14:00:00Z", BookingURL: "https://cal.example/b"},
	{Date: "Tuesday, January 27, 2026", Time: "10:30 AM", ISOTime: "2026-01-27T10:30:00Z", BookingURL: "https://cal.example/c"},
}

func newTestCache(f *stubFetcher) *SchedulingCache {
	return New(f, DefaultConfig())
}

func TestGetAvailability_MissThenHit(t *testing.T) {
	fetcher := &stubFetcher{slots: testSlots}
	c := newTestCache(fetcher)
	ctx := context.Background()

	// Cache starts empty, first call is a miss.
	slots, err := c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)
	assert.Len(t, slots, 3)

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, int64(0), stats.CacheHits)
	assert.True(t, stats.AvailabilityCached)

	// Second call within TTL serves the entry without refetching.
	slots, err = c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
	assert.Equal(t, 1, fetcher.slotCallCount())

	stats = c.GetStats()
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestGetAvailability_RefetchesAfterExpiry(t *testing.T) {
	fetcher := &stubFetcher{slots: testSlots}
	cfg := DefaultConfig()
	cfg.AvailabilityTTL = 30 * time.Millisecond
	c := New(fetcher, cfg)
	ctx := context.Background()

	_, err := c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.slotCallCount())

	time.Sleep(50 * time.Millisecond)

	_, err = c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.slotCallCount())
}

func TestGetAvailability_ForceRefresh(t *testing.T) {
	fetcher := &stubFetcher{slots: testSlots}
	c := newTestCache(fetcher)
	ctx := context.Background()

	_, err := c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)

	_, err = c.GetAvailability(ctx, PreferenceAll, true)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.slotCallCount())

	stats := c.GetStats()
	assert.Equal(t, int64(2), stats.CacheMisses)
}

func TestGetAvailability_TimePreferenceFilter(t *testing.T) {
	fetcher := &stubFetcher{slots: testSlots}
	c := newTestCache(fetcher)
	ctx := context.Background()

	morning, err := c.GetAvailability(ctx, PreferenceMorning, false)
	require.NoError(t, err)
	require.Len(t, morning, 2)
	for _, s := range morning {
		assert.Contains(t, s.Time, "AM")
	}

	afternoon, err := c.GetAvailability(ctx, PreferenceAfternoon, false)
	require.NoError(t, err)
	require.Len(t, afternoon, 1)
	assert.Contains(t, afternoon[0].Time, "PM")

	// Both preferences resolve from the same entry; only the first call
	// fetched.
	assert.Equal(t, 1, fetcher.slotCallCount())
}

func TestGetAvailability_StaleFallbackOnError(t *testing.T) {
	fetcher := &stubFetcher{slots: testSlots}
	cfg := DefaultConfig()
	cfg.AvailabilityTTL = 20 * time.Millisecond
	c := New(fetcher, cfg)
	ctx := context.Background()

	_, err := c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond) // entry is now expired
	fetcher.setSlotsErr(errors.New("upstream down"))

	slots, err := c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)
	assert.Equal(t, testSlots, slots)
}

func TestGetAvailability_ErrorWithNoEntryPropagates(t *testing.T) {
	fetcher := &stubFetcher{slotsErr: errors.New("upstream down")}
	c := newTestCache(fetcher)

	_, err := c.GetAvailability(context.Background(), PreferenceAll, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch availability")
}

func TestInvalidateAvailability_ForcesMiss(t *testing.T) {
	fetcher := &stubFetcher{slots: testSlots}
	c := newTestCache(fetcher)
	ctx := context.Background()

	_, err := c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)

	c.InvalidateAvailability()

	stats := c.GetStats()
	assert.False(t, stats.AvailabilityCached)
	assert.Equal(t, int64(1), stats.WebhookInvalidations)

	_, err = c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.slotCallCount())
}

func TestInvalidateAvailability_AbsentEntryIsNoOp(t *testing.T) {
	c := newTestCache(&stubFetcher{})

	c.InvalidateAvailability()
	c.InvalidateAvailability()

	stats := c.GetStats()
	assert.Equal(t, int64(2), stats.WebhookInvalidations)
	assert.False(t, stats.AvailabilityCached)
}

func TestGetBookings_CaseInsensitiveKey(t *testing.T) {
	events := []calendly.BookingEvent{
		{Name: "Dental Check-up", StartTime: "2026-01-26T09:00:00Z", Status: calendly.EventActive, URI: "https://api.example/e/1"},
	}
	fetcher := &stubFetcher{events: map[string][]calendly.BookingEvent{
		"John@Example.com": events,
	}}
	c := newTestCache(fetcher)
	ctx := context.Background()

	got, err := c.GetBookings(ctx, "John@Example.com", false)
	require.NoError(t, err)
	assert.Equal(t, events, got)

	// Different casing hits the same entry.
	got, err = c.GetBookings(ctx, "john@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, events, got)
	assert.Equal(t, 1, fetcher.eventCalls)

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, 1, stats.BookingsCachedCount)
}

func TestGetBookings_IndependentKeys(t *testing.T) {
	fetcher := &stubFetcher{events: map[string][]calendly.BookingEvent{
		"john@example.com": {{Name: "Check-up"}},
		"jane@example.com": {{Name: "Check-up"}},
	}}
	c := newTestCache(fetcher)
	ctx := context.Background()

	_, err := c.GetBookings(ctx, "john@example.com", false)
	require.NoError(t, err)
	_, err = c.GetBookings(ctx, "jane@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.eventCalls)

	c.InvalidateBookings("jane@example.com")

	// Jane's entry is gone, John's survives.
	_, err = c.GetBookings(ctx, "john@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.eventCalls)

	_, err = c.GetBookings(ctx, "jane@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.eventCalls)
}

func TestInvalidateBookings_All(t *testing.T) {
	fetcher := &stubFetcher{events: map[string][]calendly.BookingEvent{}}
	c := newTestCache(fetcher)
	ctx := context.Background()

	_, err := c.GetBookings(ctx, "john@example.com", false)
	require.NoError(t, err)
	_, err = c.GetBookings(ctx, "jane@example.com", false)
	require.NoError(t, err)

	c.InvalidateBookings("")

	stats := c.GetStats()
	assert.Equal(t, 0, stats.BookingsCachedCount)
	assert.Equal(t, int64(1), stats.WebhookInvalidations)
}

func TestGetBookings_StaleFallbackOnError(t *testing.T) {
	events := []calendly.BookingEvent{{Name: "Check-up"}}
	fetcher := &stubFetcher{events: map[string][]calendly.BookingEvent{
		"john@example.com": events,
	}}
	cfg := DefaultConfig()
	cfg.BookingsTTL = 20 * time.Millisecond
	c := New(fetcher, cfg)
	ctx := context.Background()

	_, err := c.GetBookings(ctx, "john@example.com", false)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	fetcher.mu.Lock()
	fetcher.eventsErr = errors.New("upstream down")
	fetcher.mu.Unlock()

	got, err := c.GetBookings(ctx, "john@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, events, got)

	// No prior entry for a different email: the failure surfaces.
	_, err = c.GetBookings(ctx, "jane@example.com", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jane@example.com")
}

func TestGetStats_HitRate(t *testing.T) {
	fetcher := &stubFetcher{slots: testSlots}
	c := newTestCache(fetcher)
	ctx := context.Background()

	// 5 misses: each invalidation forces the next read to fetch.
	for i := 0; i < 5; i++ {
		c.InvalidateAvailability()
		_, err := c.GetAvailability(ctx, PreferenceAll, false)
		require.NoError(t, err)
	}
	// 10 hits.
	for i := 0; i < 10; i++ {
		_, err := c.GetAvailability(ctx, PreferenceAll, false)
		require.NoError(t, err)
	}

	stats := c.GetStats()
	assert.Equal(t, int64(10), stats.CacheHits)
	assert.Equal(t, int64(5), stats.CacheMisses)
	assert.Equal(t, int64(15), stats.TotalRequests)
	assert.Equal(t, 66.7, stats.HitRatePercent)
}

func TestGetStats_EmptyCache(t *testing.T) {
	c := newTestCache(&stubFetcher{})

	stats := c.GetStats()
	assert.Equal(t, int64(0), stats.TotalRequests)
	assert.Equal(t, 0.0, stats.HitRatePercent)
	assert.Empty(t, stats.LastSync)
}

func TestWebhookInvalidationScenario(t *testing.T) {
	fetcher := &stubFetcher{
		slots: testSlots,
		events: map[string][]calendly.BookingEvent{
			"pat@x.com":   {{Name: "Check-up"}},
			"other@x.com": {{Name: "Check-up"}},
		},
	}
	c := newTestCache(fetcher)
	ctx := context.Background()

	_, err := c.GetAvailability(ctx, PreferenceAll, false)
	require.NoError(t, err)
	_, err = c.GetBookings(ctx, "pat@x.com", false)
	require.NoError(t, err)
	_, err = c.GetBookings(ctx, "other@x.com", false)
	require.NoError(t, err)

	// What the webhook handler does on invitee.created for pat@x.com.
	c.InvalidateAvailability()
	c.InvalidateBookings("pat@x.com")

	stats := c.GetStats()
	assert.False(t, stats.AvailabilityCached)
	assert.Equal(t, 1, stats.BookingsCachedCount)

	// The other patient's entry still serves without a fetch.
	before := fetcher.eventCalls
	_, err = c.GetBookings(ctx, "other@x.com", false)
	require.NoError(t, err)
	assert.Equal(t, before, fetcher.eventCalls)
}

func TestConcurrentAccess(t *testing.T) {
	fetcher := &stubFetcher{
		slots:  testSlots,
		events: map[string][]calendly.BookingEvent{},
	}
	c := newTestCache(fetcher)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch j % 4 {
				case 0:
					_, _ = c.GetAvailability(ctx, PreferenceAll, false)
				case 1:
					_, _ = c.GetBookings(ctx, "patient@example.com", false)
				case 2:
					c.InvalidateAvailability()
				case 3:
					_ = c.GetStats()
				}
			}
		}(i)
	}
	wg.Wait()

	stats := c.GetStats()
	assert.Equal(t, stats.CacheHits+stats.CacheMisses, stats.TotalRequests)
}
