package cache

import "time"

// Entry wraps a cached value with its capture time and freshness window.
// Entries are replaced wholesale on refresh, never mutated in place.
type Entry[T any] struct {
	Data     T
	CachedAt time.Time
	TTL      time.Duration
}

func NewEntry[T any](data T, ttl time.Duration) *Entry[T] {
	return &Entry[T]{
		Data:     data,
		CachedAt: time.Now(),
		TTL:      ttl,
	}
}

// Age returns how long ago the entry was captured.
func (e *Entry[T]) Age() time.Duration {
	return time.Since(e.CachedAt)
}

// Expired reports whether the entry is older than its TTL. An entry exactly
// at its TTL is still fresh.
func (e *Entry[T]) Expired() bool {
	return e.Age() > e.TTL
}
