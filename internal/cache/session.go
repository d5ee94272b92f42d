package cache

import (
	"log/slog"
	"time"

	"github.com/acmedental/scheduling-assistant/internal/calendly"
)

// Session is per-conversation-thread scheduling state, distinct from the
// shared cache entries. Sessions are created lazily on first access and
// live until the conversation owner calls ClearSession; there is no
// automatic expiry.
type Session struct {
	CreatedAt            time.Time
	AvailabilitySnapshot []calendly.Slot
	SnapshotTime         time.Time
	SelectedSlot         *calendly.Slot
	PatientInfo          map[string]string
}

// GetSessionData returns a copy of the session state for a thread, creating
// a default session on first access.
func (c *SchedulingCache) GetSessionData(threadID string) Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessionLocked(threadID)
	return c.copySessionLocked(s)
}

// SetSessionAvailability stores an availability snapshot scoped to one
// conversation thread, so a multi-turn exchange does not refetch the shared
// entry on every turn.
func (c *SchedulingCache) SetSessionAvailability(threadID string, slots []calendly.Slot) {
	c.mu.Lock()
	s := c.sessionLocked(threadID)
	s.AvailabilitySnapshot = append([]calendly.Slot(nil), slots...)
	s.SnapshotTime = time.Now()
	c.mu.Unlock()

	slog.Debug("session availability snapshot stored", "thread_id", shortID(threadID), "slots", len(slots))
}

// GetSessionAvailability returns the thread's snapshot, or nil when the
// session does not exist or holds none.
func (c *SchedulingCache) GetSessionAvailability(threadID string) []calendly.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[threadID]
	if !ok || s.AvailabilitySnapshot == nil {
		return nil
	}
	return append([]calendly.Slot(nil), s.AvailabilitySnapshot...)
}

// SetSessionSelectedSlot records the slot the patient settled on.
func (c *SchedulingCache) SetSessionSelectedSlot(threadID string, slot calendly.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessionLocked(threadID)
	s.SelectedSlot = &slot
}

// SetSessionPatientInfo records one collected patient detail (e.g. name,
// email) on the thread's session.
func (c *SchedulingCache) SetSessionPatientInfo(threadID, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessionLocked(threadID)
	s.PatientInfo[key] = value
}

// ClearSession removes a thread's session. Callers own session lifetime and
// must clear when the conversation ends.
func (c *SchedulingCache) ClearSession(threadID string) {
	c.mu.Lock()
	delete(c.sessions, threadID)
	c.mu.Unlock()

	slog.Debug("session cleared", "thread_id", shortID(threadID))
}

func (c *SchedulingCache) sessionLocked(threadID string) *Session {
	s, ok := c.sessions[threadID]
	if !ok {
		s = &Session{
			CreatedAt:   time.Now(),
			PatientInfo: make(map[string]string),
		}
		c.sessions[threadID] = s
	}
	return s
}

func (c *SchedulingCache) copySessionLocked(s *Session) Session {
	out := Session{
		CreatedAt:    s.CreatedAt,
		SnapshotTime: s.SnapshotTime,
		PatientInfo:  make(map[string]string, len(s.PatientInfo)),
	}
	if s.AvailabilitySnapshot != nil {
		out.AvailabilitySnapshot = append([]calendly.Slot(nil), s.AvailabilitySnapshot...)
	}
	if s.SelectedSlot != nil {
		slot := *s.SelectedSlot
		out.SelectedSlot = &slot
	}
	for k, v := range s.PatientInfo {
		out.PatientInfo[k] = v
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
