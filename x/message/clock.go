package message

import (
	"sync"
	"time"
)

// channelClock hands out strictly increasing created_at values per channel.
// Values are truncated to microseconds, the resolution of the datastore.
type channelClock struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func newChannelClock(now func() time.Time) *channelClock {
	return &channelClock{
		last: make(map[string]time.Time),
		now:  now,
	}
}

// Known reports whether the channel has been seeded
func (c *channelClock) Known(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.last[eventID]
	return ok
}

// Observe raises the floor of a channel to t
func (c *channelClock) Observe(eventID string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[eventID]; !ok || t.After(last) {
		c.last[eventID] = t.UTC()
	}
}

// Next returns max(now, last+1µs) for the channel
func (c *channelClock) Next(eventID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.now().UTC().Truncate(time.Microsecond)
	if last, ok := c.last[eventID]; ok && !next.After(last) {
		next = last.Add(time.Microsecond)
	}
	c.last[eventID] = next
	return next
}

// Now returns the wall clock at datastore resolution
func (c *channelClock) Now() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}
