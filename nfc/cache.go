package nfc

import (
	"sync"
	"time"
)

// TagCache holds the tag detected by the most recent technology request.
type TagCache struct {
	mu       sync.RWMutex
	clock    Clock
	last     *TagInfo
	lastSeen time.Time
}

// NewTagCache creates an empty TagCache using clock for timestamps.
func NewTagCache(clock Clock) *TagCache {
	if clock == nil {
		clock = NewRealClock()
	}
	return &TagCache{clock: clock}
}

// Store records info as the last detected tag.
func (c *TagCache) Store(info TagInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = &info
	c.lastSeen = c.clock.Now()
}

// Last returns the last detected tag and when it was seen.
func (c *TagCache) Last() (TagInfo, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return TagInfo{}, time.Time{}, false
	}
	return *c.last, c.lastSeen, true
}

// Clear forgets the last detected tag.
func (c *TagCache) Clear() {
	c.mu.Lock()
	c.last = nil
	c.lastSeen = time.Time{}
	c.mu.Unlock()
}
