package devicestate

import (
	"sort"
	"sync"
	"time"
)

// DefaultTTL is the cache lifetime used when none is configured.
const DefaultTTL = 30 * time.Second

// Cache holds the last known capability states of remote devices.
//
// There is a single freshness timestamp for the whole cache, bumped by every
// batch refresh. A refresh replaces the entries of the queried devices only;
// entries of other devices are left as they were.
//
// Thread Safety: All methods are safe for concurrent use.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu          sync.RWMutex
	lastUpdated time.Time
	states      map[string][]*CapabilityState
}

// NewCache creates an empty cache with the given TTL.
// A non-positive ttl selects DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:    ttl,
		now:    time.Now,
		states: make(map[string][]*CapabilityState),
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetStatesForDevice returns the known states of a device.
// Absent entries are skipped; an unknown device yields an empty slice.
func (c *Cache) GetStatesForDevice(id string) []CapabilityState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.states[id]
	out := make([]CapabilityState, 0, len(entries))
	for _, s := range entries {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// GetValue returns the first state of a device matched by sel.
func (c *Cache) GetValue(id string, sel Selector) (CapabilityState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.states[id] {
		if s != nil && sel.Matches(*s) {
			return *s, true
		}
	}
	return CapabilityState{}, false
}

// UpdateBatch overwrites the entries of every id in ids with its result
// (missing results become empty lists) and marks the cache as refreshed.
func (c *Cache) UpdateBatch(ids []string, results map[string][]*CapabilityState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		entries := results[id]
		stored := make([]*CapabilityState, len(entries))
		for i, s := range entries {
			if s != nil {
				cp := *s
				stored[i] = &cp
			}
		}
		c.states[id] = stored
	}
	c.lastUpdated = c.now()
}

// UpdateSingleValue overwrites the value of the entry with the same identity
// as state. If the device has no such entry nothing is stored and false is
// returned. The freshness timestamp is not touched.
func (c *Cache) UpdateSingleValue(id string, state CapabilityState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.states[id] {
		if s != nil && s.SameIdentity(state) {
			s.Value = state.Value
			return true
		}
	}
	return false
}

// IsFresh reports whether the last refresh is younger than the TTL.
func (c *Cache) IsFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated.Add(c.ttl).After(c.now())
}

// HasAll reports whether every id has an entry, including empty ones.
func (c *Cache) HasAll(ids []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range ids {
		if _, ok := c.states[id]; !ok {
			return false
		}
	}
	return true
}

// LastUpdated returns the time of the last batch refresh.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// DeviceIDs returns the ids present in the cache, sorted.
func (c *Cache) DeviceIDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.states))
	for id := range c.states {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
