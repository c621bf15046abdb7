package application

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/availability-engine/internal/slots"
)

// BusyCache memoizes external busy intervals per account and date. Entries
// expire on their own; booking and connection changes invalidate the whole
// account eagerly so stale availability never outlives a write.
type BusyCache struct {
	entries *expirable.LRU[string, []slots.Interval]
}

// NewBusyCache sizes the cache and sets the entry TTL. A short TTL bounds the
// staleness of availability pages, not the correctness of bookings; the write
// path re-checks against storage regardless.
func NewBusyCache(size int, ttl time.Duration) *BusyCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &BusyCache{
		entries: expirable.NewLRU[string, []slots.Interval](size, nil, ttl),
	}
}

func busyKey(accountID, date string) string {
	return accountID + "|" + date
}

// Get returns a copy of the cached intervals for the account and date.
func (c *BusyCache) Get(accountID, date string) ([]slots.Interval, bool) {
	cached, ok := c.entries.Get(busyKey(accountID, date))
	if !ok {
		return nil, false
	}
	out := make([]slots.Interval, len(cached))
	copy(out, cached)
	return out, true
}

// Set stores a copy of the intervals so later mutation by the caller cannot
// corrupt the cached value.
func (c *BusyCache) Set(accountID, date string, intervals []slots.Interval) {
	stored := make([]slots.Interval, len(intervals))
	copy(stored, intervals)
	c.entries.Add(busyKey(accountID, date), stored)
}

// InvalidateAccount drops every cached date for the account.
func (c *BusyCache) InvalidateAccount(accountID string) {
	prefix := accountID + "|"
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

// Len reports the number of live entries.
func (c *BusyCache) Len() int {
	return c.entries.Len()
}
