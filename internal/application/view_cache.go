package application

import (
	"strings"
	"sync"
	"time"
)

// boardCache keeps the last successfully built agenda board per query so the
// board can still be served, flagged stale, while the store is unreachable.
type boardCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	retention  time.Duration
	maxEntries int
	entries    map[string]boardCacheEntry
}

type boardCacheEntry struct {
	board    RoomBoard
	storedAt time.Time
}

func newBoardCache(retention time.Duration, maxEntries int, now func() time.Time) *boardCache {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if now == nil {
		now = time.Now
	}
	return &boardCache{
		now:        now,
		retention:  retention,
		maxEntries: maxEntries,
		entries:    make(map[string]boardCacheEntry),
	}
}

// Get returns the cached board for the key if one is still within retention.
func (c *boardCache) Get(key string) (RoomBoard, bool) {
	if c == nil {
		return RoomBoard{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return RoomBoard{}, false
	}
	if c.now().Sub(entry.storedAt) > c.retention {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return RoomBoard{}, false
	}
	return entry.board, true
}

// Store saves a freshly built board for the key.
func (c *boardCache) Store(key string, board RoomBoard) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = boardCacheEntry{board: board, storedAt: c.now()}
}

func (c *boardCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.retention {
			delete(c.entries, key)
		}
	}
}

func (c *boardCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func buildBoardCacheKey(date time.Time, roomID *string) string {
	builder := strings.Builder{}
	builder.WriteString(date.Format("2006-01-02"))
	builder.WriteString("|")
	if roomID != nil {
		builder.WriteString(*roomID)
	}
	return builder.String()
}
