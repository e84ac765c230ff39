package cluster

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/urbancamo/wota-data/internal/spot"
)

const maxCachedSpots = 100

var defaultRetryDelays = []time.Duration{
	time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// SpotSource is the slice of the spot store the cache reads from.
// *spot.Store satisfies it.
type SpotSource interface {
	RecentSpots(ctx context.Context, limit int) ([]spot.Spot, error)
	SpotsAfter(ctx context.Context, afterID int) ([]spot.Spot, error)
	ExistingSpotIDs(ctx context.Context, ids []int) (map[int]bool, error)
}

// Cache is a bounded in-memory mirror of the tail of the spots table.
// Entries are held oldest first. All methods are safe for concurrent use.
type Cache struct {
	source      SpotSource
	retryDelays []time.Duration
	now         func() time.Time

	initOnce sync.Once

	mu         sync.Mutex
	spots      []spot.Spot
	lastSpotID int
	hasLoaded  bool
}

func NewCache(source SpotSource) *Cache {
	return &Cache{
		source:      source,
		retryDelays: defaultRetryDelays,
		now:         time.Now,
	}
}

func (c *Cache) withRetry(ctx context.Context, name string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if attempt < len(c.retryDelays) {
			delay := c.retryDelays[attempt]
			log.Printf("spot cache: %s failed (attempt %d), retrying in %s: %v", name, attempt+1, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	log.Printf("spot cache: %s failed after all retries: %v", name, lastErr)
	return lastErr
}

// Initialize loads the most recent spots once. Concurrent callers share the
// same in-flight load. If every backoff attempt fails the cache still counts
// as initialized; the next poll retries the underlying fetch.
func (c *Cache) Initialize(ctx context.Context) {
	c.initOnce.Do(func() {
		err := c.withRetry(ctx, "initialize", func() error {
			recent, err := c.source.RecentSpots(ctx, maxCachedSpots)
			if err != nil {
				return err
			}
			if len(recent) > 0 {
				// Store oldest first; the query returns newest first.
				ordered := make([]spot.Spot, len(recent))
				for i, sp := range recent {
					ordered[len(recent)-1-i] = sp
				}
				c.mu.Lock()
				c.spots = ordered
				c.lastSpotID = ordered[len(ordered)-1].ID
				c.hasLoaded = true
				c.mu.Unlock()
			} else {
				c.mu.Lock()
				c.hasLoaded = true
				c.mu.Unlock()
			}
			return nil
		})
		if err != nil {
			log.Printf("spot cache: initialization failed, will retry on poll: %v", err)
			return
		}
		log.Printf("spot cache: initialized with %d spots, lastSpotId=%d", c.Size(), c.LastSpotID())
	})
}

// PollForNewSpots fetches spots newer than the high-water mark and appends
// them, returning the new entries oldest first. Fetch failures are logged
// and yield an empty result. Stale entries are pruned after every call.
func (c *Cache) PollForNewSpots(ctx context.Context) []spot.Spot {
	c.Initialize(ctx)

	newSpots, err := c.source.SpotsAfter(ctx, c.LastSpotID())
	if err != nil {
		log.Printf("spot cache: poll failed: %v", err)
		c.prune(ctx)
		return nil
	}

	c.mu.Lock()
	// A round trip succeeded, even an empty one. This distinguishes an
	// empty table from a store that was never reachable.
	c.hasLoaded = true
	if len(newSpots) > 0 {
		c.spots = append(c.spots, newSpots...)
		if len(c.spots) > maxCachedSpots {
			c.spots = c.spots[len(c.spots)-maxCachedSpots:]
		}
		c.lastSpotID = newSpots[len(newSpots)-1].ID
	}
	c.mu.Unlock()

	c.prune(ctx)
	return newSpots
}

// prune drops entries from a previous UTC day, then drops entries whose row
// no longer exists in the store. The sync service deletes rows out from
// under the cache when a foreign spot disappears; the existence pass keeps
// the mirror honest. Existence check failures are logged and ignored.
func (c *Cache) prune(ctx context.Context) {
	today := c.now().UTC()

	c.mu.Lock()
	kept := c.spots[:0]
	for _, sp := range c.spots {
		d := sp.Datetime.UTC()
		if d.Year() == today.Year() && d.YearDay() == today.YearDay() {
			kept = append(kept, sp)
		}
	}
	c.spots = kept

	ids := make([]int, len(c.spots))
	for i, sp := range c.spots {
		ids[i] = sp.ID
	}
	c.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	existing, err := c.source.ExistingSpotIDs(ctx, ids)
	if err != nil {
		log.Printf("spot cache: existence prune skipped: %v", err)
		return
	}

	queried := make(map[int]bool, len(ids))
	for _, id := range ids {
		queried[id] = true
	}

	c.mu.Lock()
	kept = c.spots[:0]
	for _, sp := range c.spots {
		// Only drop entries the existence query actually covered.
		if existing[sp.ID] || !queried[sp.ID] {
			kept = append(kept, sp)
		}
	}
	c.spots = kept
	c.mu.Unlock()
}

// Recent returns up to count of the most recent cached spots, oldest first.
// When afterID is non-zero only spots with a greater id are considered.
func (c *Cache) Recent(count int, afterID int) []spot.Spot {
	c.mu.Lock()
	defer c.mu.Unlock()

	eligible := c.spots
	if afterID > 0 {
		var filtered []spot.Spot
		for _, sp := range eligible {
			if sp.ID > afterID {
				filtered = append(filtered, sp)
			}
		}
		eligible = filtered
	}

	if len(eligible) > count {
		eligible = eligible[len(eligible)-count:]
	}
	out := make([]spot.Spot, len(eligible))
	copy(out, eligible)
	return out
}

func (c *Cache) LastSpotID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSpotID
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spots)
}

func (c *Cache) HasSpots() bool {
	return c.Size() > 0
}

// Ready reports whether the cache has reached the store at least once.
func (c *Cache) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLoaded
}
