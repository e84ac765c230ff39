package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/urbancamo/wota-data/internal/spot"
)

var errDown = errors.New("store unreachable")

// fakeSource is an in-memory SpotSource with switchable availability.
type fakeSource struct {
	mu    sync.Mutex
	spots []spot.Spot
	down  bool

	recentCalls int
	afterCalls  int
}

func (f *fakeSource) add(id int, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spots = append(f.spots, spot.Spot{
		ID: id, Datetime: at, Call: "G4XYZ", WotaID: 1, FreqMode: "7.032 SSB", Spotter: "M0ABC",
	})
}

func (f *fakeSource) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.spots[:0]
	for _, sp := range f.spots {
		if sp.ID != id {
			kept = append(kept, sp)
		}
	}
	f.spots = kept
}

func (f *fakeSource) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeSource) RecentSpots(_ context.Context, limit int) ([]spot.Spot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentCalls++
	if f.down {
		return nil, errDown
	}

	var out []spot.Spot
	for i := len(f.spots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.spots[i])
	}
	return out, nil
}

func (f *fakeSource) SpotsAfter(_ context.Context, afterID int) ([]spot.Spot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterCalls++
	if f.down {
		return nil, errDown
	}

	var out []spot.Spot
	for _, sp := range f.spots {
		if sp.ID > afterID {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (f *fakeSource) ExistingSpotIDs(_ context.Context, ids []int) (map[int]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDown
	}

	existing := map[int]bool{}
	for _, sp := range f.spots {
		existing[sp.ID] = true
	}
	out := map[int]bool{}
	for _, id := range ids {
		if existing[id] {
			out[id] = true
		}
	}
	return out, nil
}

func newTestCache(source SpotSource) *Cache {
	c := NewCache(source)
	c.retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	return c
}

func TestCacheInitializeLoadsRecent(t *testing.T) {
	source := &fakeSource{}
	now := time.Now().UTC()
	for id := 1; id <= 5; id++ {
		source.add(id, now)
	}

	cache := newTestCache(source)
	cache.Initialize(context.Background())

	if cache.Size() != 5 {
		t.Fatalf("expected 5 cached spots, got %d", cache.Size())
	}
	if cache.LastSpotID() != 5 {
		t.Fatalf("expected lastSpotId 5, got %d", cache.LastSpotID())
	}
	if !cache.Ready() {
		t.Fatalf("expected cache ready")
	}

	recent := cache.Recent(3, 0)
	if len(recent) != 3 || recent[0].ID != 3 || recent[2].ID != 5 {
		t.Fatalf("expected oldest-first tail, got %+v", recent)
	}
}

func TestCacheInitializeMemoized(t *testing.T) {
	source := &fakeSource{}
	source.add(1, time.Now().UTC())

	cache := newTestCache(source)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Initialize(context.Background())
		}()
	}
	wg.Wait()

	if source.recentCalls != 1 {
		t.Fatalf("expected a single shared load, got %d", source.recentCalls)
	}
}

func TestCacheOutageThenRecovery(t *testing.T) {
	source := &fakeSource{down: true}
	cache := newTestCache(source)

	cache.Initialize(context.Background())
	if cache.Ready() {
		t.Fatalf("cache should not be ready after failed init")
	}
	if source.recentCalls != 3 {
		t.Fatalf("expected initial attempt plus retries, got %d calls", source.recentCalls)
	}

	// Store comes back; the next poll succeeds without re-running init.
	source.setDown(false)
	source.add(7, time.Now().UTC())
	source.add(9, time.Now().UTC())

	newSpots := cache.PollForNewSpots(context.Background())
	if len(newSpots) != 2 {
		t.Fatalf("expected 2 new spots, got %d", len(newSpots))
	}
	if cache.LastSpotID() != 9 {
		t.Fatalf("expected lastSpotId 9, got %d", cache.LastSpotID())
	}
	if !cache.Ready() || !cache.HasSpots() {
		t.Fatalf("expected ready non-empty cache after recovery")
	}
}

func TestCachePollFailureReturnsEmpty(t *testing.T) {
	source := &fakeSource{}
	source.add(1, time.Now().UTC())

	cache := newTestCache(source)
	cache.Initialize(context.Background())

	source.setDown(true)
	if got := cache.PollForNewSpots(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty result during outage, got %d", len(got))
	}
	// The cached tail survives an outage.
	if cache.Size() != 1 {
		t.Fatalf("expected cache intact, got %d", cache.Size())
	}
}

func TestCachePollMarksReadyOnEmptyResult(t *testing.T) {
	source := &fakeSource{down: true}
	cache := newTestCache(source)
	cache.Initialize(context.Background())

	source.setDown(false)
	cache.PollForNewSpots(context.Background())
	if !cache.Ready() {
		t.Fatalf("an empty successful poll should still mark the cache ready")
	}
}

func TestCacheTrimsToCap(t *testing.T) {
	source := &fakeSource{}
	cache := newTestCache(source)
	cache.Initialize(context.Background())

	now := time.Now().UTC()
	for id := 1; id <= maxCachedSpots+20; id++ {
		source.add(id, now)
	}
	cache.PollForNewSpots(context.Background())

	if cache.Size() != maxCachedSpots {
		t.Fatalf("expected cache capped at %d, got %d", maxCachedSpots, cache.Size())
	}
	recent := cache.Recent(1, 0)
	if recent[0].ID != maxCachedSpots+20 {
		t.Fatalf("expected newest entry retained, got %d", recent[0].ID)
	}
}

func TestCachePrunesPreviousDay(t *testing.T) {
	source := &fakeSource{}
	now := time.Now().UTC()
	source.add(1, now.Add(-48*time.Hour))
	source.add(2, now)

	cache := newTestCache(source)
	cache.Initialize(context.Background())
	cache.PollForNewSpots(context.Background())

	if cache.Size() != 1 {
		t.Fatalf("expected stale entry pruned, got %d", cache.Size())
	}
	if cache.Recent(1, 0)[0].ID != 2 {
		t.Fatalf("expected today's entry kept")
	}
}

func TestCachePrunesDeletedRows(t *testing.T) {
	source := &fakeSource{}
	now := time.Now().UTC()
	source.add(1, now)
	source.add(2, now)

	cache := newTestCache(source)
	cache.Initialize(context.Background())

	// The sync service deletes row 1 out from under the cache.
	source.remove(1)
	cache.PollForNewSpots(context.Background())

	if cache.Size() != 1 {
		t.Fatalf("expected deleted row pruned, got %d", cache.Size())
	}
	if cache.Recent(1, 0)[0].ID != 2 {
		t.Fatalf("expected surviving row kept")
	}
	// The high-water mark is unaffected by pruning.
	if cache.LastSpotID() != 2 {
		t.Fatalf("expected lastSpotId 2, got %d", cache.LastSpotID())
	}
}

func TestCacheRecentAfterID(t *testing.T) {
	source := &fakeSource{}
	now := time.Now().UTC()
	for id := 1; id <= 5; id++ {
		source.add(id, now)
	}

	cache := newTestCache(source)
	cache.Initialize(context.Background())

	after := cache.Recent(10, 3)
	if len(after) != 2 || after[0].ID != 4 || after[1].ID != 5 {
		t.Fatalf("expected spots after id 3, got %+v", after)
	}
}
