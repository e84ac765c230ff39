package sota

import (
	"sync"
	"time"
)

// Tracker remembers which SOTA spot ids have been mirrored into the local
// store, keyed to the composite tuple needed to delete them again.
type Tracker struct {
	mu      sync.Mutex
	tracked map[int]TrackedSpot
}

func NewTracker() *Tracker {
	return &Tracker{tracked: map[int]TrackedSpot{}}
}

func (t *Tracker) Track(sotaID int, datetime time.Time, call string, wotaid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracked[sotaID] = TrackedSpot{Datetime: datetime, Call: call, WotaID: wotaid}
}

func (t *Tracker) IsTracked(sotaID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tracked[sotaID]
	return ok
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked)
}

// FindDeleted returns the tracked spots whose SOTA ids are absent from the
// current feed, removing them from tracking.
func (t *Tracker) FindDeleted(currentIDs map[int]bool) []TrackedSpot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var deleted []TrackedSpot
	for id, tracked := range t.tracked {
		if !currentIDs[id] {
			deleted = append(deleted, tracked)
			delete(t.tracked, id)
		}
	}
	return deleted
}
