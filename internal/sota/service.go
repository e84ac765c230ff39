package sota

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/urbancamo/wota-data/internal/spot"
)

const defaultPollInterval = time.Minute

// Store is the slice of the spot store the sync service writes through.
// *spot.Store satisfies it.
type Store interface {
	SotaMapping(ctx context.Context) (map[int]int, error)
	SpotExists(ctx context.Context, datetime time.Time, call string, wotaid int) (bool, error)
	InsertSpot(ctx context.Context, input spot.Insert) (int, error)
	DeleteSpot(ctx context.Context, datetime time.Time, call string, wotaid int) error
}

// Fetcher fetches the external feed. *Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) ([]FeedSpot, error)
}

// Service mirrors Lake District SOTA spots into the local spots table:
// new feed records are inserted idempotently, and records that vanish from
// the feed have their mirrored rows deleted again.
type Service struct {
	store    Store
	fetcher  Fetcher
	interval time.Duration
	tracker  *Tracker

	mu         sync.Mutex
	sotaToWota map[int]int
	polling    bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(store Store, fetcher Fetcher, interval time.Duration) *Service {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Service{
		store:    store,
		fetcher:  fetcher,
		interval: interval,
		tracker:  NewTracker(),
	}
}

// TrackedCount reports how many feed spots are currently mirrored.
func (s *Service) TrackedCount() int {
	return s.tracker.Len()
}

func (s *Service) loadMapping(ctx context.Context) bool {
	mapping, err := s.store.SotaMapping(ctx)
	if err != nil {
		log.Printf("sota sync: failed to load summit mapping: %v", err)
		return false
	}

	s.mu.Lock()
	s.sotaToWota = mapping
	s.mu.Unlock()
	log.Printf("sota sync: loaded %d summit mappings", len(mapping))
	return true
}

func (s *Service) mapping() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sotaToWota
}

// Start loads the summit mapping and begins polling. A mapping load failure
// is not fatal; it is retried at the head of each poll cycle.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.loadMapping(ctx)
		s.Poll(ctx)
		log.Printf("sota sync: started, interval=%s", s.interval)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Poll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		log.Printf("sota sync: stopped")
	}
}

// Poll runs one reconciliation cycle. A cycle never overlaps itself, and a
// failure on any single row is logged without aborting the rest.
func (s *Service) Poll(ctx context.Context) {
	s.mu.Lock()
	if s.polling {
		s.mu.Unlock()
		return
	}
	s.polling = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
	}()

	if s.mapping() == nil && !s.loadMapping(ctx) {
		return
	}

	// A fetch failure keeps tracked state untouched; only a successful
	// response, even an empty one, is allowed to drive deletions.
	feedSpots, err := s.fetcher.Fetch(ctx)
	if err != nil {
		log.Printf("sota sync: feed fetch failed: %v", err)
		return
	}

	mapping := s.mapping()
	accepted := FilterSpots(feedSpots, mapping)

	currentIDs := make(map[int]bool, len(accepted))
	for _, sp := range accepted {
		currentIDs[sp.ID] = true
	}

	inserted := 0
	for _, feedSpot := range accepted {
		if s.tracker.IsTracked(feedSpot.ID) {
			continue
		}

		row, err := Convert(feedSpot, mapping)
		if err != nil {
			log.Printf("sota sync: dropping spot %d with bad timestamp: %v", feedSpot.ID, err)
			continue
		}

		if err := s.insertSpot(ctx, row); err != nil {
			log.Printf("sota sync: failed to insert spot %d: %v", feedSpot.ID, err)
			continue
		}
		s.tracker.Track(feedSpot.ID, row.Datetime, row.Call, row.WotaID)
		inserted++
	}
	if inserted > 0 {
		log.Printf("sota sync: mirrored %d new spots", inserted)
	}

	deleted := 0
	for _, gone := range s.tracker.FindDeleted(currentIDs) {
		if err := s.store.DeleteSpot(ctx, gone.Datetime, gone.Call, gone.WotaID); err != nil {
			log.Printf("sota sync: failed to delete removed spot %+v: %v", gone, err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		log.Printf("sota sync: deleted %d removed spots", deleted)
	}
}

// insertSpot inserts the row unless an identical (datetime, call, wotaid)
// tuple already exists, keeping repeat polls idempotent.
func (s *Service) insertSpot(ctx context.Context, row spot.Insert) error {
	exists, err := s.store.SpotExists(ctx, row.Datetime, row.Call, row.WotaID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.store.InsertSpot(ctx, row)
	return err
}
