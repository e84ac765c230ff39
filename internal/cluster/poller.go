package cluster

import (
	"context"
	"log"
	"time"
)

const backfillCount = 10

// Poller drives the cache on a fixed interval and pushes new spots to every
// authenticated session, tracking per-session delivery cursors. Newly
// formatted lines are optionally mirrored to a broadcast hook (the web
// stream hub).
type Poller struct {
	cache     *Cache
	registry  *Registry
	interval  time.Duration
	broadcast func(line string)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(cache *Cache, registry *Registry, interval time.Duration, broadcast func(string)) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		cache:     cache,
		registry:  registry,
		interval:  interval,
		broadcast: broadcast,
	}
}

func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		p.cache.Initialize(ctx)
		log.Printf("spot poller: started, interval=%s", p.interval)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Poll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
		log.Printf("spot poller: stopped")
	}
}

// Poll runs one delivery cycle: refresh the cache, backfill sessions that
// have never received anything, then stream new spots in ascending id order.
func (p *Poller) Poll(ctx context.Context) {
	newSpots := p.cache.PollForNewSpots(ctx)

	// The stream hub mirror does not depend on any TCP session being
	// connected; every new spot goes out exactly once.
	lines := make([]string, len(newSpots))
	for i, sp := range newSpots {
		lines[i] = FormatSpot(sp)
		if p.broadcast != nil {
			p.broadcast(lines[i])
		}
	}

	sessions := p.registry.Authenticated()
	if len(sessions) == 0 {
		return
	}

	// Sessions with a zero cursor logged in while the store was down or
	// before the cache warmed up. Catch them up from the cache tail.
	if p.cache.HasSpots() {
		var needBackfill []*Session
		for _, s := range sessions {
			if s.Cursor() == 0 {
				needBackfill = append(needBackfill, s)
			}
		}
		if len(needBackfill) > 0 {
			backfill := p.cache.Recent(backfillCount, 0)
			if len(backfill) > 0 {
				log.Printf("spot poller: backfilling %d spots to %d sessions", len(backfill), len(needBackfill))
				lastID := backfill[len(backfill)-1].ID
				for _, s := range needBackfill {
					for _, sp := range backfill {
						s.Send(FormatSpot(sp))
					}
					s.AdvanceCursor(lastID)
				}
			}
		}
	}

	if len(newSpots) == 0 {
		return
	}

	log.Printf("spot poller: broadcasting %d spots to %d sessions", len(newSpots), len(sessions))
	for i, sp := range newSpots {
		line := lines[i]
		for _, s := range sessions {
			if s.Cursor() >= sp.ID {
				continue
			}
			s.Send(line)
			s.AdvanceCursor(sp.ID)
		}
	}
}
