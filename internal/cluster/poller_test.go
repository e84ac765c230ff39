package cluster

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func newPollerFixture(t *testing.T) (*fakeSource, *Cache, *Registry) {
	t.Helper()
	source := &fakeSource{}
	cache := newTestCache(source)
	return source, cache, NewRegistry()
}

func addAuthenticatedSession(registry *Registry, callsign string) (*Session, *recorderConn) {
	conn := &recorderConn{}
	sess := NewSession(conn)
	sess.Authenticate(callsign)
	registry.Add(sess)
	return sess, conn
}

func TestPollerBroadcastsAscendingOnce(t *testing.T) {
	source, cache, registry := newPollerFixture(t)
	cache.Initialize(context.Background())

	sess, conn := addAuthenticatedSession(registry, "G4ABC")
	poller := NewPoller(cache, registry, time.Second, nil)

	now := time.Now().UTC()
	source.add(1, now)
	source.add(2, now)
	poller.Poll(context.Background())

	out := conn.String()
	if strings.Count(out, "DX de") != 2 {
		t.Fatalf("expected 2 broadcast lines, got %q", out)
	}
	if sess.Cursor() != 2 {
		t.Fatalf("expected cursor at 2, got %d", sess.Cursor())
	}

	// Re-polling with nothing new delivers nothing further.
	conn.reset()
	poller.Poll(context.Background())
	if strings.Contains(conn.String(), "DX de") {
		t.Fatalf("expected no duplicate delivery, got %q", conn.String())
	}

	source.add(3, now)
	poller.Poll(context.Background())
	if sess.Cursor() != 3 {
		t.Fatalf("expected cursor advanced to 3, got %d", sess.Cursor())
	}
	if strings.Count(conn.String(), "DX de") != 1 {
		t.Fatalf("expected exactly one new line")
	}
}

func TestPollerCursorMonotonicAcrossCycles(t *testing.T) {
	source, cache, registry := newPollerFixture(t)
	cache.Initialize(context.Background())

	sess, _ := addAuthenticatedSession(registry, "G4ABC")
	poller := NewPoller(cache, registry, time.Second, nil)

	now := time.Now().UTC()
	last := 0
	for id := 1; id <= 6; id++ {
		source.add(id, now)
		poller.Poll(context.Background())
		if sess.Cursor() < last {
			t.Fatalf("cursor moved backward: %d -> %d", last, sess.Cursor())
		}
		if sess.Cursor() != id {
			t.Fatalf("cursor should equal last delivered id, got %d want %d", sess.Cursor(), id)
		}
		last = sess.Cursor()
	}
}

func TestPollerBackfillsZeroCursorSessions(t *testing.T) {
	source, cache, registry := newPollerFixture(t)

	// Simulate a session that logged in during a store outage: the cache is
	// warm before the session has seen anything.
	now := time.Now().UTC()
	for id := 1; id <= 15; id++ {
		source.add(id, now)
	}
	cache.Initialize(context.Background())

	sess, conn := addAuthenticatedSession(registry, "G4ABC")
	poller := NewPoller(cache, registry, time.Second, nil)
	poller.Poll(context.Background())

	if got := strings.Count(conn.String(), "DX de"); got != backfillCount {
		t.Fatalf("expected %d backfill lines, got %d", backfillCount, got)
	}
	if sess.Cursor() != 15 {
		t.Fatalf("expected cursor at newest backfilled id, got %d", sess.Cursor())
	}
}

func TestPollerSkipsCaughtUpSessions(t *testing.T) {
	source, cache, registry := newPollerFixture(t)
	cache.Initialize(context.Background())

	ahead, aheadConn := addAuthenticatedSession(registry, "G4ABC")
	behind, behindConn := addAuthenticatedSession(registry, "M0XYZ")

	now := time.Now().UTC()
	source.add(1, now)
	source.add(2, now)
	ahead.AdvanceCursor(2)
	behind.AdvanceCursor(1)

	poller := NewPoller(cache, registry, time.Second, nil)
	poller.Poll(context.Background())

	if strings.Contains(aheadConn.String(), "DX de") {
		t.Fatalf("caught-up session should receive nothing")
	}
	if strings.Count(behindConn.String(), "DX de") != 1 {
		t.Fatalf("lagging session should receive only the unseen spot")
	}
	if behind.Cursor() != 2 {
		t.Fatalf("expected lagging cursor advanced to 2")
	}
}

func TestPollerMirrorsLinesToBroadcastHook(t *testing.T) {
	source, cache, registry := newPollerFixture(t)
	cache.Initialize(context.Background())
	addAuthenticatedSession(registry, "G4ABC")

	var mu sync.Mutex
	var mirrored []string
	poller := NewPoller(cache, registry, time.Second, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		mirrored = append(mirrored, line)
	})

	now := time.Now().UTC()
	source.add(1, now)
	source.add(2, now)
	poller.Poll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	// Rendered once per spot regardless of session count.
	if len(mirrored) != 2 {
		t.Fatalf("expected 2 mirrored lines, got %d", len(mirrored))
	}
}

func TestPollerMirrorsWithoutSessions(t *testing.T) {
	source, cache, registry := newPollerFixture(t)
	cache.Initialize(context.Background())

	var mu sync.Mutex
	var mirrored []string
	poller := NewPoller(cache, registry, time.Second, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		mirrored = append(mirrored, line)
	})

	source.add(1, time.Now().UTC())
	poller.Poll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	// Stream watchers get every spot even when no TCP session is connected,
	// and the cache cursor advance must not skip them.
	if len(mirrored) != 1 {
		t.Fatalf("expected 1 mirrored line with no sessions, got %d", len(mirrored))
	}
}

func TestPollerShedsUnresponsiveSession(t *testing.T) {
	source, cache, registry := newPollerFixture(t)
	cache.Initialize(context.Background())

	stuck := NewSession(&brokenConn{})
	stuck.Authenticate("M0BAD")
	registry.Add(stuck)
	_, healthyConn := addAuthenticatedSession(registry, "G4ABC")

	poller := NewPoller(cache, registry, time.Second, nil)
	source.add(1, time.Now().UTC())
	source.add(2, time.Now().UTC())

	done := make(chan struct{})
	go func() {
		poller.Poll(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poll stalled on an unresponsive session")
	}

	if got := strings.Count(healthyConn.String(), "DX de"); got != 2 {
		t.Fatalf("healthy session missed delivery, got %d lines in %q", got, healthyConn.String())
	}
	if !stuck.Closed() {
		t.Fatalf("expected unresponsive session closed")
	}
}

func TestPollerStartStop(t *testing.T) {
	source, cache, registry := newPollerFixture(t)
	_, conn := addAuthenticatedSession(registry, "G4ABC")

	poller := NewPoller(cache, registry, 10*time.Millisecond, nil)
	poller.Start(context.Background())

	source.add(1, time.Now().UTC())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(conn.String(), "DX de") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	poller.Stop()

	if !strings.Contains(conn.String(), "DX de") {
		t.Fatalf("expected timer-driven delivery before stop")
	}
}
