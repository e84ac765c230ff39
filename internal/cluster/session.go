package cluster

import (
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	promptSuffix = " de WOTA cluster > "
	farewell     = "73 de WOTA cluster. Goodbye!\r\n"
	loginPrompt  = "login: "
)

var callsignPattern = regexp.MustCompile(`^[A-Z0-9]+(/[A-Z0-9]+)?$`)

// IsValidCallsign reports whether s looks like an amateur radio callsign:
// 3-15 alphanumeric characters with at most one "/suffix", the base portion
// containing at least one letter and one digit.
func IsValidCallsign(s string) bool {
	if len(s) < 3 || len(s) > 15 {
		return false
	}
	upper := strings.ToUpper(s)
	if !callsignPattern.MatchString(upper) {
		return false
	}

	base := upper
	if idx := strings.IndexByte(upper, '/'); idx >= 0 {
		base = upper[:idx]
	}
	hasLetter, hasDigit := false, false
	for _, r := range base {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// Session is one cluster connection. The reader goroutine owns the login
// and command path; the poller goroutine reads the registry and advances
// delivery cursors, so cursor and write access are guarded.
type Session struct {
	ID          string
	ConnectedAt time.Time

	conn net.Conn

	mu             sync.Mutex
	callsign       string
	authenticated  bool
	closed         bool
	lastSeenSpotID int
	pingMinutes    int
	keepaliveStop  chan struct{}
}

func NewSession(conn net.Conn) *Session {
	return &Session{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

const writeTimeout = 5 * time.Second

// Send writes raw protocol text to the client, bounded by a write deadline.
// A failed or timed-out write closes the session, so a peer that stops
// reading cannot stall delivery to every other session.
func (s *Session) Send(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := s.conn.Write([]byte(text))
	s.mu.Unlock()

	if err != nil {
		s.Close()
	}
}

// Prompt re-sends the command prompt for an authenticated session.
func (s *Session) Prompt() {
	if call := s.Callsign(); call != "" {
		s.Send(call + promptSuffix)
	}
}

// Authenticate normalizes and validates the callsign, transitioning the
// session out of the login state. Returns false when the callsign is
// rejected and the session should be reprompted.
func (s *Session) Authenticate(callsign string) bool {
	clean := strings.ToUpper(strings.TrimSpace(callsign))
	if !IsValidCallsign(clean) {
		return false
	}

	s.mu.Lock()
	s.callsign = clean
	s.authenticated = true
	s.mu.Unlock()
	return true
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) Callsign() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callsign
}

// Cursor returns the id of the most recent spot delivered to this session.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeenSpotID
}

// AdvanceCursor moves the delivery cursor forward, never backward.
func (s *Session) AdvanceCursor(spotID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spotID > s.lastSeenSpotID {
		s.lastSeenSpotID = spotID
	}
}

func (s *Session) PingMinutes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingMinutes
}

// SetKeepalive (re)schedules the periodic keepalive prompt, canceling any
// existing timer first.
func (s *Session) SetKeepalive(minutes int) {
	s.mu.Lock()
	if s.keepaliveStop != nil {
		close(s.keepaliveStop)
		s.keepaliveStop = nil
	}
	if s.closed || minutes <= 0 {
		s.mu.Unlock()
		return
	}
	s.pingMinutes = minutes
	stop := make(chan struct{})
	s.keepaliveStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Prompt()
			case <-stop:
				return
			}
		}
	}()
}

// Close cancels the keepalive timer and destroys the transport. Safe to call
// more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.keepaliveStop != nil {
		close(s.keepaliveStop)
		s.keepaliveStop = nil
	}
	s.mu.Unlock()

	_ = s.conn.Close()
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Registry is the shared session table. The accept/read paths insert and
// remove; the poller iterates and updates cursors.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Authenticated returns a snapshot of the sessions that completed login.
func (r *Registry) Authenticated() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.Authenticated() {
			out = append(out, s)
		}
	}
	return out
}

// CloseAll closes every session and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
