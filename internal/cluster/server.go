package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

const idleTimeout = 30 * time.Minute

var welcomeBanner = strings.Join([]string{
	"",
	"Welcome to the WOTA Cluster",
	"Set your keepalive pings to no less than 15mins",
	"",
	loginPrompt,
}, "\r\n")

// Server accepts cluster connections, owns the session registry and wires
// sessions to the spot poller.
type Server struct {
	port     int
	cache    *Cache
	registry *Registry
	poller   *Poller
	commands *Commands

	ln     net.Listener
	cancel context.CancelFunc
}

func NewServer(port int, cache *Cache, pollInterval time.Duration, broadcast func(string)) *Server {
	registry := NewRegistry()
	return &Server{
		port:     port,
		cache:    cache,
		registry: registry,
		poller:   NewPoller(cache, registry, pollInterval, broadcast),
		commands: NewCommands(cache, registry),
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Cache() *Cache {
	return s.cache
}

// Start binds the listener and launches the accept loop and poller. A bind
// failure is the one startup error callers should treat as fatal.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("cluster: listen on port %d: %w", s.port, err)
	}
	s.ln = ln

	ctx, s.cancel = context.WithCancel(ctx)
	s.poller.Start(ctx)

	go s.acceptLoop(ctx)
	log.Printf("cluster: listening on port %d", s.port)
	return nil
}

func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.poller.Stop()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.registry.CloseAll()
	log.Printf("cluster: stopped")
}

// Addr returns the bound listener address, for tests that listen on port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("cluster: accept error: %v", err)
			continue
		}
		go s.HandleConn(conn)
	}
}

// HandleConn runs the read path for one connection: welcome banner, then a
// login/command line loop until the session closes. An ETX byte anywhere in
// an inbound chunk forces an immediate farewell regardless of line
// buffering; the idle deadline drops silent connections.
func (s *Server) HandleConn(conn net.Conn) {
	sess := NewSession(conn)
	s.registry.Add(sess)
	defer s.teardown(sess)

	log.Printf("cluster: new connection from %s", conn.RemoteAddr())
	sess.Send(welcomeBanner)

	buf := make([]byte, 1024)
	var pending []byte
	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Printf("cluster: idle timeout for %s", sess.Callsign())
			}
			return
		}

		chunk := buf[:n]
		if bytes.IndexByte(chunk, etx) >= 0 {
			sess.Send("\r\n" + farewell)
			return
		}

		pending = append(pending, chunk...)
		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimRight(string(pending[:idx]), "\r")
			pending = pending[idx+1:]
			if s.handleLine(sess, line) {
				return
			}
		}
	}
}

func (s *Server) teardown(sess *Session) {
	sess.Close()
	s.registry.Remove(sess)
	log.Printf("cluster: session closed callsign=%q", sess.Callsign())
}

// handleLine dispatches one inbound line, reporting whether the session
// should disconnect.
func (s *Server) handleLine(sess *Session, line string) bool {
	if !sess.Authenticated() {
		if !IsValidCallsign(strings.TrimSpace(line)) {
			sess.Send("Invalid callsign format. Please try again.\r\n" + loginPrompt)
			return false
		}

		// Snapshot the backfill and set the cursor before the session becomes
		// visible to the poller, so these spots are never delivered twice.
		backfill := s.cache.Recent(backfillCount, 0)
		if len(backfill) > 0 {
			sess.AdvanceCursor(backfill[len(backfill)-1].ID)
		}
		sess.Authenticate(line)

		log.Printf("cluster: session authenticated callsign=%s", sess.Callsign())
		sess.Send("\r\nHello " + sess.Callsign() + ", welcome to the WOTA cluster.\r\n")
		sess.Send("Type \"help\" for available commands.\r\n\r\n")

		for _, sp := range backfill {
			sess.Send(FormatSpot(sp))
		}
		sess.Prompt()
		return false
	}

	return s.commands.Execute(sess, line)
}
