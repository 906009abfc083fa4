// Package server accepts TCP connections and runs the per-connection
// read, dispatch and write loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"httpd/internal/request"
	"httpd/internal/response"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Dispatcher produces the response for a parsed request.
type Dispatcher interface {
	Dispatch(req *request.Request) *response.Response
}

// Options tunes connection handling.
type Options struct {
	// IdleTimeout closes a connection that sends no request for this long; 0 waits forever
	IdleTimeout time.Duration
	// ReadBufferSize is the size of a single socket read
	ReadBufferSize int
	// MaxRequestBytes caps how much is buffered for one request including its body
	MaxRequestBytes int
	// RetryAfterSeconds is advertised to connections refused by the Spawner
	RetryAfterSeconds int
}

// DefaultOptions returns options matching the default configuration.
func DefaultOptions() Options {
	return Options{
		ReadBufferSize:    1024,
		MaxRequestBytes:   1 << 20,
		RetryAfterSeconds: 1,
	}
}

// Stats is a point-in-time snapshot of server counters.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Active   int64 `json:"active"`
	Rejected int64 `json:"rejected"`
	Requests int64 `json:"requests"`
}

// Server owns the listener and the set of live connections.
type Server struct {
	dispatcher Dispatcher
	spawner    Spawner
	opts       Options
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	wg       sync.WaitGroup
	closing  atomic.Bool

	accepted atomic.Int64
	active   atomic.Int64
	rejected atomic.Int64
	requests atomic.Int64
}

// New creates a server. A nil spawner runs every connection unbounded.
func New(dispatcher Dispatcher, spawner Spawner, opts Options, logger *slog.Logger) *Server {
	if spawner == nil {
		spawner = Unbounded{}
	}
	defaults := DefaultOptions()
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaults.ReadBufferSize
	}
	if opts.MaxRequestBytes < opts.ReadBufferSize {
		opts.MaxRequestBytes = max(defaults.MaxRequestBytes, opts.ReadBufferSize)
	}
	return &Server{
		dispatcher: dispatcher,
		spawner:    spawner,
		opts:       opts,
		logger:     logger,
		conns:      make(map[*conn]struct{}),
	}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called or l fails
// permanently. Each admitted connection runs on its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("Accepting connections", "addr", l.Addr().String())

	var backoff time.Duration
	for {
		nc, err := l.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			// transient accept failure: one bad accept never stops the loop
			backoff = nextBackoff(backoff)
			s.logger.Warn("Accept failed", "error", err, "retryIn", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.accepted.Add(1)
		s.admit(nc)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}

func (s *Server) admit(nc net.Conn) {
	if s.closing.Load() {
		_ = nc.Close()
		return
	}
	c := &conn{
		server:  s,
		netConn: nc,
		id:      uuid.New().String(),
	}
	c.logger = s.logger.With("conn", c.id, "remote", nc.RemoteAddr().String())

	// nothing has been read yet, so Shutdown may close it while it waits for a slot
	c.idle.Store(true)

	s.wg.Add(1)
	s.track(c, true)

	s.spawner.Spawn(
		func() {
			defer s.wg.Done()
			defer s.track(c, false)
			c.serve()
		},
		func() {
			defer s.wg.Done()
			s.track(c, false)
			s.reject(c)
		},
	)
}

// reject tells a refused client to come back later and closes its connection.
func (s *Server) reject(c *conn) {
	s.rejected.Add(1)
	c.logger.Warn("Connection rejected", "reason", "connection limit reached")

	_ = c.netConn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = response.Unavailable(s.opts.RetryAfterSeconds).WriteTo(c.netConn)
	_ = c.netConn.Close()
}

func (s *Server) track(c *conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		s.active.Add(1)
		return
	}
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		s.active.Add(-1)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Active:   s.active.Load(),
		Rejected: s.rejected.Load(),
		Requests: s.requests.Load(),
	}
}

// Shutdown stops accepting, closes idle connections and waits for in-flight
// exchanges to finish writing. When ctx expires first, remaining connections
// are closed and ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	s.mu.Lock()
	var lerr error
	if s.listener != nil {
		lerr = s.listener.Close()
	}
	s.mu.Unlock()

	s.closeConns(true)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.logger.Info("Server stopped", "accepted", s.accepted.Load(), "requests", s.requests.Load(), "rejected", s.rejected.Load())
			if lerr != nil && !errors.Is(lerr, net.ErrClosed) {
				return fmt.Errorf("failed to close listener: %w", lerr)
			}
			return nil
		case <-ticker.C:
			// connections that finished a response since the last pass are now idle
			s.closeConns(true)
		case <-ctx.Done():
			s.closeConns(false)
			return ctx.Err()
		}
	}
}

func (s *Server) closeConns(idleOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if idleOnly && !c.idle.Load() {
			continue
		}
		_ = c.netConn.Close()
	}
}
