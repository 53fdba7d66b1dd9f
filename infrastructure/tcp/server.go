package tcp

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	acceptBackoff = 50 * time.Millisecond
	rejectTimeout = time.Second
)

var _ contract.Worker = (*Server)(nil)

// Server is the accept loop of the relay. Each accepted connection gets its
// own Session goroutine, at most maxConnections at a time.
type Server struct {
	log      *slog.Logger
	listener net.Listener
	registry contract.IRegistry
	router   contract.IRouter
	config   SessionConfig
	pool     *semaphore.Weighted

	active   atomic.Int64
	sessions sync.WaitGroup
}

func NewServer(log *slog.Logger, listener net.Listener, registry contract.IRegistry,
	router contract.IRouter, maxConnections int64, config SessionConfig) *Server {
	if maxConnections <= 0 {
		maxConnections = 1
	}
	return &Server{
		log:      log,
		listener: listener,
		registry: registry,
		router:   router,
		config:   config,
		pool:     semaphore.NewWeighted(maxConnections),
	}
}

func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// ActiveConnections counts the sessions currently served.
func (s *Server) ActiveConnections() int64 { return s.active.Load() }

// Run accepts connections until ctx is canceled or the listener is closed.
// Canceling ctx closes every open session, Run returns once they are all gone.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.listener.Close() })
	defer stop()
	defer s.sessions.Wait()

	s.log.Info("Relay listening", "address", s.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("Accept loop stopped")
				return nil
			}
			s.log.Warn("Accept failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptBackoff):
			}
			continue
		}

		if !s.pool.TryAcquire(1) {
			s.reject(conn)
			continue
		}
		s.active.Add(1)
		s.sessions.Add(1)
		go s.serve(ctx, conn)
	}
}

// serve runs one session. A panic ends that session only, the session's own
// cleanup has already run while the panic unwound Serve.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer s.sessions.Done()
	defer s.active.Add(-1)
	defer s.pool.Release(1)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Session panic recovered", "remote", conn.RemoteAddr().String(), "panic", r)
			_ = conn.Close()
		}
	}()
	NewSession(s.log, conn, s.registry, s.router, s.config).Serve(ctx)
}

func (s *Server) reject(conn net.Conn) {
	s.log.Warn("Connection refused", "remote", conn.RemoteAddr().String(), "error", errors.ErrServerFull)
	_ = conn.SetWriteDeadline(time.Now().Add(rejectTimeout))
	_, _ = conn.Write([]byte(protocol.ServerFull + "\n"))
	_ = conn.Close()
}
