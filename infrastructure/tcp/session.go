package tcp

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"chat-relay/sink"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

type State int32

const (
	Connecting State = iota
	Registering
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Registering:
		return "registering"
	case Active:
		return "active"
	default:
		return "closed"
	}
}

type SessionConfig struct {
	BufferSize     int
	MaxLineLength  int
	MaxPayload     int64
	PayloadTimeout time.Duration
	WriteTimeout   time.Duration
	// DrainTimeout bounds how long a closing session waits for queued lines.
	DrainTimeout time.Duration
}

// Session owns one client connection from the welcome line to the close.
// Only its own goroutine reads from the connection, every other goroutine
// reaches the client through its sink.
type Session struct {
	log      *slog.Logger
	conn     net.Conn
	registry contract.IRegistry
	router   contract.IRouter
	config   SessionConfig

	sink     *sink.LineSink
	framer   *protocol.Framer
	username string
	state    atomic.Int32
	pumpDone chan struct{}
}

func NewSession(log *slog.Logger, conn net.Conn, registry contract.IRegistry,
	router contract.IRouter, config SessionConfig) *Session {
	opts := []protocol.FramerOption{protocol.WithDeadline(conn, config.PayloadTimeout)}
	if config.MaxLineLength > 0 {
		opts = append(opts, protocol.WithMaxLineLength(config.MaxLineLength))
	}
	if config.MaxPayload > 0 {
		opts = append(opts, protocol.WithMaxPayload(config.MaxPayload))
	}
	return &Session{
		log:      log.With("remote", conn.RemoteAddr().String()),
		conn:     conn,
		registry: registry,
		router:   router,
		config:   config,
		sink:     sink.NewLineSink(log, config.BufferSize, config.WriteTimeout),
		framer:   protocol.NewFramer(conn, opts...),
		pumpDone: make(chan struct{}),
	}
}

// Serve blocks until the client quits, disconnects or ctx is canceled.
func (s *Session) Serve(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	go s.pump(s.log)
	defer s.close(ctx)

	s.send(protocol.WelcomeLine)
	if !s.register(ctx) {
		return
	}
	s.readLoop(ctx)
}

// pump closes the connection on a write failure so that the read loop
// fails too and the session unregisters itself.
func (s *Session) pump(log *slog.Logger) {
	defer close(s.pumpDone)
	if err := s.sink.Pump(s.conn); err != nil {
		log.Debug("Outbound write failed", "error", err)
		_ = s.conn.Close()
	}
}

func (s *Session) register(ctx context.Context) bool {
	s.state.Store(int32(Registering))

	line, err := s.framer.ReadLine()
	if err != nil {
		s.logReadError("Disconnected before registering", err)
		return false
	}
	username := strings.TrimSpace(line)
	if username == "" {
		s.log.Debug("Blank username, closing")
		return false
	}

	if err := s.registry.Register(username, s.sink, protocol.Greeting(username)); err != nil {
		if errors.Is(err, errors.ErrUsernameTaken) {
			s.send(protocol.UsernameTaken(username))
		}
		s.log.Info("Registration refused", "username", username, "error", err)
		return false
	}
	s.username = username
	s.state.Store(int32(Active))
	s.log = s.log.With("username", username)
	s.log.Info("User registered")

	s.router.Notify(ctx, username, protocol.JoinedNotice(username))
	return true
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		line, err := s.framer.ReadLine()
		if err != nil {
			s.logReadError("Disconnected", err)
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := protocol.ParseLine(line)
		if err != nil {
			s.send(protocol.Error(err))
			continue
		}

		switch c := cmd.(type) {
		case domain.QuitCommand:
			s.log.Info("User quit")
			return
		case domain.SendVoiceNoteCommand:
			if !s.voiceNote(ctx, c) {
				return
			}
		default:
			if _, err := s.router.Route(ctx, s.username, cmd); err != nil {
				s.send(protocol.Error(err))
			}
		}
	}
}

// voiceNote reads the payload announced by the header. The connection cannot
// be resynchronised once a payload is refused or short, so false closes it.
func (s *Session) voiceNote(ctx context.Context, cmd domain.SendVoiceNoteCommand) bool {
	if err := s.framer.ExpectPayload(cmd.ByteLength); err != nil {
		s.send(protocol.Error(err))
		s.log.Warn("Voice note refused", "bytes", cmd.ByteLength, "error", err)
		return false
	}
	payload, err := s.framer.ReadPayload()
	if err != nil {
		s.log.Warn("Voice note payload not received", "bytes", cmd.ByteLength, "error", err)
		return false
	}
	if _, err := s.router.RouteVoiceNote(ctx, s.username, cmd, payload); err != nil {
		s.send(protocol.Error(err))
	}
	return true
}

// close runs exactly once per session, whatever ended it.
func (s *Session) close(ctx context.Context) {
	previous := State(s.state.Swap(int32(Closed)))
	if previous == Active {
		s.registry.Unregister(s.username)
		s.router.Notify(context.WithoutCancel(ctx), s.username, protocol.LeftNotice(s.username))
	}

	s.sink.Close()
	select {
	case <-s.pumpDone:
	case <-time.After(s.drainTimeout()):
		s.log.Debug("Outbound queue not drained before close", "pending", s.sink.Pending())
	}
	_ = s.conn.Close()
	<-s.pumpDone
	s.log.Debug("Session closed", "from", previous.String())
}

func (s *Session) drainTimeout() time.Duration {
	if s.config.DrainTimeout > 0 {
		return s.config.DrainTimeout
	}
	return time.Second
}

func (s *Session) send(line string) {
	if err := s.sink.Deliver(line); err != nil {
		s.log.Debug("Reply dropped", "error", err)
	}
}

func (s *Session) logReadError(msg string, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		s.log.Info(msg)
		return
	}
	s.log.Warn(msg, "error", err)
}
