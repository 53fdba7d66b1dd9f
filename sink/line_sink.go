package sink

import (
	"bufio"
	"chat-relay/contract"
	"chat-relay/errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

var _ contract.Sink = (*LineSink)(nil)

// DeadlineWriter is implemented by net.Conn.
type DeadlineWriter interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
}

// LineSink is the bounded outbound buffer of one connection.
// Deliver is called by any router goroutine, Pump is run by the owner of the connection.
type LineSink struct {
	log          *slog.Logger
	lines        chan string
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewLineSink(log *slog.Logger, bufferSize int, writeTimeout time.Duration) *LineSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &LineSink{log: log, lines: make(chan string, bufferSize), writeTimeout: writeTimeout}
}

// Deliver queues line without waiting for the recipient.
// A full buffer only affects this recipient.
func (s *LineSink) Deliver(line string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.ErrSinkClosed
	}
	select {
	case s.lines <- line:
		return nil
	default:
		return errors.ErrSinkFull
	}
}

// Close stops accepting lines. Lines already queued are still written by Pump.
func (s *LineSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.lines)
	}
}

func (s *LineSink) Pending() int { return len(s.lines) }

// Pump writes queued lines in FIFO order until the sink is closed and drained,
// or until a write fails. Writes are flushed whenever the queue runs empty.
func (s *LineSink) Pump(w DeadlineWriter) error {
	bw := bufio.NewWriter(w)
	for line := range s.lines {
		if s.writeTimeout > 0 {
			if err := w.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if len(s.lines) == 0 {
			if err := bw.Flush(); err != nil {
				return err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	s.log.Debug("Outbound sink drained")
	return nil
}
