package protocol

import (
	"bufio"
	"bytes"
	"chat-relay/errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Mode is the current framing state of a Framer.
type Mode int

const (
	LineMode Mode = iota
	RawMode
)

func (m Mode) String() string {
	if m == RawMode {
		return "raw"
	}
	return "line"
}

// DeadlineSetter is implemented by net.Conn.
type DeadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// Framer reads newline-terminated lines and, when told to by a preceding
// voice-note command, exactly N raw bytes from the same stream.
// The mode only changes through ExpectPayload/ReadPayload, never by sniffing content.
// A Framer is owned by a single reader goroutine.
type Framer struct {
	reader         *bufio.Reader
	deadline       DeadlineSetter
	maxLineLength  int
	maxPayload     int64
	payloadTimeout time.Duration

	mode    Mode
	pending int64
}

type FramerOption func(*Framer)

// WithDeadline bounds the wait of every payload read.
func WithDeadline(d DeadlineSetter, timeout time.Duration) FramerOption {
	return func(f *Framer) {
		f.deadline = d
		f.payloadTimeout = timeout
	}
}

func WithMaxLineLength(n int) FramerOption {
	return func(f *Framer) { f.maxLineLength = n }
}

func WithMaxPayload(n int64) FramerOption {
	return func(f *Framer) { f.maxPayload = n }
}

// DefaultMaxPayload caps a voice note when no positive limit is configured.
const DefaultMaxPayload int64 = 10 << 20

// payloadChunk bounds the memory reserved ahead of the bytes actually received.
const payloadChunk = 64 << 10

func NewFramer(r io.Reader, opts ...FramerOption) *Framer {
	f := &Framer{reader: bufio.NewReader(r), mode: LineMode}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxPayload <= 0 {
		f.maxPayload = DefaultMaxPayload
	}
	return f
}

func (f *Framer) Mode() Mode { return f.mode }

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
// A final unterminated line before EOF is returned as a regular line.
func (f *Framer) ReadLine() (string, error) {
	if f.mode != LineMode {
		return "", fmt.Errorf("%w: %d payload bytes pending", errors.ErrFramingState, f.pending)
	}

	var line []byte
	for {
		chunk, err := f.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if f.maxLineLength > 0 && len(line) > f.maxLineLength+2 {
			return "", errors.ErrLineTooLong
		}
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && len(line) > 0:
			return trimEOL(line), nil
		case err != nil:
			return "", err
		}
		return trimEOL(line), nil
	}
}

// ExpectPayload switches the framer to raw mode for exactly n bytes.
func (f *Framer) ExpectPayload(n int64) error {
	if n < 0 {
		return errors.ErrInvalidByteLength
	}
	if n > f.maxPayload {
		return fmt.Errorf("%w: %d > %d bytes", errors.ErrVoiceNoteTooLarge, n, f.maxPayload)
	}
	f.mode = RawMode
	f.pending = n
	return nil
}

// ReadPayload consumes exactly the expected number of bytes, across as many
// partial reads as needed, then switches back to line mode.
func (f *Framer) ReadPayload() ([]byte, error) {
	if f.mode != RawMode {
		return nil, fmt.Errorf("%w: no payload expected", errors.ErrFramingState)
	}

	if f.deadline != nil && f.payloadTimeout > 0 {
		if err := f.deadline.SetReadDeadline(time.Now().Add(f.payloadTimeout)); err != nil {
			return nil, err
		}
		defer func() { _ = f.deadline.SetReadDeadline(time.Time{}) }()
	}

	// The buffer grows with the bytes received, never with the declared length.
	var payload bytes.Buffer
	payload.Grow(int(min(f.pending, payloadChunk)))
	n, err := io.CopyN(&payload, f.reader, f.pending)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("voice note payload truncated after %d of %d bytes: %w", n, f.pending, err)
	}
	f.mode = LineMode
	f.pending = 0
	return payload.Bytes(), nil
}

func trimEOL(line []byte) string {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return string(line)
}

// WriteVoiceNote frames data as a /voicenote command line followed by the raw bytes.
func WriteVoiceNote(w io.Writer, kind, target, filename string, data []byte) error {
	if strings.ContainsAny(filename, " \t\r\n") || filename == "" {
		return fmt.Errorf("invalid voice note filename %q", filename)
	}
	if strings.ContainsAny(target, " \t\r\n") || target == "" {
		return fmt.Errorf("invalid voice note target %q", target)
	}
	header := fmt.Sprintf("/voicenote %s %s %s %d\n", kind, target, filename, len(data))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
