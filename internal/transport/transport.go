// Package transport implements a framed JSON-RPC byte-stream transport with
// dual wire framings (Content-Length prefixed and newline-delimited)
// auto-detected on input, and a single configurable framing used for output.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ado-mcp/ado-work-mcp/internal/telemetry"
)

// OutputFraming selects the wire framing used for outbound messages.
type OutputFraming int

const (
	// FramingContentLength emits "Content-Length: N\r\n\r\n<body>" frames.
	// This is the default.
	FramingContentLength OutputFraming = iota
	// FramingNewline emits one JSON object per line.
	FramingNewline
)

var errAlreadyStarted = errors.New("transport already started")

// Transport reads framed JSON-RPC messages from in and writes framed
// responses to out. It is safe to call Send concurrently from any number of
// goroutines; Start and Close are not intended to be called concurrently
// with each other.
type Transport struct {
	in  io.Reader
	out io.Writer

	outputFraming OutputFraming
	logger        telemetry.Logger

	onMessage func(raw json.RawMessage)
	onError   func(err error)
	onClose   func()

	writeMu sync.Mutex

	startMu sync.Mutex
	started bool

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithOutputFraming overrides the default Content-Length output framing.
func WithOutputFraming(f OutputFraming) Option {
	return func(t *Transport) { t.outputFraming = f }
}

// WithLogger attaches a logger used for low-volume debug/error reporting.
// Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// OnMessage registers the callback invoked once per successfully decoded
// frame. It is invoked synchronously from the read loop; callers that need
// to fan work out should dispatch to a worker pool themselves.
func (t *Transport) OnMessage(fn func(raw json.RawMessage)) { t.onMessage = fn }

// OnError registers the callback invoked when a frame cannot be parsed or the
// underlying stream errors. A parse error never stops the session.
func (t *Transport) OnError(fn func(err error)) { t.onError = fn }

// OnClose registers the callback invoked exactly once when the transport
// finishes closing.
func (t *Transport) OnClose(fn func()) { t.onClose = fn }

// New constructs a Transport over the given input and output streams.
func New(in io.Reader, out io.Writer, opts ...Option) *Transport {
	t := &Transport{
		in:            in,
		out:           out,
		outputFraming: FramingContentLength,
		logger:        telemetry.NewNoopLogger(),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Start begins reading from the input stream on a background goroutine. A
// second call returns errAlreadyStarted; Start never blocks.
func (t *Transport) Start(ctx context.Context) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.started {
		return errAlreadyStarted
	}
	t.started = true
	go t.readLoop(ctx)
	return nil
}

// Send serializes message and writes a framed output. Writes are ordered:
// concurrent callers are serialized by an internal mutex, and frames appear
// on the wire in the order Send was called. Writes after Close are silently
// dropped.
func (t *Transport) Send(ctx context.Context, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("transport: marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.stopCh:
		return nil // writes after close are silently dropped
	default:
	}

	var frame []byte
	switch t.outputFraming {
	case FramingNewline:
		frame = append(append([]byte{}, body...), '\n')
	default:
		header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
		frame = append([]byte(header), body...)
	}
	if _, err := t.out.Write(frame); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Close stops reading, and invokes the onclose callback exactly once. Close
// does not attempt to interrupt an in-flight blocking Read on the input
// stream; callers that need prompt shutdown should use an input stream whose
// Read returns on context cancellation (e.g. one built over a pipe/conn).
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopCh)
		if t.onClose != nil {
			t.onClose()
		}
	})
	return nil
}

// Done returns a channel closed once the read loop has exited.
func (t *Transport) Done() <-chan struct{} { return t.doneCh }

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.doneCh)

	r := bufio.NewReaderSize(t.in, 64*1024)
	var buf bytes.Buffer

	chunk := make([]byte, 32*1024)
	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		for t.tryExtractFrame(&buf) {
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			for t.tryExtractFrame(&buf) {
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.reportError(fmt.Errorf("transport: read: %w", err))
			}
			return
		}
	}
}

// tryExtractFrame attempts to pull exactly one complete frame out of buf. It
// returns true if progress was made (a frame was decoded, an error was
// reported, or malformed bytes were skipped) and the caller should try
// again immediately; false means buf does not yet hold enough bytes to
// decide and the read loop should go back to the input stream.
func (t *Transport) tryExtractFrame(buf *bytes.Buffer) bool {
	b := buf.Bytes()

	// Newline framing ignores empty lines; Content-Length framing never
	// legitimately starts with a bare newline either, so trimming is safe
	// for both framings.
	if len(b) > 0 && (b[0] == '\n' || b[0] == '\r') {
		buf.Next(1)
		return true
	}
	if len(b) == 0 {
		return false
	}

	switch {
	case b[0] == 'C':
		return t.extractContentLengthFrame(buf)
	case b[0] == '{':
		return t.extractNewlineFrame(buf)
	default:
		t.reportError(fmt.Errorf("transport: unrecognized frame start byte %q", b[0]))
		buf.Next(1)
		return true
	}
}

func (t *Transport) extractContentLengthFrame(buf *bytes.Buffer) bool {
	b := buf.Bytes()
	headerEnd := bytes.Index(b, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		// Not enough bytes yet to see the full header block.
		return false
	}
	header := string(b[:headerEnd])
	length, ok := parseContentLength(header)
	if !ok {
		// Malformed Content-Length value: skip just the offending header
		// line (up to the first \r\n) and resume detection on what remains
		// rather than discarding the buffer.
		firstLineEnd := bytes.Index(b, []byte("\r\n"))
		if firstLineEnd < 0 {
			firstLineEnd = headerEnd
		}
		t.reportError(fmt.Errorf("transport: malformed Content-Length header %q", header))
		buf.Next(firstLineEnd + 2)
		return true
	}

	frameEnd := headerEnd + 4 + length
	if buf.Len() < frameEnd {
		return false // body not fully arrived yet
	}

	body := make([]byte, length)
	copy(body, b[headerEnd+4:frameEnd])
	buf.Next(frameEnd)

	t.decodeAndDeliver(body)
	return true
}

func (t *Transport) extractNewlineFrame(buf *bytes.Buffer) bool {
	b := buf.Bytes()
	nl := bytes.IndexByte(b, '\n')
	if nl < 0 {
		return false
	}
	line := b[:nl]
	line = bytes.TrimSuffix(line, []byte("\r"))
	body := make([]byte, len(line))
	copy(body, line)
	buf.Next(nl + 1)

	if len(bytes.TrimSpace(body)) == 0 {
		return true // empty lines are ignored
	}
	t.decodeAndDeliver(body)
	return true
}

func (t *Transport) decodeAndDeliver(body []byte) {
	var probe json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		t.reportError(fmt.Errorf("transport: parse: %w", err))
		return
	}
	if t.onMessage != nil {
		t.onMessage(probe)
	}
}

func (t *Transport) reportError(err error) {
	if t.onError != nil {
		t.onError(err)
	}
}

// parseContentLength extracts the integer byte count from a header block of
// the form "Content-Length: N". The header name comparison is
// case-insensitive; a missing colon or a non-integer value is reported as
// not-ok so the caller can skip the line and keep the session alive.
func parseContentLength(header string) (int, bool) {
	for _, line := range strings.Split(header, "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
