// Package transport frames raw messages over byte streams. It knows nothing about
// JSON-RPC; callers decode and validate what they read.
package transport

// file: internal/transport/transport.go

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
)

// MaxMessageSize defines the maximum allowed size for a single message in bytes.
const MaxMessageSize = 1024 * 1024 // 1MB.

// previewLen bounds the message excerpts carried by errors and logs.
const previewLen = 100

// Transport sends and receives whole messages.
// ReadMessage and WriteMessage may be called from different goroutines.
type Transport interface {
	// ReadMessage blocks until a complete message is available, the context ends,
	// or the stream closes.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends one message.
	WriteMessage(ctx context.Context, message []byte) error

	// Close shuts down the transport, closing any underlying stream.
	Close() error
}

type readResult struct {
	data []byte
	err  error
}

// NDJSONTransport implements Transport for newline-delimited JSON over a reader/writer pair.
// Partial lines are buffered until the newline arrives; blank lines are skipped.
type NDJSONTransport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger logging.Logger

	// readLock serializes readers; pending holds a line read that outlived its caller's context.
	readLock sync.Mutex
	pending  chan readResult

	writeLock sync.Mutex
	closed    bool
	closeLock sync.RWMutex
}

// NewNDJSONTransport creates a transport reading from reader and writing to writer.
// closer, when non-nil, is closed by Close.
func NewNDJSONTransport(reader io.Reader, writer io.Writer, closer io.Closer, logger logging.Logger) *NDJSONTransport {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &NDJSONTransport{
		reader: bufio.NewReader(reader),
		writer: writer,
		closer: closer,
		logger: logger.WithField("component", "ndjson_transport"),
	}
}

func (t *NDJSONTransport) isClosed() bool {
	t.closeLock.RLock()
	defer t.closeLock.RUnlock()
	return t.closed
}

// ReadMessage returns the next non-blank line without its terminator.
// An oversized line is consumed in full and reported as a message size error,
// so the following read starts on the next line.
func (t *NDJSONTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	if t.isClosed() {
		return nil, NewClosedError("read")
	}

	t.readLock.Lock()
	defer t.readLock.Unlock()

	if t.pending == nil {
		ch := make(chan readResult, 1)
		t.pending = ch
		go func() { ch <- t.readLine() }()
	}

	select {
	case <-ctx.Done():
		// The line read in flight stays pending for the next caller.
		return nil, NewTimeoutError("read", ctx.Err())
	case res := <-t.pending:
		t.pending = nil
		if res.err == nil {
			t.logger.Debug("Received raw message.", "size", len(res.data), "contentPreview", preview(res.data))
		}
		return res.data, res.err
	}
}

func (t *NDJSONTransport) readLine() readResult {
	for {
		var buffer bytes.Buffer
		oversized := false
		totalSize := 0

		for {
			line, isPrefix, err := t.reader.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) {
					if buffer.Len() > 0 && !oversized {
						// Final line without a trailing newline.
						break
					}
					return readResult{err: NewError(ErrTransportClosed, "connection closed by peer", io.EOF)}
				}
				return readResult{err: NewError(ErrGeneric, "failed to read message line", err)}
			}
			totalSize += len(line)
			if totalSize > MaxMessageSize {
				if !oversized {
					oversized = true
					buffer.Write(line[:minInt(len(line), previewLen)])
				}
			} else {
				buffer.Write(line)
			}
			if !isPrefix {
				break
			}
		}

		if oversized {
			return readResult{err: NewMessageSizeError(totalSize, MaxMessageSize, buffer.Bytes())}
		}
		msg := bytes.TrimSpace(buffer.Bytes())
		if len(msg) == 0 {
			continue
		}
		return readResult{data: msg}
	}
}

// WriteMessage writes message followed by a newline. The message must not contain a newline.
func (t *NDJSONTransport) WriteMessage(ctx context.Context, message []byte) error {
	if t.isClosed() {
		return NewClosedError("write")
	}
	if len(message) > MaxMessageSize {
		return NewMessageSizeError(len(message), MaxMessageSize, message[:minInt(len(message), previewLen)])
	}
	if bytes.IndexByte(message, '\n') >= 0 {
		return NewError(ErrInvalidMessage, "message contains a newline", nil).
			WithContext("messagePreview", preview(message))
	}
	if err := ctx.Err(); err != nil {
		return NewTimeoutError("write", err)
	}

	t.writeLock.Lock()
	defer t.writeLock.Unlock()

	buf := make([]byte, len(message)+1)
	copy(buf, message)
	buf[len(message)] = '\n'

	t.logger.Debug("Writing message.", "size", len(buf), "contentPreview", preview(message))
	n, err := t.writer.Write(buf)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		t.logger.Error("Failed to write message.", "error", err)
		return NewError(ErrGeneric, "failed to write message", err)
	}
	return nil
}

// Close implements Transport.Close.
func (t *NDJSONTransport) Close() error {
	t.closeLock.Lock()
	defer t.closeLock.Unlock()

	if t.closed {
		return nil
	}
	t.logger.Info("Closing NDJSON transport.")
	t.closed = true

	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			return NewError(ErrTransportClosed, "failed to close underlying transport stream", err)
		}
	}
	return nil
}

func preview(data []byte) string {
	return string(data[:minInt(len(data), previewLen)])
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}
