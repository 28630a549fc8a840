// file: internal/transport/in_memory_transport.go
package transport

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// InMemoryTransport is a Transport over channels, paired with a peer for tests.
type InMemoryTransport struct {
	incoming chan []byte
	outgoing chan []byte

	done      chan struct{}
	closed    bool
	closeLock sync.Mutex
}

// InMemoryTransportPair links a client transport to a server transport.
type InMemoryTransportPair struct {
	ClientTransport *InMemoryTransport
	ServerTransport *InMemoryTransport
}

// NewInMemoryTransportPair creates two transports; what one writes, the other reads.
func NewInMemoryTransportPair() *InMemoryTransportPair {
	clientToServer := make(chan []byte, 100)
	serverToClient := make(chan []byte, 100)

	return &InMemoryTransportPair{
		ClientTransport: &InMemoryTransport{incoming: serverToClient, outgoing: clientToServer, done: make(chan struct{})},
		ServerTransport: &InMemoryTransport{incoming: clientToServer, outgoing: serverToClient, done: make(chan struct{})},
	}
}

// ReadMessage implements Transport.ReadMessage.
// It returns a closed error once this side is closed or the peer closed its side
// and every message it sent has been drained.
func (t *InMemoryTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return nil, NewClosedError("read")
	default:
	}

	select {
	case <-ctx.Done():
		return nil, NewTimeoutError("read", errors.Wrap(ctx.Err(), "context cancelled during read"))
	case <-t.done:
		return nil, NewClosedError("read")
	case msg, ok := <-t.incoming:
		if !ok {
			return nil, NewClosedError("read from closed channel")
		}
		return msg, nil
	}
}

// WriteMessage implements Transport.WriteMessage.
func (t *InMemoryTransport) WriteMessage(ctx context.Context, message []byte) error {
	t.closeLock.Lock()
	defer t.closeLock.Unlock()

	if t.closed {
		return NewClosedError("write")
	}
	if len(message) > MaxMessageSize {
		return NewMessageSizeError(len(message), MaxMessageSize, message[:minInt(len(message), previewLen)])
	}

	msg := append([]byte(nil), message...)
	select {
	case <-ctx.Done():
		return NewTimeoutError("write", ctx.Err())
	case t.outgoing <- msg:
		return nil
	}
}

// CloseWrite closes the outgoing channel so the peer sees end of stream once it
// has drained what was already sent. Later writes fail.
func (t *InMemoryTransport) CloseWrite() {
	t.closeLock.Lock()
	defer t.closeLock.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.outgoing)
}

// Close implements Transport.Close. It also ends the peer's stream.
func (t *InMemoryTransport) Close() error {
	t.CloseWrite()
	t.closeLock.Lock()
	defer t.closeLock.Unlock()
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	return nil
}
