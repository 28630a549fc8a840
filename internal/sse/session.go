package sse

// file: internal/sse/session.go

import (
	"sync"
	"time"

	"github.com/dkoosis/toolrelay/internal/mcperror"
	"github.com/google/uuid"
)

// sessionQueueSize bounds responses waiting to be written to one stream.
const sessionQueueSize = 64

// Session is one client's event stream. Responses are queued by dispatch
// goroutines and written by the stream handler that owns the connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// mu orders Enqueue against close: once close returns, nothing more is queued.
	mu     sync.RWMutex
	closed bool
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		queue:     make(chan []byte, sessionQueueSize),
		done:      make(chan struct{}),
	}
}

// Enqueue hands msg to the stream. It reports false when the session closed first;
// the message is then undeliverable.
func (s *Session) Enqueue(msg []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- msg:
		return true
	case <-s.done:
		return false
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
}

// takePending empties the queue without blocking. After close it returns
// every message that was accepted but never written.
func (s *Session) takePending() [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-s.queue:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Table maps session ids to live sessions. Each method is atomic with respect to the others.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Open creates a session under a fresh id.
func (t *Table) Open() *Session {
	s := newSession()
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.sessions[s.ID] != nil {
		s.ID = uuid.NewString()
	}
	t.sessions[s.ID] = s
	return s
}

// Lookup returns the live session for id or a SessionNotFound error.
func (t *Table) Lookup(id string) (*Session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, mcperror.NewSessionNotFoundError(id)
	}
	return s, nil
}

// Close ends and removes the session. It reports whether the session was live.
func (t *Table) Close(id string) bool {
	t.mu.Lock()
	s, ok := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()
	if ok {
		s.close()
	}
	return ok
}

// CloseAll ends every session and returns how many were live.
func (t *Table) CloseAll() int {
	t.mu.Lock()
	all := t.sessions
	t.sessions = make(map[string]*Session)
	t.mu.Unlock()
	for _, s := range all {
		s.close()
	}
	return len(all)
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
