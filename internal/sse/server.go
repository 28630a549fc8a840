// Package sse serves the dispatcher to many HTTP clients at once. Each client
// opens an event stream on GET /mcp, learns its private command endpoint from the
// first event, and POSTs requests there; responses come back on the stream.
package sse

// file: internal/sse/server.go

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/auth"
	"github.com/dkoosis/toolrelay/internal/jsonrpc"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/metrics"
	"github.com/klauspost/compress/gzhttp"
)

// Route paths.
const (
	StreamPath  = "/mcp"
	MessagePath = "/mcp/message"
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// DefaultMaxBodyBytes caps a POSTed command.
const DefaultMaxBodyBytes = 1 << 20

// Dispatcher turns one raw envelope into a response.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) (*jsonrpc.Response, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// BaseURL prefixes the command endpoint announced to clients; empty means a relative path.
	BaseURL string
	// KeepAliveInterval between comment lines on idle streams; zero disables them.
	KeepAliveInterval time.Duration
	MaxBodyBytes      int64
	AuthHeader        string
	// Checker validates credentials; nil accepts any non-empty credential.
	Checker auth.CredentialChecker
	Metrics *metrics.Collector
	Logger  logging.Logger
}

// Server is the session transport.
type Server struct {
	opts       Options
	dispatcher Dispatcher
	table      *Table
	gate       *auth.Gate
	logger     logging.Logger

	// baseCtx parents dispatches, which outlive the POST that started them.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	inflight   sync.WaitGroup
	closing    atomic.Bool

	// mu guards httpServer and orders inflight.Add against Shutdown.
	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a session transport over d.
func NewServer(d Dispatcher, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.GetNoopLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:       opts,
		dispatcher: d,
		table:      NewTable(),
		gate:       auth.NewGate(opts.AuthHeader, opts.Checker, opts.Logger),
		logger:     opts.Logger.WithField("component", "sse_server"),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Sessions exposes the session table.
func (s *Server) Sessions() *Table {
	return s.table
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+StreamPath, s.gate.Middleware(http.HandlerFunc(s.handleStream)))
	mux.Handle("POST "+MessagePath, s.gate.Middleware(http.HandlerFunc(s.handleMessage)))
	mux.HandleFunc("GET "+HealthPath, s.handleHealth)

	metricsHandler := http.Handler(s.gate.Middleware(http.HandlerFunc(s.handleMetrics)))
	if gz, err := gzhttp.NewWrapper(gzhttp.MinSize(0)); err == nil {
		metricsHandler = gz(metricsHandler)
	} else {
		s.logger.Warn("Metrics compression disabled.", "error", err)
	}
	mux.Handle("GET "+MetricsPath, metricsHandler)

	return s.logRequests(mux)
}

// ListenAndServe binds opts.Addr and serves until Shutdown. A bind failure is returned at once.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.opts.Addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: event streams stay open indefinitely.
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Session transport listening.", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown stops accepting work, waits for in-flight dispatches so their responses
// can still be delivered, then closes every session and the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		return nil
	}
	s.closing.Store(true)
	s.mu.Unlock()
	s.logger.Info("Shutting down session transport.", "sessions", s.table.Len())

	waited := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(waited)
	}()
	var err error
	select {
	case <-waited:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "in-flight dispatches did not finish")
	}

	closed := s.table.CloseAll()
	s.cancelBase()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		err = errors.CombineErrors(err, srv.Shutdown(ctx))
	}
	s.logger.Info("Session transport stopped.", "closedSessions", closed)
	return err
}

// beginDispatch registers an in-flight dispatch unless shutdown has started.
func (s *Server) beginDispatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request handled.", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) endpointFor(id string) string {
	return fmt.Sprintf("%s%s?sessionId=%s", s.opts.BaseURL, MessagePath, id)
}
