package sse

// file: internal/sse/handlers.go

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/httputils"
	"github.com/dkoosis/toolrelay/internal/jsonrpc"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/mcperror"
)

// handleStream opens a session and holds the event stream until the client leaves
// or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		httputils.WriteJSON(w, http.StatusServiceUnavailable, httputils.ErrorBody{Error: "server shutting down"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputils.WriteJSON(w, http.StatusInternalServerError, httputils.ErrorBody{Error: "streaming unsupported"})
		return
	}

	sess := s.table.Open()
	s.opts.Metrics.RecordSession(sess.ID, true)
	logger := s.logger.WithField("sessionId", sess.ID)
	logger.Info("Session opened.", "remoteAddr", r.RemoteAddr)
	defer func() {
		s.table.Close(sess.ID)
		sess.close()
		s.dropPending(sess, logger)
		s.opts.Metrics.RecordSession(sess.ID, false)
		logger.Info("Session closed.", "duration", time.Since(sess.CreatedAt))
	}()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "endpoint", s.endpointFor(sess.ID)); err != nil {
		logger.Debug("Failed to announce endpoint.", "error", err)
		return
	}
	flusher.Flush()

	var keepAlive <-chan time.Time
	if s.opts.KeepAliveInterval > 0 {
		ticker := time.NewTicker(s.opts.KeepAliveInterval)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			s.drain(w, flusher, sess)
			return
		case msg := <-sess.queue:
			if err := writeEvent(w, "message", string(msg)); err != nil {
				logger.Warn("Failed to write response to stream, dropping it.", "error", err)
				s.opts.Metrics.RecordUndelivered()
				return
			}
			flusher.Flush()
		case <-keepAlive:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// drain writes responses queued before the session closed. Whatever it cannot
// write is left for dropPending.
func (s *Server) drain(w io.Writer, flusher http.Flusher, sess *Session) {
	for {
		select {
		case msg := <-sess.queue:
			if err := writeEvent(w, "message", string(msg)); err != nil {
				return
			}
		default:
			flusher.Flush()
			return
		}
	}
}

// dropPending counts and logs responses still queued on a closed session.
func (s *Server) dropPending(sess *Session, logger logging.Logger) int {
	pending := sess.takePending()
	for _, msg := range pending {
		logger.Warn("Stream ended before response was delivered, dropping it.", "preview", jsonrpc.Preview(msg))
		s.opts.Metrics.RecordUndelivered()
	}
	return len(pending)
}

// handleMessage accepts one command for a session. The response is delivered on the
// session's stream; the POST itself only acknowledges receipt.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		httputils.WriteJSON(w, http.StatusBadRequest, httputils.ErrorBody{Error: "missing sessionId"})
		return
	}
	sess, err := s.table.Lookup(id)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputils.WriteJSON(w, http.StatusRequestEntityTooLarge, httputils.ErrorBody{Error: "request body too large"})
			return
		}
		httputils.WriteJSON(w, http.StatusBadRequest, httputils.ErrorBody{Error: "failed to read request body"})
		return
	}
	if _, err := jsonrpc.ParseRequest(body); err != nil {
		s.opts.Metrics.RecordProtocolError()
		httputils.WriteError(w, err)
		return
	}
	if !s.beginDispatch() {
		httputils.WriteJSON(w, http.StatusServiceUnavailable, httputils.ErrorBody{Error: "server shutting down"})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")

	go s.dispatch(sess, body)
}

func (s *Server) dispatch(sess *Session, body []byte) {
	defer s.inflight.Done()
	logger := s.logger.WithField("sessionId", sess.ID)

	resp, err := s.dispatcher.Dispatch(s.baseCtx, body)
	if err != nil {
		// ParseRequest already accepted the body, so this is not expected.
		if !mcperror.IsProtocolError(err) {
			logger.Error("Dispatch failed.", "error", fmt.Sprintf("%+v", err))
			return
		}
		resp = jsonrpc.NewParseErrorResponse(err)
	}
	data, err := resp.Marshal()
	if err != nil {
		logger.Error("Failed to encode response.", "error", fmt.Sprintf("%+v", err))
		return
	}
	if !sess.Enqueue(data) {
		logger.Warn("Session closed before response was ready, dropping it.", "preview", jsonrpc.Preview(data))
		s.opts.Metrics.RecordUndelivered()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	httputils.WriteJSON(w, http.StatusOK, s.opts.Metrics.Snapshot())
}

// writeEvent writes one server-sent event; multi-line data becomes several data lines.
func writeEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
