// Package stdio serves the dispatcher over a single newline-delimited JSON stream,
// normally the process's stdin and stdout.
package stdio

// file: internal/stdio/server.go

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/jsonrpc"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/mcperror"
	"github.com/dkoosis/toolrelay/internal/metrics"
	"github.com/dkoosis/toolrelay/internal/transport"
)

// Dispatcher turns one raw envelope into a response.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) (*jsonrpc.Response, error)
}

// Server reads requests from a transport one at a time and writes each response
// before reading the next, so responses leave in request order.
type Server struct {
	transport  transport.Transport
	dispatcher Dispatcher
	metrics    *metrics.Collector
	logger     logging.Logger
}

// NewServer binds d to t. collector may be nil.
func NewServer(t transport.Transport, d Dispatcher, collector *metrics.Collector, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Server{
		transport:  t,
		dispatcher: d,
		metrics:    collector,
		logger:     logger.WithField("component", "stdio_server"),
	}
}

// Serve runs until the stream ends or ctx is done. Both are clean exits and return nil.
// A write failure is returned since no further responses could be delivered.
func (s *Server) Serve(ctx context.Context) error {
	if s.transport == nil || s.dispatcher == nil {
		return errors.New("stdio server needs a transport and a dispatcher")
	}
	s.logger.Info("Stdio server processing loop started.")
	s.metrics.RecordSession("stdio", true)
	defer s.metrics.RecordSession("stdio", false)

	for {
		if ctx.Err() != nil {
			s.logger.Info("Context canceled, stopping stdio server.")
			return nil
		}
		done, err := s.processNextMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if done {
			return nil
		}
	}
}

// processNextMessage handles one line. done reports a terminal read condition.
func (s *Server) processNextMessage(ctx context.Context) (done bool, err error) {
	raw, readErr := s.transport.ReadMessage(ctx)
	if readErr != nil {
		return s.handleReadError(ctx, readErr)
	}

	resp, err := s.dispatcher.Dispatch(ctx, raw)
	if err != nil {
		if jsonrpc.IsMissingID(err) {
			// Notifications expect no answer.
			s.logger.Debug("Skipping message without id.", "preview", jsonrpc.Preview(raw))
			return false, nil
		}
		s.logger.Warn("Malformed message received.", "error", err, "preview", jsonrpc.Preview(raw))
		return false, s.write(ctx, jsonrpc.NewParseErrorResponse(err))
	}
	return false, s.write(ctx, resp)
}

func (s *Server) handleReadError(ctx context.Context, readErr error) (bool, error) {
	switch {
	case transport.IsClosedError(readErr):
		s.logger.Info("Input stream closed, stopping stdio server.")
		return true, nil
	case transport.IsTimeoutError(readErr) && ctx.Err() != nil:
		s.logger.Info("Context canceled, stopping stdio server.")
		return true, nil
	case transport.IsMessageSizeError(readErr):
		s.logger.Warn("Oversized message dropped.", "error", readErr)
		return false, s.write(ctx, jsonrpc.NewParseErrorResponse(
			mcperror.NewProtocolError("message exceeds maximum size", readErr, nil)))
	default:
		s.logger.Error("Failed to read message from transport.", "error", fmt.Sprintf("%+v", readErr))
		return true, errors.Wrap(readErr, "stdio read failed")
	}
}

func (s *Server) write(ctx context.Context, resp *jsonrpc.Response) error {
	data, err := resp.Marshal()
	if err != nil {
		s.logger.Error("Failed to encode response.", "error", fmt.Sprintf("%+v", err))
		s.metrics.RecordError("stdio", err.Error())
		return nil
	}
	if err := s.transport.WriteMessage(ctx, data); err != nil {
		s.metrics.RecordUndelivered()
		return errors.Wrap(err, "failed to write response")
	}
	return nil
}
