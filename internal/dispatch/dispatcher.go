// Package dispatch turns raw JSON-RPC envelopes into responses: it parses the
// request, routes the method, validates tool arguments, runs the tool handler
// under a deadline, and packages the result. It is transport-agnostic and safe
// for concurrent use.
// file: internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/dkoosis/toolrelay/internal/fsm"
	"github.com/dkoosis/toolrelay/internal/jsonrpc"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/mcperror"
	"github.com/dkoosis/toolrelay/internal/metrics"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RPC method names. The slash forms are the MCP spellings of the same operations.
const (
	MethodListTools  = "listTools"
	MethodCallTool   = "callTool"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
	MethodInitialize = "initialize"
	MethodPing       = "ping"
)

// DefaultCallTimeout bounds a tool call when Options.CallTimeout is unset.
const DefaultCallTimeout = 60 * time.Second

const (
	mcpProtocolVersion   = "2024-11-05"
	defaultServerName    = "toolrelay"
	defaultServerVersion = "dev"
)

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	// CallTimeout bounds each tool handler invocation.
	CallTimeout time.Duration
	// ServerName and ServerVersion are reported by initialize.
	ServerName    string
	ServerVersion string
	Logger        logging.Logger
	Metrics       *metrics.Collector
	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
	// Meter defaults to the global OpenTelemetry meter provider.
	Meter metric.Meter
	// Observer, when set, receives the lifecycle states each request passed through.
	Observer func(method string, states []fsm.State)
}

// Dispatcher executes RPC requests against a tool registry.
type Dispatcher struct {
	registry *registry.Registry
	router   *router
	opts     Options
	logger   logging.Logger
	tracer   trace.Tracer

	callCounter  metric.Int64Counter
	callDuration metric.Float64Histogram
}

// New creates a Dispatcher over reg. The registry is sealed if it is not already.
func New(reg *registry.Registry, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logging.GetNoopLogger()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ServerName == "" {
		opts.ServerName = defaultServerName
	}
	if opts.ServerVersion == "" {
		opts.ServerVersion = defaultServerVersion
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(telemetry.InstrumentationName)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(telemetry.InstrumentationName)
	}
	reg.Seal()

	d := &Dispatcher{
		registry: reg,
		router:   newRouter(),
		opts:     opts,
		logger:   opts.Logger.WithField("component", "dispatcher"),
		tracer:   opts.Tracer,
	}

	var err error
	d.callCounter, err = opts.Meter.Int64Counter("toolrelay.calls",
		metric.WithDescription("Tool calls by tool and outcome."))
	if err != nil {
		d.logger.Warn("Failed to create call counter.", "error", err)
	}
	d.callDuration, err = opts.Meter.Float64Histogram("toolrelay.call.duration",
		metric.WithDescription("Tool call duration."), metric.WithUnit("ms"))
	if err != nil {
		d.logger.Warn("Failed to create call duration histogram.", "error", err)
	}

	for method, h := range map[string]methodHandler{
		MethodListTools:  d.handleListTools,
		MethodToolsList:  d.handleListTools,
		MethodCallTool:   d.handleCallTool,
		MethodToolsCall:  d.handleCallTool,
		MethodInitialize: d.handleInitialize,
		MethodPing:       d.handlePing,
	} {
		if err := d.router.add(method, h); err != nil {
			panic(err)
		}
	}
	methods := d.router.methods()
	sort.Strings(methods)
	d.logger.Debug("Dispatcher ready.", "methods", methods, "toolCount", reg.Len(), "callTimeout", opts.CallTimeout)
	return d
}

// Dispatch handles one raw envelope. It returns a protocol error, and no response,
// when the payload is not JSON or its id is missing or null; transports decide how to
// report that. Every other outcome, including tool failures, is a response.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (*jsonrpc.Response, error) {
	lc := newLifecycle(d.opts.Logger)

	req, err := jsonrpc.ParseRequest(raw)
	if err != nil {
		d.opts.Metrics.RecordProtocolError()
		d.logger.Debug("Rejected envelope.", "error", err, "preview", jsonrpc.Preview(raw))
		return nil, err
	}
	lc.advance(ctx, EventParse)

	ctx = logging.ContextWithRequestID(ctx, req.IDString())
	logger := d.logger.WithContext(ctx)

	resp := d.handle(ctx, lc, req)
	lc.advance(ctx, EventRespond)

	d.opts.Metrics.RecordRequest(!resp.IsError())
	if resp.IsError() {
		logger.Debug("Request failed.", "method", req.Method, "code", resp.Error.Code, "message", resp.Error.Message)
	}
	if d.opts.Observer != nil {
		d.opts.Observer(req.Method, lc.history())
	}
	return resp, nil
}

func (d *Dispatcher) handle(ctx context.Context, lc *lifecycle, req *jsonrpc.Request) *jsonrpc.Response {
	if !req.ValidID() {
		lc.fail(ctx)
		return jsonrpc.ErrorResponseFrom(req.ID, mcperror.NewInvalidRequestError(
			"id must be a string or number", nil, map[string]interface{}{"reason": "InvalidID"}))
	}
	if req.JSONRPC != jsonrpc.Version {
		lc.fail(ctx)
		return jsonrpc.ErrorResponseFrom(req.ID, mcperror.NewInvalidRequestError(
			"jsonrpc must be \"2.0\"", nil, map[string]interface{}{"reason": "InvalidVersion"}))
	}

	rt, err := d.router.lookup(req.Method)
	if err != nil {
		lc.fail(ctx)
		return jsonrpc.ErrorResponseFrom(req.ID, err)
	}

	result, err := rt.handler(ctx, lc, req)
	if err != nil {
		lc.fail(ctx)
		return jsonrpc.ErrorResponseFrom(req.ID, err)
	}

	resp, err := jsonrpc.NewResult(req.ID, result)
	if err != nil {
		lc.fail(ctx)
		d.opts.Metrics.RecordError("dispatcher", err.Error())
		return jsonrpc.ErrorResponseFrom(req.ID, mcperror.NewInternalError("failed to encode result", err, nil))
	}
	return resp
}

type listToolsResult struct {
	Tools []registry.Listing `json:"tools"`
}

// handleListTools ignores params and lists tools in registration order.
func (d *Dispatcher) handleListTools(ctx context.Context, lc *lifecycle, _ *jsonrpc.Request) (interface{}, error) {
	lc.advance(ctx, EventValidate)
	descs := d.registry.List()
	out := listToolsResult{Tools: make([]registry.Listing, 0, len(descs))}
	for _, desc := range descs {
		out.Tools = append(out.Tools, desc.Listing())
	}
	lc.advance(ctx, EventExecute)
	return out, nil
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      serverInfo             `json:"serverInfo"`
}

func (d *Dispatcher) handleInitialize(ctx context.Context, lc *lifecycle, _ *jsonrpc.Request) (interface{}, error) {
	lc.advance(ctx, EventValidate)
	lc.advance(ctx, EventExecute)
	return initializeResult{
		ProtocolVersion: mcpProtocolVersion,
		Capabilities:    map[string]interface{}{"tools": map[string]interface{}{}},
		ServerInfo:      serverInfo{Name: d.opts.ServerName, Version: d.opts.ServerVersion},
	}, nil
}

func (d *Dispatcher) handlePing(ctx context.Context, lc *lifecycle, _ *jsonrpc.Request) (interface{}, error) {
	lc.advance(ctx, EventValidate)
	lc.advance(ctx, EventExecute)
	return struct{}{}, nil
}
