// file: internal/dispatch/call.go
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/jsonrpc"
	"github.com/dkoosis/toolrelay/internal/mcperror"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// callParams is the params object of callTool.
type callParams struct {
	Name      json.RawMessage `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func invalidParams(path, reason, message string) error {
	return mcperror.NewInvalidParamsError(message, nil, map[string]interface{}{
		"path":   path,
		"reason": reason,
	})
}

// handleCallTool resolves the tool, validates arguments against its schema and runs it.
// The handler is never invoked with arguments that failed validation.
func (d *Dispatcher) handleCallTool(ctx context.Context, lc *lifecycle, req *jsonrpc.Request) (interface{}, error) {
	name, rawArgs, err := parseCallParams(req.Params)
	if err != nil {
		return nil, err
	}

	entry, ok := d.registry.Resolve(name)
	if !ok {
		return nil, mcperror.NewToolNotFoundError(name)
	}
	if rawArgs == nil {
		return nil, invalidParams("params.arguments", "MissingField", "required field \"arguments\" is missing")
	}

	args, err := schema.Validate(entry.Descriptor.ParameterSchema, rawArgs)
	if err != nil {
		if ve, ok := schema.AsValidationError(err); ok {
			return nil, mcperror.NewInvalidParamsError(ve.Message, nil, map[string]interface{}{
				"toolName": name,
				"path":     ve.Path,
				"reason":   ve.Code.Reason(),
			})
		}
		return nil, mcperror.NewInvalidParamsError("arguments failed validation", err, map[string]interface{}{"toolName": name})
	}
	lc.advance(ctx, EventValidate)

	result, err := d.invoke(ctx, entry, args, req.IDString())
	if err != nil {
		return nil, err
	}
	lc.advance(ctx, EventExecute)
	return result, nil
}

func parseCallParams(raw json.RawMessage) (string, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil, invalidParams("params", "MissingField", "params are required")
	}
	if trimmed[0] != '{' {
		return "", nil, invalidParams("params", "TypeMismatch", "params must be an object")
	}
	var p callParams
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return "", nil, mcperror.NewInvalidParamsError("params are not valid JSON", err, map[string]interface{}{"path": "params"})
	}
	if p.Name == nil {
		return "", nil, invalidParams("params.name", "MissingField", "required field \"name\" is missing")
	}
	var name string
	if err := json.Unmarshal(p.Name, &name); err != nil || name == "" {
		return "", nil, invalidParams("params.name", "TypeMismatch", "name must be a non-empty string")
	}
	return name, p.Arguments, nil
}

type callOutcome struct {
	result *registry.Result
	err    error
}

// invoke runs the handler under the call deadline. Handler errors, panics, nil
// results and deadline expiry all become handler failures; none of them escape.
func (d *Dispatcher) invoke(ctx context.Context, entry registry.Entry, args schema.Args, requestID string) (*registry.Result, error) {
	name := entry.Descriptor.Name
	ctx, span := d.tracer.Start(ctx, "callTool "+name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("rpc.request_id", requestID),
		))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, d.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: errors.Newf("tool panicked: %v", r)}
			}
		}()
		res, err := entry.Handler(callCtx, args)
		done <- callOutcome{result: res, err: err}
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			out.err = errors.Newf("tool call timed out after %s", d.opts.CallTimeout)
		} else {
			out.err = errors.Wrap(callCtx.Err(), "tool call canceled")
		}
	}
	if out.err == nil && out.result == nil {
		out.err = errors.New("tool returned no result")
	}
	elapsed := time.Since(start)

	success := out.err == nil
	d.recordCall(ctx, name, elapsed, success)
	if !success {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		d.logger.WithContext(ctx).Warn("Tool call failed.", "toolName", name, "duration", elapsed, "error", fmt.Sprintf("%+v", out.err))
		d.opts.Metrics.RecordError("tool:"+name, out.err.Error())
		return nil, mcperror.NewHandlerFailureError(name, out.err)
	}
	span.SetAttributes(attribute.Int("tool.content_parts", len(out.result.Content)))
	d.logger.WithContext(ctx).Debug("Tool call completed.", "toolName", name, "duration", elapsed)
	return out.result, nil
}

func (d *Dispatcher) recordCall(ctx context.Context, tool string, elapsed time.Duration, success bool) {
	d.opts.Metrics.RecordToolCall(tool, elapsed, success)

	outcome := "ok"
	if !success {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool), attribute.String("outcome", outcome))
	if d.callCounter != nil {
		d.callCounter.Add(ctx, 1, attrs)
	}
	if d.callDuration != nil {
		d.callDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}
