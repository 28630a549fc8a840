// file: internal/stdio/server_test.go
package stdio

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dkoosis/toolrelay/internal/dispatch"
	"github.com/dkoosis/toolrelay/internal/metrics"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/schema"
	"github.com/dkoosis/toolrelay/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	reg := registry.New(nil)
	require.NoError(t, reg.Register(registry.Descriptor{
		Name:            "sleep",
		Description:     "Sleeps for ms milliseconds.",
		ParameterSchema: schema.Object(schema.Prop("ms", schema.Integer())),
	}, func(ctx context.Context, args schema.Args) (*registry.Result, error) {
		select {
		case <-time.After(time.Duration(args.Int("ms")) * time.Millisecond):
		case <-ctx.Done():
		}
		return registry.TextResult("slept"), nil
	}))
	return dispatch.New(reg, dispatch.Options{CallTimeout: time.Second})
}

type harness struct {
	pair    *transport.InMemoryTransportPair
	done    chan error
	metrics *metrics.Collector
}

func start(t *testing.T, ctx context.Context) *harness {
	t.Helper()
	h := &harness{
		pair:    transport.NewInMemoryTransportPair(),
		done:    make(chan error, 1),
		metrics: metrics.NewCollector(5),
	}
	srv := NewServer(h.pair.ServerTransport, newDispatcher(t), h.metrics, nil)
	go func() { h.done <- srv.Serve(ctx) }()
	return h
}

func (h *harness) send(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, h.pair.ClientTransport.WriteMessage(context.Background(), []byte(l)))
	}
}

func (h *harness) recv(t *testing.T) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := h.pair.ClientTransport.ReadMessage(ctx)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	return out
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestServe_ResponsesFollowRequestOrder(t *testing.T) {
	h := start(t, context.Background())
	h.send(t,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"sleep","arguments":{"ms":50}},"id":"slow"}`,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"sleep","arguments":{"ms":0}},"id":"fast"}`,
		`{"jsonrpc":"2.0","method":"listTools","id":3}`,
	)

	assert.Equal(t, "slow", h.recv(t)["id"])
	assert.Equal(t, "fast", h.recv(t)["id"])
	assert.Equal(t, float64(3), h.recv(t)["id"])

	h.pair.ClientTransport.CloseWrite()
	assert.NoError(t, h.wait(t))
	assert.Equal(t, 0, h.metrics.Snapshot().ActiveSessions)
}

func TestServe_MalformedLineGetsParseErrorAndLoopContinues(t *testing.T) {
	h := start(t, context.Background())
	h.send(t,
		`{"jsonrpc":"2.0","method":`,
		`{"jsonrpc":"2.0","method":"listTools","id":1}`,
	)

	resp := h.recv(t)
	assert.Nil(t, resp["id"])
	require.Contains(t, resp, "id", "parse errors carry an explicit null id")
	assert.Equal(t, float64(-32700), resp["error"].(map[string]any)["code"])

	resp = h.recv(t)
	assert.Equal(t, float64(1), resp["id"])
	assert.Contains(t, resp, "result")

	h.pair.ClientTransport.CloseWrite()
	assert.NoError(t, h.wait(t))
}

func TestServe_NonScalarIDIsAnsweredInOrder(t *testing.T) {
	h := start(t, context.Background())
	h.send(t,
		`{"jsonrpc":"2.0","method":"listTools","id":{"x":1}}`,
		`{"jsonrpc":"2.0","method":"listTools","id":7}`,
	)

	resp := h.recv(t)
	assert.Equal(t, map[string]any{"x": float64(1)}, resp["id"])
	assert.Equal(t, float64(-32600), resp["error"].(map[string]any)["code"])

	resp = h.recv(t)
	assert.Equal(t, float64(7), resp["id"])
	assert.Contains(t, resp, "result")

	h.pair.ClientTransport.CloseWrite()
	assert.NoError(t, h.wait(t))
}

func TestServe_NotificationsAreNotAnswered(t *testing.T) {
	h := start(t, context.Background())
	h.send(t,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"ping","id":null}`,
		`{"jsonrpc":"2.0","method":"ping","id":"p"}`,
	)

	resp := h.recv(t)
	assert.Equal(t, "p", resp["id"])

	h.pair.ClientTransport.CloseWrite()
	assert.NoError(t, h.wait(t))
}

func TestServe_ErrorsDoNotEndTheSession(t *testing.T) {
	h := start(t, context.Background())
	h.send(t,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"missing","arguments":{}},"id":1}`,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"sleep","arguments":{"ms":"x"}},"id":2}`,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"sleep","arguments":{"ms":1}},"id":3}`,
	)

	assert.Equal(t, float64(-32601), h.recv(t)["error"].(map[string]any)["code"])
	assert.Equal(t, float64(-32602), h.recv(t)["error"].(map[string]any)["code"])
	assert.Contains(t, h.recv(t), "result")

	h.pair.ClientTransport.CloseWrite()
	assert.NoError(t, h.wait(t))
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := start(t, ctx)
	h.send(t, `{"jsonrpc":"2.0","method":"ping","id":1}`)
	h.recv(t)

	cancel()
	assert.NoError(t, h.wait(t))
}

func TestServe_RequiresCollaborators(t *testing.T) {
	err := NewServer(nil, nil, nil, nil).Serve(context.Background())
	assert.Error(t, err)
}
