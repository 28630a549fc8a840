// file: internal/sse/server_test.go
package sse

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkoosis/toolrelay/internal/dispatch"
	"github.com/dkoosis/toolrelay/internal/jsonrpc"
	"github.com/dkoosis/toolrelay/internal/metrics"
	"github.com/dkoosis/toolrelay/internal/registry"
	"github.com/dkoosis/toolrelay/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const credential = "Bearer test"

type countingDispatcher struct {
	inner Dispatcher
	calls atomic.Int32
}

func (c *countingDispatcher) Dispatch(ctx context.Context, raw []byte) (*jsonrpc.Response, error) {
	c.calls.Add(1)
	return c.inner.Dispatch(ctx, raw)
}

type testServer struct {
	srv        *Server
	ts         *httptest.Server
	dispatcher *countingDispatcher
	metrics    *metrics.Collector
	release    chan struct{}
}

func newTestServer(t *testing.T, keepAlive time.Duration) *testServer {
	t.Helper()
	release := make(chan struct{})
	reg := registry.New(nil)
	require.NoError(t, reg.Register(registry.Descriptor{
		Name:        "screenshot",
		Description: "Capture a web page.",
		ParameterSchema: schema.Object(
			schema.Prop("url", schema.String()),
			schema.Prop("fullPathToScreenshot", schema.String().Optional()),
		),
	}, func(_ context.Context, args schema.Args) (*registry.Result, error) {
		return registry.NewResult(
			registry.Text("Screenshot of "+args.String("url")),
			registry.Image("image/png", "iVBORw0KGgo="),
		), nil
	}))
	require.NoError(t, reg.Register(registry.Descriptor{
		Name:            "architect",
		Description:     "Plan a change.",
		ParameterSchema: schema.Object(schema.Prop("task", schema.String()), schema.Prop("code", schema.String())),
	}, func(_ context.Context, args schema.Args) (*registry.Result, error) {
		return registry.TextResult("plan: " + args.String("task")), nil
	}))
	require.NoError(t, reg.Register(registry.Descriptor{
		Name:            "wait",
		Description:     "Blocks until released.",
		ParameterSchema: schema.Object(),
	}, func(ctx context.Context, _ schema.Args) (*registry.Result, error) {
		select {
		case <-release:
			return registry.TextResult("released"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	collector := metrics.NewCollector(10)
	cd := &countingDispatcher{inner: dispatch.New(reg, dispatch.Options{CallTimeout: 5 * time.Second, Metrics: collector})}
	srv := NewServer(cd, Options{KeepAliveInterval: keepAlive, Metrics: collector})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &testServer{srv: srv, ts: ts, dispatcher: cd, metrics: collector, release: release}
}

type event struct {
	name string
	data string
}

type stream struct {
	resp     *http.Response
	events   chan event
	comments atomic.Int32
	endpoint string
}

func (ts *testServer) open(t *testing.T) *stream {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.ts.URL+StreamPath, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", credential)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { _ = resp.Body.Close() })

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	s := &stream{resp: resp, events: make(chan event, 16)}
	go func() {
		defer close(s.events)
		sc := bufio.NewScanner(resp.Body)
		var cur event
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if cur.name != "" {
					s.events <- cur
				}
				cur = event{}
			case strings.HasPrefix(line, ":"):
				s.comments.Add(1)
			case strings.HasPrefix(line, "event: "):
				cur.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data += strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	ev := s.next(t)
	require.Equal(t, "endpoint", ev.name)
	require.True(t, strings.HasPrefix(ev.data, MessagePath+"?sessionId="), ev.data)
	s.endpoint = ev.data
	return s
}

func (s *stream) next(t *testing.T) event {
	t.Helper()
	select {
	case ev, ok := <-s.events:
		require.True(t, ok, "stream ended")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return event{}
	}
}

func (s *stream) sessionID() string {
	return strings.TrimPrefix(s.endpoint, MessagePath+"?sessionId=")
}

func (ts *testServer) post(t *testing.T, path, auth, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func decode(t *testing.T, data string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 0)
	resp, err := http.Get(ts.ts.URL + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestStream_RequiresCredential(t *testing.T) {
	ts := newTestServer(t, 0)
	resp, err := http.Get(ts.ts.URL + StreamPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"missing credential"}`, string(body))
	assert.Equal(t, 0, ts.srv.Sessions().Len())
}

func TestMessage_RoundTrip(t *testing.T) {
	ts := newTestServer(t, 0)
	s := ts.open(t)

	code, body := ts.post(t, s.endpoint, credential,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"screenshot","arguments":{"url":"https://example.com"}},"id":"shot"}`)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "Accepted", body)

	ev := s.next(t)
	assert.Equal(t, "message", ev.name)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"shot","result":{"content":[
		{"type":"text","text":"Screenshot of https://example.com"},
		{"type":"image","image_url":{"url":"data:image/png;base64,iVBORw0KGgo="}}
	]}}`, ev.data)
}

func TestMessage_Rejections(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.srv.opts.MaxBodyBytes = 256
	s := ts.open(t)
	valid := `{"jsonrpc":"2.0","method":"listTools","id":1}`

	tests := []struct {
		name     string
		path     string
		auth     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "no credential", path: s.endpoint, body: valid, wantCode: http.StatusUnauthorized, wantErr: "missing credential"},
		{name: "no session id", path: MessagePath, auth: credential, body: valid, wantCode: http.StatusBadRequest, wantErr: "missing sessionId"},
		{name: "unknown session", path: MessagePath + "?sessionId=nope", auth: credential, body: valid, wantCode: http.StatusNotFound, wantErr: "session not found"},
		{name: "malformed json", path: s.endpoint, auth: credential, body: `{"jsonrpc":`, wantCode: http.StatusBadRequest},
		{name: "no id", path: s.endpoint, auth: credential, body: `{"jsonrpc":"2.0","method":"listTools"}`, wantCode: http.StatusBadRequest},
		{name: "too large", path: s.endpoint, auth: credential, body: `{"pad":"` + strings.Repeat("x", 300) + `"}`, wantCode: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ts.post(t, tt.path, tt.auth, tt.body)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode(t, body)["error"])
			}
		})
	}
	assert.Equal(t, int32(0), ts.dispatcher.calls.Load(), "rejected commands never reach the dispatcher")
}

func TestMessage_NonScalarIDIsAnsweredOnStream(t *testing.T) {
	ts := newTestServer(t, 0)
	s := ts.open(t)

	code, body := ts.post(t, s.endpoint, credential, `{"jsonrpc":"2.0","method":"listTools","id":[1,2]}`)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "Accepted", body)

	ev := s.next(t)
	assert.Equal(t, "message", ev.name)
	resp := decode(t, ev.data)
	assert.Equal(t, []any{float64(1), float64(2)}, resp["id"])
	assert.Equal(t, float64(-32600), resp["error"].(map[string]any)["code"])
	assert.Equal(t, int32(1), ts.dispatcher.calls.Load())
}

func TestSessions_AreIsolated(t *testing.T) {
	ts := newTestServer(t, 0)
	a := ts.open(t)
	b := ts.open(t)
	require.NotEqual(t, a.sessionID(), b.sessionID())
	assert.Equal(t, 2, ts.srv.Sessions().Len())

	code, _ := ts.post(t, a.endpoint, credential,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"architect","arguments":{"task":"from-a","code":""}},"id":"1"}`)
	require.Equal(t, http.StatusAccepted, code)
	code, _ = ts.post(t, b.endpoint, credential,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"architect","arguments":{"task":"from-b","code":""}},"id":"1"}`)
	require.Equal(t, http.StatusAccepted, code)

	assert.Contains(t, a.next(t).data, "plan: from-a")
	assert.Contains(t, b.next(t).data, "plan: from-b")
	assert.Equal(t, 2, ts.metrics.Snapshot().ActiveSessions)
}

func TestSession_ClosedIDIsNotFound(t *testing.T) {
	ts := newTestServer(t, 0)
	s := ts.open(t)
	require.NoError(t, s.resp.Body.Close())

	require.Eventually(t, func() bool { return ts.srv.Sessions().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	code, body := ts.post(t, s.endpoint, credential, `{"jsonrpc":"2.0","method":"listTools","id":1}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session not found", decode(t, body)["error"])
	assert.Equal(t, int32(0), ts.dispatcher.calls.Load())
}

func TestSession_ResponseAfterDisconnectIsDropped(t *testing.T) {
	ts := newTestServer(t, 0)
	s := ts.open(t)

	code, _ := ts.post(t, s.endpoint, credential,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"wait","arguments":{}},"id":7}`)
	require.Equal(t, http.StatusAccepted, code)

	require.NoError(t, s.resp.Body.Close())
	require.Eventually(t, func() bool { return ts.srv.Sessions().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	close(ts.release)

	require.Eventually(t, func() bool { return ts.metrics.Snapshot().UndeliveredResponses == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestStream_KeepAlive(t *testing.T) {
	ts := newTestServer(t, 20*time.Millisecond)
	s := ts.open(t)
	require.Eventually(t, func() bool { return s.comments.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestMetrics_AuthAndCompression(t *testing.T) {
	ts := newTestServer(t, 0)

	resp, err := http.Get(ts.ts.URL + MetricsPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.ts.URL+MetricsPath, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", credential)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(zr).Decode(&snap))
	assert.NotEmpty(t, snap.GoVersion)
}

func TestShutdown_DeliversInFlightThenClosesStreams(t *testing.T) {
	ts := newTestServer(t, 0)
	s := ts.open(t)

	code, _ := ts.post(t, s.endpoint, credential,
		`{"jsonrpc":"2.0","method":"callTool","params":{"name":"wait","arguments":{}},"id":"last"}`)
	require.Equal(t, http.StatusAccepted, code)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- ts.srv.Shutdown(ctx)
	}()

	// New work is refused while draining.
	require.Eventually(t, func() bool {
		c, _ := ts.post(t, s.endpoint, credential, `{"jsonrpc":"2.0","method":"listTools","id":2}`)
		return c == http.StatusServiceUnavailable
	}, 2*time.Second, 10*time.Millisecond)

	close(ts.release)
	// Probes accepted before shutdown began are answered too; skip them.
	ev := s.next(t)
	for !strings.Contains(ev.data, `"id":"last"`) {
		ev = s.next(t)
	}
	assert.Contains(t, ev.data, "released")

	require.NoError(t, <-done)
	_, ok := <-s.events
	assert.False(t, ok, "stream ends after shutdown")
	assert.Equal(t, 0, ts.srv.Sessions().Len())
}
