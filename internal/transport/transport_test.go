// file: internal/transport/transport_test.go
package transport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, tr Transport) []string {
	t.Helper()
	var out []string
	for {
		msg, err := tr.ReadMessage(context.Background())
		if err != nil {
			require.True(t, IsClosedError(err), "unexpected error: %v", err)
			return out
		}
		out = append(out, string(msg))
	}
}

func TestNDJSONTransport_SplitsLinesAndSkipsBlanks(t *testing.T) {
	input := "{\"a\":1}\n\n   \n{\"b\":2}\r\n{\"c\":3}"
	tr := NewNDJSONTransport(strings.NewReader(input), io.Discard, nil, nil)

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}, readAll(t, tr))
}

func TestNDJSONTransport_BuffersPartialLines(t *testing.T) {
	pr, pw := io.Pipe()
	tr := NewNDJSONTransport(pr, io.Discard, nil, nil)

	go func() {
		_, _ = pw.Write([]byte(`{"jsonrpc":"2.0",`))
		time.Sleep(10 * time.Millisecond)
		_, _ = pw.Write([]byte("\"id\":1}\n{\"id\":2}\n"))
		_ = pw.Close()
	}()

	assert.Equal(t, []string{`{"jsonrpc":"2.0","id":1}`, `{"id":2}`}, readAll(t, tr))
}

func TestNDJSONTransport_OversizedLineIsSkipped(t *testing.T) {
	big := strings.Repeat("x", MaxMessageSize+10)
	tr := NewNDJSONTransport(strings.NewReader(big+"\n{\"ok\":true}\n"), io.Discard, nil, nil)

	_, err := tr.ReadMessage(context.Background())
	require.Error(t, err)
	assert.True(t, IsMessageSizeError(err))

	msg, err := tr.ReadMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(msg))
}

func TestNDJSONTransport_ReadSurvivesCancelledContext(t *testing.T) {
	pr, pw := io.Pipe()
	tr := NewNDJSONTransport(pr, io.Discard, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := tr.ReadMessage(ctx)
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))

	go func() {
		_, _ = pw.Write([]byte("{\"late\":1}\n"))
	}()
	msg, err := tr.ReadMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"late":1}`, string(msg))
}

func TestNDJSONTransport_Write(t *testing.T) {
	var out bytes.Buffer
	tr := NewNDJSONTransport(strings.NewReader(""), &out, nil, nil)

	require.NoError(t, tr.WriteMessage(context.Background(), []byte(`{"id":1}`)))
	require.NoError(t, tr.WriteMessage(context.Background(), []byte(`{"id":2}`)))
	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", out.String())

	err := tr.WriteMessage(context.Background(), []byte("{\n}"))
	assert.Error(t, err)

	require.NoError(t, tr.Close())
	err = tr.WriteMessage(context.Background(), []byte(`{}`))
	assert.True(t, IsClosedError(err))
	_, err = tr.ReadMessage(context.Background())
	assert.True(t, IsClosedError(err))
}

func TestInMemoryTransportPair(t *testing.T) {
	pair := NewInMemoryTransportPair()
	ctx := context.Background()

	require.NoError(t, pair.ClientTransport.WriteMessage(ctx, []byte(`{"id":1}`)))
	msg, err := pair.ServerTransport.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(msg))

	require.NoError(t, pair.ServerTransport.WriteMessage(ctx, []byte(`{"id":1,"result":{}}`)))
	msg, err = pair.ClientTransport.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"result":{}}`, string(msg))

	require.NoError(t, pair.ClientTransport.WriteMessage(ctx, []byte(`{"id":2}`)))
	pair.ClientTransport.CloseWrite()
	msg, err = pair.ServerTransport.ReadMessage(ctx)
	require.NoError(t, err, "queued messages are drained before end of stream")
	assert.Equal(t, `{"id":2}`, string(msg))
	_, err = pair.ServerTransport.ReadMessage(ctx)
	assert.True(t, IsClosedError(err))

	assert.True(t, IsClosedError(pair.ClientTransport.WriteMessage(ctx, []byte(`{}`))))
}
