// file: cmd/server/server_runner_test.go
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkoosis/toolrelay/internal/config"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct{}

func (stubCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	return "plan for: " + strings.SplitN(prompt, "\n", 3)[1], nil
}

type stubCapturer struct{}

func (stubCapturer) Capture(_ context.Context, _, path string) error {
	return os.WriteFile(path, []byte("png"), 0o600)
}

type stubDiff struct{}

func (stubDiff) Diff(context.Context, string) (string, error) { return "", nil }

func stubTools(t *testing.T) *tools.Deps {
	t.Helper()
	return &tools.Deps{
		Capturer:      stubCapturer{},
		Completer:     stubCompleter{},
		DiffReader:    stubDiff{},
		ScreenshotDir: t.TempDir(),
	}
}

func TestRunServer_Stdio(t *testing.T) {
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"listTools"}`,
		`{"jsonrpc":"2.0","id":2,"method":"callTool","params":{"name":"architect","arguments":{"task":"cache it","code":"x"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"callTool","params":{"name":"codeReview","arguments":{"folderPath":"."}}}`,
	}, "\n") + "\n"
	var out bytes.Buffer

	err := RunServer(context.Background(), RunOptions{
		Overrides: Overrides{Transport: config.TransportStdio},
		Version:   "test",
		Stdin:     strings.NewReader(in),
		Stdout:    &out,
		Tools:     stubTools(t),
	})
	require.NoError(t, err, "EOF on stdin is a clean exit")

	scanner := bufio.NewScanner(&out)
	var lines []map[string]json.RawMessage
	for scanner.Scan() {
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 3)

	assert.JSONEq(t, `1`, string(lines[0]["id"]))
	var listed struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(lines[0]["result"], &listed))
	require.Len(t, listed.Tools, 3)
	assert.Equal(t, tools.NameScreenshot, listed.Tools[0].Name)
	assert.Equal(t, tools.NameArchitect, listed.Tools[1].Name)
	assert.Equal(t, tools.NameCodeReview, listed.Tools[2].Name)

	assert.Contains(t, string(lines[1]["result"]), "plan for: cache it")
	assert.Contains(t, string(lines[2]["result"]), tools.NoChangesText)
}

func TestRunServer_SSE(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunServer(ctx, RunOptions{
			Overrides: Overrides{Transport: config.TransportSSE},
			Listener:  ln,
			Tools:     stubTools(t),
		})
	}()

	healthURL := "http://" + ln.Addr().String() + "/health"
	assert.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestRunServer_StartupErrors(t *testing.T) {
	err := RunServer(context.Background(), RunOptions{Overrides: Overrides{Transport: "carrier-pigeon"}})
	assert.ErrorContains(t, err, "invalid server.transport")

	err = RunServer(context.Background(), RunOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  transport: stdio\n  addr: \":9000\"\n"), 0o600))

	cfg, err := loadConfig(path, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)

	cfg, err = loadConfig(path, Overrides{Transport: "sse", Addr: "127.0.0.1:7000", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, config.TransportSSE, cfg.Server.Transport)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSetupLogging_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "toolrelay.log")
	closer, err := setupLogging(config.LoggingConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = setupLogging(config.LoggingConfig{Level: "info", Format: "text"}) })

	logging.GetLogger("test").Info("hello from test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "hello from test", entry["msg"])
}
