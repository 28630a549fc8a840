// file: cmd/client_registration.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
)

// clientServerEntry is one server in an MCP client's "mcpServers" map.
type clientServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

const defaultServerConfig = `server:
  name: "toolrelay"
  transport: stdio
  # addr: ":3000"   # used by --transport sse

tools:
  callTimeout: 60s
  chromePath: chromium

llm:
  baseURL: "https://api.openai.com/v1"
  model: "gpt-4o"
  # The API key is read from TOOLRELAY_LLM_API_KEY or from 'toolrelay secret set'.

logging:
  level: info
  format: text
`

// registerCommand adds toolrelay as a stdio server to a desktop MCP client's
// configuration, creating a default toolrelay config file when none exists.
func registerCommand(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", defaultConfigPath(), "Path of the toolrelay configuration file.")
	clientConfig := fs.String("client-config", clientConfigPath(), "Path of the MCP client's JSON configuration.")
	name := fs.String("name", "toolrelay", "Server name inside the client configuration.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exePath, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to get executable path")
	}
	if exePath, err = filepath.Abs(exePath); err != nil {
		return errors.Wrap(err, "failed to get absolute executable path")
	}

	created, err := writeDefaultConfig(*configPath)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(stdout, "Created default configuration at %s\n", *configPath)
	}

	entry := clientServerEntry{
		Command: exePath,
		Args:    []string{"serve", "--transport", "stdio", "--config", *configPath},
	}
	if err := addClientServer(*clientConfig, *name, entry); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Registered %q in %s\n", *name, *clientConfig)
	fmt.Fprintln(stdout, "Store the completion API key with 'toolrelay secret set', then restart the client.")
	return nil
}

// writeDefaultConfig writes a starter config to path unless a file is already there.
func writeDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, errors.Wrap(err, "failed to create configuration directory")
	}
	if err := os.WriteFile(path, []byte(defaultServerConfig), 0o600); err != nil {
		return false, errors.Wrap(err, "failed to write default configuration file")
	}
	return true, nil
}

// addClientServer sets mcpServers[name] in the client config at path. Other
// servers and unrelated top-level keys are preserved.
func addClientServer(path, name string, entry clientServerEntry) error {
	doc := map[string]json.RawMessage{}
	// #nosec G304 -- Path is chosen by the local user.
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return errors.Wrapf(err, "existing client configuration %s is not valid JSON", path)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to read client configuration")
	}

	servers := map[string]json.RawMessage{}
	if raw, ok := doc["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return errors.Wrap(err, "mcpServers in client configuration is not an object")
		}
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to encode server entry")
	}
	servers[name] = encoded
	if doc["mcpServers"], err = json.Marshal(servers); err != nil {
		return errors.Wrap(err, "failed to encode mcpServers")
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode client configuration")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create client configuration directory")
	}
	return errors.Wrap(os.WriteFile(path, out, 0o600), "failed to write client configuration")
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "toolrelay", "toolrelay.yaml")
	}
	return "toolrelay.yaml"
}

// clientConfigPath is the desktop client's configuration file for this OS.
func clientConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(homeDir, "Library", "Application Support", "Claude")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "Claude")
	default:
		dir = filepath.Join(homeDir, ".config", "Claude")
	}
	return filepath.Join(dir, "claude_desktop_config.json")
}
