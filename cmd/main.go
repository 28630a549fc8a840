// file: cmd/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/cmd/server"
	"github.com/dkoosis/toolrelay/internal/auth"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/spf13/pflag"
)

// Version information, set during build via ldflags.
var (
	Version    = "0.1.0-dev"
	commitHash = "unknown"
	buildDate  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one subcommand and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "serve":
		err = serveCommand(args[1:], stderr)
	case "register":
		err = registerCommand(args[1:], stdout, stderr)
	case "secret":
		err = secretCommand(args[1:], stdin, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "toolrelay %s (commit %s, built %s)\n", Version, commitHash, buildDate)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 2
	}

	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %+v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  toolrelay serve [options]          Start the tool server")
	fmt.Fprintln(w, "  toolrelay register [options]       Add toolrelay to a desktop MCP client's configuration")
	fmt.Fprintln(w, "  toolrelay secret set|delete|status [KEY]  Manage stored secrets (reads the value from stdin)")
	fmt.Fprintln(w, "  toolrelay version                  Print version information")
	fmt.Fprintln(w, "\nRun 'toolrelay <command> --help' for help on a specific command.")
}

func serveCommand(args []string, stderr io.Writer) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Path to a YAML configuration file.")
	transportType := fs.StringP("transport", "t", "", "Transport: stdio or sse (overrides config).")
	addr := fs.String("addr", "", "Listen address for the sse transport (overrides config).")
	debug := fs.Bool("debug", false, "Enable debug logging.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.RunServer(ctx, server.RunOptions{
		ConfigPath: *configPath,
		Overrides: server.Overrides{
			Transport: *transportType,
			Addr:      *addr,
			Debug:     *debug,
		},
		Version: Version,
	})
}

// secretCommand stores or removes a secret in the keyring, or the file fallback.
func secretCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("secret", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "Directory for file-based secrets when the keyring is unavailable.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("secret needs an action: set, delete or status")
	}
	key := auth.LLMAPIKey
	if fs.NArg() > 1 {
		key = fs.Arg(1)
	}

	logging.SetupDefaultLogger("warn")
	fallback := *dir
	if fallback == "" {
		fallback = server.DefaultSecretDir()
	}
	store, err := auth.NewSecretStore(fallback, logging.GetLogger("secrets"))
	if err != nil {
		return err
	}

	switch fs.Arg(0) {
	case "set":
		value, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrap(err, "failed to read secret from stdin")
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return errors.New("no secret value on stdin")
		}
		if err := store.Set(key, value); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Stored %s.\n", key)
	case "delete":
		if err := store.Delete(key); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted %s.\n", key)
	case "status":
		value, err := store.Get(key)
		if err != nil {
			return err
		}
		backend := "file"
		if _, ok := store.(*auth.KeyringStore); ok {
			backend = "keyring"
		}
		fmt.Fprintf(stdout, "Backend: %s\nKey %s set: %t\n", backend, key, value != "")
	default:
		return errors.Newf("unknown secret action %q", fs.Arg(0))
	}
	return nil
}
