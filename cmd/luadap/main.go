// Package main is the entry point for the luadap debug adapter.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/luadap/internal/app"
	"github.com/dshills/luadap/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Ensure cleanup on all exit paths
	defer application.Shutdown()

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		application.Shutdown()
	}()

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// rootList collects -source-root values, repeated or comma-separated.
type rootList []string

func (r *rootList) String() string { return strings.Join(*r, ",") }

func (r *rootList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*r = append(*r, part)
		}
	}
	return nil
}

func parseFlags() app.Options {
	var opts app.Options
	var roots rootList
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (.toml, .yaml)")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.BoolVar(&opts.Watch, "watch", false, "Reload the log level when the configuration file changes")
	flag.StringVar(&opts.Mode, "mode", "", "Front-end transport (stdio, tcp, ws)")
	flag.StringVar(&opts.Mode, "m", "", "Front-end transport (shorthand)")
	flag.StringVar(&opts.ListenAddress, "listen", "", "Listen address for tcp and ws modes")
	flag.StringVar(&opts.ListenAddress, "l", "", "Listen address (shorthand)")
	flag.StringVar(&opts.RuntimeAddress, "runtime", "", "Engine debugger address (host:port)")
	flag.StringVar(&opts.RuntimeAddress, "r", "", "Engine debugger address (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write logs to a file instead of stderr")
	flag.Var(&roots, "source-root", "Directory engine paths resolve against (repeatable)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "luadap - Debug Adapter Protocol bridge for MyEngine Lua\n\n")
		fmt.Fprintf(os.Stderr, "Usage: luadap [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  luadap                           Serve one session on stdin/stdout\n")
		fmt.Fprintf(os.Stderr, "  luadap -m tcp -l :4711           Accept clients on port 4711\n")
		fmt.Fprintf(os.Stderr, "  luadap -r 10.0.0.5:19542         Debug an engine on another host\n")
		fmt.Fprintf(os.Stderr, "  luadap -c luadap.toml -watch     Load and watch a config file\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		// stdout is free here: no session has started.
		fmt.Printf("luadap %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if opts.LogLevel != "" {
		if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
			os.Exit(1)
		}
	}

	// A listen address without a mode means tcp.
	if opts.ListenAddress != "" && opts.Mode == "" {
		opts.Mode = "tcp"
	}

	opts.SourceRoots = roots
	return opts
}
