// Package main runs a stand-in for the MyEngine Lua runtime so luadap can be
// driven end to end without the engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/luadap/internal/debug/runtime"
	"github.com/dshills/luadap/internal/logging"
	"github.com/dshills/luadap/internal/runtimesim"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr     string
		root     string
		logLevel string
	)
	flag.StringVar(&addr, "addr", runtime.DefaultAddress, "Address to listen on")
	flag.StringVar(&addr, "a", runtime.DefaultAddress, "Address to listen on (shorthand)")
	flag.StringVar(&root, "root", ".", "Directory relative program paths resolve against")
	flag.StringVar(&root, "r", ".", "Directory relative program paths resolve against (shorthand)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "luaruntime-sim - MyEngine debugger protocol simulator\n\n")
		fmt.Fprintf(os.Stderr, "Usage: luaruntime-sim [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Prefix = "luaruntime-sim"
	log := logging.New(cfg)

	srv, err := runtimesim.Listen(addr, root, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to listen: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("listening on %s (root %s)", srv.Addr(), root)
	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
