package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"purify/internal/etl"
	mcpserver "purify/internal/mcp"
	"purify/internal/relay"
	"purify/internal/service"
)

// runRelay performs one read-then-write round trip against a running server.
func runRelay(cfg appConfig, args []string) error {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	mode := fs.String("mode", string(etl.SyncAppend), "write mode: append or replace")
	url := fs.String("url", cfg.RelayURL, "base URL of the purify server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch etl.SyncMode(*mode) {
	case etl.SyncAppend, etl.SyncReplace:
	default:
		return fmt.Errorf("unknown mode %q", *mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := relay.NewClient(*url, cfg.RequestTimeout).Relay(ctx, etl.SyncMode(*mode))
	if err != nil {
		return err
	}
	fmt.Printf("relayed %d record(s), %d inserted in %s\n", res.Fetched, res.Inserted, res.Duration)
	return nil
}

// runClean prints one cleaned name per line.
func runClean(cfg appConfig, args []string, in io.Reader, out io.Writer) error {
	cleaner, err := newCleaner(cfg)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	if len(args) > 0 {
		for _, name := range cleaner.CleanAll(args) {
			fmt.Fprintln(w, name)
		}
		return nil
	}

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		fmt.Fprintln(w, cleaner.Clean(sc.Text()))
	}
	return sc.Err()
}

// runMCP serves the MCP tools over stdio. Stdout belongs to the protocol,
// so logging goes to the runtime log file.
func runMCP(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg, service.LogEmitter{})
	if err != nil {
		return err
	}
	defer a.Close()
	a.relays.Start(ctx)

	log.Printf("[MCP] serving stdio (state %s)", cfg.StateDBPath)
	srv := mcpserver.New(mcpserver.Deps{
		Cleaner: a.cleaner,
		Jobs:    a.relays,
		Version: version,
	})
	return srv.ServeStdio()
}
