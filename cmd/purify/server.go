package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"purify/internal/httpserver"
	"purify/internal/service"
)

// runServer serves the read/write routes and the job API until interrupted.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	a, err := openApp(cfg, service.LogEmitter{})
	if err != nil {
		return err
	}
	defer a.Close()

	apiServer := httpserver.NewServer(httpserver.Config{
		Addr:            cfg.ListenAddr,
		PivotColumn:     cfg.PivotColumn,
		ReadConnection:  cfg.ReadConnection,
		ReadQuery:       cfg.ReadQuery,
		WriteConnection: cfg.WriteConnection,
		WriteCollection: cfg.WriteCollection,
	}, httpserver.Deps{
		Reader:      a.databases,
		Writer:      a.databases,
		Cleaner:     a.cleaner,
		Jobs:        a.relays,
		Connections: a.databases,
	})
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	a.relays.Start(ctx)
	fmt.Printf("purify %s listening on http://%s (pivot %q, %s → %s/%s)\n",
		version, apiServer.Addr(), cfg.PivotColumn, cfg.ReadConnection, cfg.WriteConnection, cfg.WriteCollection)
	log.Printf("server: listening on %s", apiServer.Addr())

	g, gctx := errgroup.WithContext(ctx)

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	a.relays.Stop()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 8*time.Second)
	a.relays.WaitRunning(waitCtx)
	waitCancel()

	signal.Stop(sigCh)
	return nil
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "purify")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "purify.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}
