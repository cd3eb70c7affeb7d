// Command simulator runs the DEX price-and-swap simulator: it
// subscribes to a Tycho protocol-state feed, maintains live pool
// states, and serves quotes and signed swap calldata over HTTP.
//
// Usage:
//
//	simulator [flags]
//
// Flags:
//
//	--tycho-url         Tycho feed websocket URL
//	--tycho-api-key     Tycho feed API key
//	--private-key       hex-encoded signing key for Permit2
//	--chain             ethereum | base | unichain
//	--unichain-rpc-url  RPC endpoint, required when chain=unichain
//	--port              HTTP service listen port (default: 8080)
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tychosim/vmsim/config"
	"github.com/tychosim/vmsim/feed"
	"github.com/tychosim/vmsim/httpapi"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "simulator",
		Usage: "DEX price-and-swap simulator",
		Flags: config.Flags(),
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("simulator %s (%s) starting", version, commit)
	log.Printf("  chain:       %s (id %d)", cfg.Chain, cfg.Chain.ChainID())
	log.Printf("  tycho feed:  %s", cfg.TychoURL)
	log.Printf("  port:        %d", cfg.Port)

	svc, err := newService(cfg)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	registry := feed.NewRegistry()
	registerDecoders(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feedClient := feed.NewClient(cfg.TychoURL, cfg.TychoAPIKey, func(update feed.BlockUpdate) {
		if err := registry.Apply(update, svc.pools); err != nil {
			log.Printf("feed: block %d: %v", update.BlockNumber, err)
			return
		}
		recordQuotes(svc, update)
		svc.SetLastBlock(update.BlockNumber)
	})

	feedDone := make(chan error, 1)
	go func() { feedDone <- feedClient.Run(ctx) }()

	server := httpapi.NewServer(svc)
	logStore := httpapi.NewLogStore()
	handler := httpapi.MiddlewareChain(server.Handler(),
		httpapi.CORSMiddleware([]string{"*"}),
		httpapi.LoggingMiddleware(logStore),
		httpapi.RateLimitMiddleware(httpapi.RateLimitConfig{RequestsPerSecond: 200}),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("http: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down", sig)
	case err := <-feedDone:
		log.Printf("feed client stopped: %v", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	log.Println("shutdown complete")
	return nil
}
