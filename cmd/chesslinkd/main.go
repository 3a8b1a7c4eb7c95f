// chesslinkd is the relay server: it pairs connecting chess clients two at
// a time and forwards their move frames to each other.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/osveijer/chesslink"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "chesslinkd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := cfg.slogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	server, err := chesslink.NewServer(cfg.Addr,
		chesslink.ServerLoggerOption(logger),
		chesslink.ServerShutdownTimeoutOption(cfg.shutdownGrace()),
	)
	if err != nil {
		return err
	}

	relay := chesslink.NewRelay(logger,
		chesslink.BufferSizeOption(cfg.BufferSize),
	)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down relay...")
		cancel()
	}()

	logger.Info("relay start", "addr", server.Addr().String())
	if err := server.Serve(ctx, relay); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
