package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpusentry/gpusentry/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor as a long-lived exporter service",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	srv := server.NewServer(cfg.ListenPort, rt.cache, rt.runner, rt.metrics, cfg.DebugEndpoints)
	if err := srv.Start(); err != nil {
		return err
	}
	slog.Info("gpusentry serving",
		"version", cfg.AgentVersion,
		"addr", srv.Addr(),
		"interval", cfg.CollectionInterval,
	)

	runErr := rt.agent.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	slog.Info("gpusentry stopped")
	return nil
}
