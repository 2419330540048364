package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/hotline/internal/asr"
	"github.com/sebas/hotline/internal/asr/config"
	"github.com/sebas/hotline/internal/banner"
	"github.com/sebas/hotline/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	engineDesc := cfg.EngineURL
	if engineDesc == "" {
		engineDesc = "noop"
	}
	banner.Print("ASR WORKER", []banner.ConfigLine{
		{Label: "Input endpoint", Value: cfg.InputEndpoint},
		{Label: "Output endpoint", Value: cfg.OutputEndpoint},
		{Label: "Engine", Value: engineDesc},
		{Label: "Allow-list", Value: cfg.AllowListPath},
		{Label: "Echo cancellation", Value: fmt.Sprintf("%t", cfg.EnableAEC)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	allow, err := asr.LoadAllowList(cfg.AllowListPath)
	if err != nil {
		slog.Error("Failed to load allow-list", "path", cfg.AllowListPath, "error", err)
		os.Exit(1)
	}

	engine, err := asr.NewEngine(cfg.EngineURL, cfg.EngineTimeout)
	if err != nil {
		slog.Error("Failed to create recognition engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	pub, err := asr.NewPubPublisher(ctx, cfg.OutputEndpoint)
	if err != nil {
		slog.Error("Failed to connect event publisher", "endpoint", cfg.OutputEndpoint, "error", err)
		os.Exit(1)
	}
	defer pub.Close()

	worker := asr.NewWorker(allow, engine, pub, cfg.EnableAEC)
	done := make(chan struct{})
	go func() {
		if err := worker.Run(ctx, cfg.InputEndpoint); err != nil {
			slog.Error("Worker error", "error", err)
		}
		close(done)
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	cancel()
	// The publisher must outlive any in-flight publish in Run.
	<-done
	slog.Info("ASR worker stopped")
}
