package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sebas/hotline/internal/banner"
	"github.com/sebas/hotline/internal/logger"
	"github.com/sebas/hotline/internal/ticket"
	"github.com/sebas/hotline/internal/ticket/config"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("TICKET PROXY", []banner.ConfigLine{
		{Label: "Port", Value: fmt.Sprintf("%d", cfg.Port)},
		{Label: "Upstreams", Value: strings.Join(cfg.Upstreams, ", ")},
		{Label: "Upstream timeout", Value: cfg.UpstreamTimeout.String()},
	})

	srv, err := ticket.NewServer(ticket.Config{
		Upstreams:       cfg.Upstreams,
		UpstreamTimeout: cfg.UpstreamTimeout,
	})
	if err != nil {
		slog.Error("Failed to create ticket proxy", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv,
	}
	go func() {
		slog.Info("Ticket proxy listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	slog.Info("Ticket proxy stopped")
}
