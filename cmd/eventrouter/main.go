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
	"github.com/sebas/hotline/internal/router"
	"github.com/sebas/hotline/internal/router/config"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("EVENT ROUTER", []banner.ConfigLine{
		{Label: "Events endpoint", Value: cfg.EventsEndpoint},
		{Label: "WebSocket port", Value: fmt.Sprintf("%d", cfg.Port)},
		{Label: "Broadcast all", Value: fmt.Sprintf("%t", cfg.BroadcastAll)},
		{Label: "Allowed origins", Value: strings.Join(cfg.AllowedOrigins, ", ")},
		{Label: "Max delay", Value: cfg.MaxDelay.String()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := router.NewServer(router.Config{
		EventsEndpoint: cfg.EventsEndpoint,
		BroadcastAll:   cfg.BroadcastAll,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxDelay:       cfg.MaxDelay,
		DrainInterval:  cfg.DrainInterval,
		Heartbeat:      cfg.Heartbeat,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv,
	}
	go func() {
		slog.Info("WebSocket server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		if err := srv.Run(ctx); err != nil {
			slog.Error("Router error", "error", err)
		}
		close(done)
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	cancel()
	// Run delivers held events and closes the WebSocket clients on cancel.
	// Shutdown does not wait for hijacked connections, so wait here first.
	<-done
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	slog.Info("Event router stopped")
}
