package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/hotline/internal/banner"
	"github.com/sebas/hotline/internal/capture"
	"github.com/sebas/hotline/internal/capture/config"
	"github.com/sebas/hotline/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("CAPTURE SERVICE", []banner.ConfigLine{
		{Label: "Interface", Value: cfg.Interface},
		{Label: "Host IP", Value: cfg.HostIP},
		{Label: "SIP port", Value: fmt.Sprintf("%d", cfg.SIPPort)},
		{Label: "RTP ports", Value: fmt.Sprintf("%d-%d", cfg.RTPPortMin, cfg.RTPPortMax)},
		{Label: "Push endpoint", Value: cfg.PushEndpoint},
		{Label: "Segment threshold", Value: cfg.SegmentThreshold.String()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := capture.NewSniffer(cfg.Interface, cfg.SIPPort, cfg.RTPPortMin, cfg.RTPPortMax)
	if err != nil {
		slog.Error("Failed to open capture interface", "interface", cfg.Interface, "error", err)
		os.Exit(1)
	}
	defer source.Close()

	sink, err := capture.NewPushPublisher(ctx, cfg.PushEndpoint)
	if err != nil {
		slog.Error("Failed to connect segment publisher", "endpoint", cfg.PushEndpoint, "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	srv := capture.NewServer(capture.Config{
		HostIP:           cfg.HostIP,
		SIPPort:          cfg.SIPPort,
		SegmentThreshold: cfg.SegmentThreshold,
		CallTimeout:      cfg.CallTimeout,
	}, source, sink)

	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	cancel()
	// Run flushes open segments on cancel; the sink must stay open until
	// it returns.
	<-done
	slog.Info("Capture service stopped")
}
