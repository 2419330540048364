package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the event router configuration
type Config struct {
	EventsEndpoint string   // ZMQ SUB bind address for ASR events
	Port           int      // WebSocket/HTTP listen port
	BroadcastAll   bool     // Deliver every event to every client
	AllowedOrigins []string // WebSocket origin allow-list (empty allows all)
	MaxDelay       time.Duration
	DrainInterval  time.Duration
	Heartbeat      time.Duration
	LogLevel       string
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	cfg := &Config{}
	var origins string

	flag.StringVar(&cfg.EventsEndpoint, "events", "tcp://*:5558", "ASR event SUB bind endpoint")
	flag.IntVar(&cfg.Port, "port", 8765, "WebSocket server port")
	flag.BoolVar(&cfg.BroadcastAll, "broadcast-all", false, "Send every event to every client regardless of IP")
	flag.StringVar(&origins, "origins", "", "Comma-separated WebSocket origin allow-list (empty allows all)")
	flag.DurationVar(&cfg.MaxDelay, "max-delay", 5*time.Second, "Longest an out-of-order event is held for reordering")
	flag.DurationVar(&cfg.DrainInterval, "drain-interval", 50*time.Millisecond, "Queue drain tick")
	flag.DurationVar(&cfg.Heartbeat, "heartbeat", time.Second, "WebSocket heartbeat interval")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level")

	flag.Parse()

	// Environment overrides
	if v := os.Getenv("ASR_EVENTS_ENDPOINT"); v != "" {
		cfg.EventsEndpoint = v
	}
	if v := os.Getenv("WS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("WS_BROADCAST_ALL"); v != "" {
		cfg.BroadcastAll = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		origins = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	return cfg
}
