package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the ticket proxy configuration
type Config struct {
	Port            int      // HTTP listen port
	Upstreams       []string // Summarizer endpoint URLs
	UpstreamTimeout time.Duration
	LogLevel        string
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	cfg := &Config{}
	var upstreams string

	flag.IntVar(&cfg.Port, "port", 8766, "HTTP listen port")
	flag.StringVar(&upstreams, "upstreams", "", "Comma-separated summarizer endpoint URLs")
	flag.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", 20*time.Second, "Summarizer request timeout")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level")

	flag.Parse()

	// Environment overrides
	if v := os.Getenv("TICKET_PROXY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("TICKET_INFER_URL"); v != "" {
		upstreams = v
	}
	if v := os.Getenv("DEEPSEEK_ENDPOINTS"); v != "" {
		upstreams = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	for _, u := range strings.Split(upstreams, ",") {
		if u = strings.TrimSpace(u); u != "" {
			cfg.Upstreams = append(cfg.Upstreams, u)
		}
	}

	return cfg
}
