package config

import (
	"flag"
	"os"
	"time"
)

// Config holds the ASR worker configuration
type Config struct {
	InputEndpoint  string // ZMQ PULL bind address for incoming segments
	OutputEndpoint string // ZMQ PUB address for recognized events
	AllowListPath  string // Optional peer IP allow-list file
	EngineURL      string // Recognition service endpoint
	EngineTimeout  time.Duration
	EnableAEC      bool
	LogLevel       string
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.InputEndpoint, "input", "tcp://*:5557", "Segment PULL bind endpoint")
	flag.StringVar(&cfg.OutputEndpoint, "output", "tcp://*:5558", "Event PUB endpoint")
	flag.StringVar(&cfg.AllowListPath, "allowlist", "", "Peer IP allow-list file (empty allows all)")
	flag.StringVar(&cfg.EngineURL, "engine", "", "Recognition service URL (empty runs the noop engine)")
	flag.DurationVar(&cfg.EngineTimeout, "engine-timeout", 30*time.Second, "Recognition request timeout")
	flag.BoolVar(&cfg.EnableAEC, "aec", true, "Enable echo cancellation when far-end audio is present")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level")

	flag.Parse()

	// Environment overrides
	if v := os.Getenv("INPUT_ZMQ_ENDPOINT"); v != "" {
		cfg.InputEndpoint = v
	}
	if v := os.Getenv("OUTPUT_ZMQ_ENDPOINT"); v != "" {
		cfg.OutputEndpoint = v
	}
	if v := os.Getenv("ALLOWLIST_PATH"); v != "" {
		cfg.AllowListPath = v
	}
	if v := os.Getenv("ASR_ENGINE_URL"); v != "" {
		cfg.EngineURL = v
	}
	if v := os.Getenv("ENABLE_AEC"); v == "0" {
		cfg.EnableAEC = false
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
