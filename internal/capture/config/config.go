package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"time"
)

// Config holds the capture service configuration
type Config struct {
	Interface        string
	HostIP           string // Local hotline IP; INVITEs from this IP are outgoing
	SIPPort          int
	RTPPortMin       int
	RTPPortMax       int
	PushEndpoint     string // ZMQ PUSH endpoint for segments
	SegmentThreshold time.Duration
	CallTimeout      time.Duration
	LogLevel         string
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Interface, "iface", "eth0", "Network interface to sniff")
	flag.StringVar(&cfg.HostIP, "host-ip", "", "Local hotline IP (auto-detected if not set)")
	flag.IntVar(&cfg.SIPPort, "sip-port", 5060, "SIP signaling port")
	flag.IntVar(&cfg.RTPPortMin, "rtp-port-min", 10000, "Minimum RTP port")
	flag.IntVar(&cfg.RTPPortMax, "rtp-port-max", 20000, "Maximum RTP port")
	flag.StringVar(&cfg.PushEndpoint, "push", "tcp://127.0.0.1:5557", "Downstream segment PUSH endpoint")
	flag.DurationVar(&cfg.SegmentThreshold, "segment-threshold", 2*time.Second, "Utterance segmentation threshold")
	flag.DurationVar(&cfg.CallTimeout, "call-timeout", 30*time.Second, "Inactivity timeout for active calls")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level")

	flag.Parse()

	// Environment overrides
	if v := os.Getenv("CAPTURE_IFACE"); v != "" {
		cfg.Interface = v
	}
	if v := os.Getenv("HOST_IP"); v != "" {
		cfg.HostIP = v
	} else if cfg.HostIP == "" {
		cfg.HostIP = getPrimaryInterfaceIP()
	}
	if v := os.Getenv("SIP_PORT"); v != "" {
		cfg.SIPPort, _ = strconv.Atoi(v)
	}
	if v := os.Getenv("RTP_PORT_MIN"); v != "" {
		cfg.RTPPortMin, _ = strconv.Atoi(v)
	}
	if v := os.Getenv("RTP_PORT_MAX"); v != "" {
		cfg.RTPPortMax, _ = strconv.Atoi(v)
	}
	if v := os.Getenv("INPUT_ZMQ_ENDPOINT"); v != "" {
		cfg.PushEndpoint = v
	}
	if v := os.Getenv("SEGMENT_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SegmentThreshold = d
		}
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// getPrimaryInterfaceIP detects the primary network interface IP address
func getPrimaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}
