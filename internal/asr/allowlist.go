// Package asr consumes audio segments from the capture service, runs them
// through preprocessing and a recognition engine, and publishes transcript
// events.
package asr

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// AllowList restricts which peer IPs produce events. An empty list allows
// everything; segments from unlisted peers are dropped silently.
type AllowList struct {
	ips map[string]struct{}
}

// LoadAllowList reads one IP per line; blank lines and # comments are
// skipped. A missing file yields an open list.
func LoadAllowList(path string) (*AllowList, error) {
	al := &AllowList{ips: make(map[string]struct{})}
	if path == "" {
		return al, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("[ASR] Allow-list file missing, allowing all peers", "path", path)
			return al, nil
		}
		return nil, fmt.Errorf("failed to open allow-list %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		al.ips[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allow-list %s: %w", path, err)
	}

	slog.Info("[ASR] Allow-list loaded", "path", path, "entries", len(al.ips))
	return al, nil
}

// Allowed reports whether events for ip may be published.
func (a *AllowList) Allowed(ip string) bool {
	if len(a.ips) == 0 {
		return true
	}
	_, ok := a.ips[ip]
	return ok
}

// Len returns the number of listed IPs.
func (a *AllowList) Len() int {
	return len(a.ips)
}
