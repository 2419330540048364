// Package ticket accepts completed conversations over HTTP and proxies them
// to a pool of summarizer endpoints that turn them into structured tickets.
package ticket

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
)

// endpoint is a single summarizer in the pool.
type endpoint struct {
	url      string
	healthy  atomic.Bool
	reqCount atomic.Int64
	errCount atomic.Int64
}

func (e *endpoint) markSuccess() {
	if !e.healthy.Swap(true) {
		slog.Info("[Balancer] Endpoint marked healthy", "url", e.url)
	}
}

func (e *endpoint) markFailure() {
	e.errCount.Add(1)
	if e.healthy.Swap(false) {
		slog.Warn("[Balancer] Endpoint marked unhealthy", "url", e.url, "errors", e.errCount.Load())
	}
}

// Balancer rotates requests across healthy summarizer endpoints. Health is
// driven entirely by request outcomes; there is no background prober, so a
// downed endpoint recovers the next time the random fallback hits it.
type Balancer struct {
	endpoints []*endpoint
	nextIndex atomic.Uint64
}

// NewBalancer creates a balancer over the given URLs, all initially healthy.
func NewBalancer(urls []string) (*Balancer, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no summarizer endpoints provided")
	}

	b := &Balancer{endpoints: make([]*endpoint, 0, len(urls))}
	for _, u := range urls {
		ep := &endpoint{url: u}
		ep.healthy.Store(true)
		b.endpoints = append(b.endpoints, ep)
	}

	slog.Info("[Balancer] Summarizer pool initialized", "endpoints", len(urls))
	return b, nil
}

// Next picks the next healthy endpoint in round-robin order. With no healthy
// endpoint left it falls back to a random pick so the pool can recover.
func (b *Balancer) Next() *endpoint {
	healthy := make([]*endpoint, 0, len(b.endpoints))
	for _, ep := range b.endpoints {
		if ep.healthy.Load() {
			healthy = append(healthy, ep)
		}
	}

	if len(healthy) == 0 {
		ep := b.endpoints[rand.Intn(len(b.endpoints))]
		slog.Warn("[Balancer] No healthy endpoints, picking at random", "url", ep.url)
		return ep
	}

	idx := b.nextIndex.Add(1) % uint64(len(healthy))
	return healthy[idx]
}

// EndpointStats holds counters for a single pool member.
type EndpointStats struct {
	URL      string `json:"url"`
	Healthy  bool   `json:"healthy"`
	Requests int64  `json:"req_count"`
	Errors   int64  `json:"err_count"`
}

// BalancerStats holds pool statistics.
type BalancerStats struct {
	Total     int             `json:"total"`
	Healthy   int             `json:"healthy"`
	Endpoints []EndpointStats `json:"endpoints"`
}

// Stats returns a snapshot of the pool.
func (b *Balancer) Stats() BalancerStats {
	stats := BalancerStats{
		Total:     len(b.endpoints),
		Endpoints: make([]EndpointStats, 0, len(b.endpoints)),
	}
	for _, ep := range b.endpoints {
		es := EndpointStats{
			URL:      ep.url,
			Healthy:  ep.healthy.Load(),
			Requests: ep.reqCount.Load(),
			Errors:   ep.errCount.Load(),
		}
		if es.Healthy {
			stats.Healthy++
		}
		stats.Endpoints = append(stats.Endpoints, es)
	}
	return stats
}
