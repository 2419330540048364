package router

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	types "github.com/sebas/hotline/api/types/v1"
	"github.com/sebas/hotline/internal/metrics"
)

const (
	// sendQueueSize bounds the per-client outgoing buffer; a client that
	// falls this far behind is evicted.
	sendQueueSize = 64

	writeTimeout = 5 * time.Second
)

// Client is one connected WebSocket listener.
type Client struct {
	ID     string
	PeerIP string

	conn *websocket.Conn
	send chan []byte

	done  chan struct{}
	close sync.Once
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.close.Do(func() { close(c.done) })
}

// Registry tracks connected clients and owns all writes to their sockets.
type Registry struct {
	heartbeat time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry with the given heartbeat interval.
func NewRegistry(heartbeat time.Duration) *Registry {
	return &Registry{
		heartbeat: heartbeat,
		clients:   make(map[string]*Client),
	}
}

// Add registers a freshly upgraded connection and starts its write loop.
func (r *Registry) Add(conn *websocket.Conn, peerIP string) *Client {
	c := &Client{
		ID:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		PeerIP: peerIP,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.clients[c.ID] = c
	n := len(r.clients)
	r.mu.Unlock()
	metrics.ClientsConnected.Set(float64(n))

	slog.Info("[WS] Client connected", "client_id", c.ID, "peer_ip", c.PeerIP, "clients", n)
	go r.writeLoop(c)
	return c
}

// Remove evicts a client; its write loop flushes queued frames and closes
// the socket.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	_, ok := r.clients[c.ID]
	delete(r.clients, c.ID)
	n := len(r.clients)
	r.mu.Unlock()

	c.shutdown()
	if ok {
		metrics.ClientsConnected.Set(float64(n))
		slog.Info("[WS] Client disconnected", "client_id", c.ID, "peer_ip", c.PeerIP, "clients", n)
	}
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Deliver sends an event to every client whose recorded IP matches the
// event's peer, or to everyone when broadcastAll is set. Clients that cannot
// keep up are evicted.
func (r *Registry) Deliver(ev types.ASREvent, broadcastAll bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("[WS] Failed to marshal event", "error", err)
		return
	}

	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if broadcastAll || c.PeerIP == ev.PeerIP {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			slog.Warn("[WS] Client send queue full, evicting", "client_id", c.ID, "peer_ip", c.PeerIP)
			r.Remove(c)
		}
	}
}

// CloseAll evicts every client. Used at shutdown after the final drain.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		r.Remove(c)
	}
}

// writeLoop owns the socket's write side: queued frames plus the periodic
// heartbeat. On eviction it flushes the queue before closing, so replies
// like "stopped" reach the client.
func (r *Registry) writeLoop(c *Client) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					c.write(data)
				default:
					c.conn.Close()
					return
				}
			}
		case data := <-c.send:
			if err := c.write(data); err != nil {
				slog.Warn("[WS] Send failed, evicting", "client_id", c.ID, "error", err)
				r.Remove(c)
			}
		case <-ticker.C:
			hb, _ := json.Marshal(types.NewWSControl(types.WSServerHeartbeat))
			if err := c.write(hb); err != nil {
				slog.Warn("[WS] Heartbeat failed, evicting", "client_id", c.ID, "error", err)
				r.Remove(c)
			}
		}
	}
}

func (c *Client) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop handles inbound control frames until the client goes away.
// Eviction closes the socket from the write side, which unblocks the read.
func (r *Registry) ReadLoop(c *Client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			r.Remove(c)
			return
		}

		var msg types.WSControl
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("[WS] Ignoring malformed client frame", "client_id", c.ID, "error", err)
			continue
		}

		switch msg.Type {
		case types.WSPing:
			reply, _ := json.Marshal(types.NewWSControl(types.WSPong))
			c.enqueue(reply)
		case types.WSStopListening:
			reply, _ := json.Marshal(types.NewWSControl(types.WSStopped))
			c.enqueue(reply)
			r.Remove(c)
			return
		default:
			slog.Debug("[WS] Ignoring unknown client frame", "client_id", c.ID, "type", msg.Type)
		}
	}
}

// ClientIP resolves a client's source IP: leftmost X-Forwarded-For entry,
// then X-Real-IP, then the socket address.
func ClientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
