package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-zeromq/zmq4"
	"github.com/gorilla/websocket"

	types "github.com/sebas/hotline/api/types/v1"
	"github.com/sebas/hotline/internal/metrics"
)

// reconnectBackoff is the pause before re-binding the SUB socket after a
// receive failure.
const reconnectBackoff = time.Second

// Config holds the router's runtime settings.
type Config struct {
	EventsEndpoint string
	BroadcastAll   bool
	AllowedOrigins []string
	MaxDelay       time.Duration
	DrainInterval  time.Duration
	Heartbeat      time.Duration
}

// Server ties the event queue, the client registry and the HTTP surface
// together.
type Server struct {
	cfg      Config
	queue    *EventQueue
	registry *Registry
	router   *chi.Mux
	upgrader websocket.Upgrader
}

// NewServer creates a router server with all routes mounted.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		queue:    NewEventQueue(cfg.MaxDelay),
		registry: NewRegistry(cfg.Heartbeat),
		router:   chi.NewRouter(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.router.Get("/listening", s.handleListening)
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run consumes ASR events until the context ends, then drains every queue
// so held transcripts still reach their clients.
func (s *Server) Run(ctx context.Context) error {
	go s.consume(ctx)

	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, ev := range s.queue.DrainAll() {
				s.deliver(ev)
			}
			s.registry.CloseAll()
			return nil
		case <-ticker.C:
			for _, ev := range s.queue.DrainReady() {
				s.deliver(ev)
			}
		}
	}
}

// consume owns the SUB socket. A receive failure tears the socket down and
// starts over from a fresh bind.
func (s *Server) consume(ctx context.Context) {
	for ctx.Err() == nil {
		sub := zmq4.NewSub(ctx)
		if err := sub.Listen(s.cfg.EventsEndpoint); err != nil {
			slog.Error("[Router] Failed to bind event SUB socket", "endpoint", s.cfg.EventsEndpoint, "error", err)
			sub.Close()
			s.pause(ctx)
			continue
		}
		if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
			slog.Error("[Router] Failed to subscribe", "error", err)
			sub.Close()
			s.pause(ctx)
			continue
		}

		slog.Info("[Router] Consuming ASR events", "endpoint", s.cfg.EventsEndpoint)
		for {
			msg, err := sub.Recv()
			if err != nil {
				if ctx.Err() != nil {
					sub.Close()
					return
				}
				slog.Error("[Router] Receive failed, restarting subscriber", "error", err)
				break
			}
			if len(msg.Frames) > 0 {
				s.handleEvent(msg.Frames[0])
			}
		}
		sub.Close()
		s.pause(ctx)
	}
}

func (s *Server) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(reconnectBackoff):
	}
}

// handleEvent routes one raw event frame: transcript updates go through the
// per-peer queue, call_finished flushes the peer and goes out last.
func (s *Server) handleEvent(data []byte) {
	var ev types.ASREvent
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("[Router] Dropping malformed event", "error", err)
		metrics.EventsDropped.Inc()
		return
	}
	metrics.EventsConsumed.WithLabelValues(ev.Type).Inc()

	if ev.Type == types.EventCallFinished {
		for _, held := range s.queue.FlushPeer(ev.PeerIP) {
			s.deliver(held)
		}
		s.deliver(ev)
		return
	}

	for _, ready := range s.queue.Push(ev) {
		s.deliver(ready)
	}
}

func (s *Server) deliver(ev types.ASREvent) {
	s.registry.Deliver(ev, s.cfg.BroadcastAll)
	metrics.EventsDelivered.Inc()
}

// handleListening upgrades the connection and serves it until it closes.
func (s *Server) handleListening(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[Router] WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := s.registry.Add(conn, ClientIP(r))
	s.registry.ReadLoop(client)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.HealthResponse{
		Status:   "ok",
		Clients:  s.registry.Count(),
		Endpoint: s.cfg.EventsEndpoint,
		TS:       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
