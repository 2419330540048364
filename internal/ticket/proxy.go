package ticket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	types "github.com/sebas/hotline/api/types/v1"
	"github.com/sebas/hotline/internal/metrics"
)

// Config holds the proxy's runtime settings.
type Config struct {
	Upstreams       []string
	UpstreamTimeout time.Duration
}

// Server is the ticket generation HTTP proxy.
type Server struct {
	balancer *Balancer
	client   *http.Client
	router   *chi.Mux
}

// NewServer creates a proxy server with all routes mounted.
func NewServer(cfg Config) (*Server, error) {
	balancer, err := NewBalancer(cfg.Upstreams)
	if err != nil {
		return nil, err
	}

	s := &Server{
		balancer: balancer,
		client:   &http.Client{Timeout: cfg.UpstreamTimeout},
		router:   chi.NewRouter(),
	}

	s.router.Post("/ticketGeneration", s.handleTicketGeneration)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Handle("/metrics", metrics.Handler())
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleTicketGeneration validates the conversation, reshapes it into the
// summarizer's body, forwards it to one endpoint and relays the ticket back.
func (s *Server) handleTicketGeneration(w http.ResponseWriter, r *http.Request) {
	var req types.TicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateRequest(req); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	// {unique_key: [{source: text}, …]}
	utterances := make([]map[string]string, 0, len(req.Conversation))
	for _, item := range req.Conversation {
		utterances = append(utterances, map[string]string{string(item.Source): item.Text})
	}
	body, err := json.Marshal(map[string][]map[string]string{req.UniqueKey: utterances})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode upstream body")
		return
	}

	ep := s.balancer.Next()
	ep.reqCount.Add(1)

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, ep.url, bytes.NewReader(body))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "failed to build upstream request")
		return
	}
	upstream.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(upstream)
	if err != nil {
		ep.markFailure()
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			slog.Error("[Ticket] Summarizer timed out", "url", ep.url, "unique_key", req.UniqueKey)
			metrics.UpstreamErrors.WithLabelValues("timeout").Inc()
			s.writeError(w, http.StatusGatewayTimeout, "summarizer timed out")
			return
		}
		slog.Error("[Ticket] Summarizer request failed", "url", ep.url, "unique_key", req.UniqueKey, "error", err)
		metrics.UpstreamErrors.WithLabelValues("http_error").Inc()
		s.writeError(w, http.StatusBadGateway, "summarizer unreachable")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ep.markFailure()
		slog.Error("[Ticket] Summarizer returned error", "url", ep.url, "status", resp.Status, "unique_key", req.UniqueKey)
		metrics.UpstreamErrors.WithLabelValues("http_error").Inc()
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("summarizer returned %s", resp.Status))
		return
	}
	ep.markSuccess()

	ticket, ok := decodeTicket(resp.Body)
	if !ok {
		slog.Error("[Ticket] Summarizer returned unexpected schema", "url", ep.url, "unique_key", req.UniqueKey)
		metrics.UpstreamErrors.WithLabelValues("bad_schema").Inc()
		s.writeError(w, http.StatusBadGateway, "summarizer returned unexpected schema")
		return
	}

	slog.Info("[Ticket] Ticket generated", "unique_key", req.UniqueKey, "url", ep.url, "type", ticket.TicketType)
	metrics.TicketRequests.WithLabelValues("200").Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// validateRequest returns a problem description, or "" when the request is
// well-formed.
func validateRequest(req types.TicketRequest) string {
	if req.UniqueKey == "" {
		return "unique_key is required"
	}
	if len(req.Conversation) == 0 {
		return "conversation must not be empty"
	}
	for i, item := range req.Conversation {
		if !item.Source.Valid() {
			return fmt.Sprintf("conversation[%d].source must be citizen or hot-line", i)
		}
	}
	return ""
}

// decodeTicket enforces the ticket shape structurally: the four fields must
// all be present and be strings.
func decodeTicket(r io.Reader) (types.TicketResponse, bool) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return types.TicketResponse{}, false
	}

	fields := make(map[string]string, 4)
	for _, key := range []string{"ticket_type", "ticket_zone", "ticket_title", "ticket_content"} {
		v, ok := raw[key]
		if !ok {
			return types.TicketResponse{}, false
		}
		str, ok := v.(string)
		if !ok {
			return types.TicketResponse{}, false
		}
		fields[key] = str
	}

	return types.TicketResponse{
		TicketType:    fields["ticket_type"],
		TicketZone:    fields["ticket_zone"],
		TicketTitle:   fields["ticket_title"],
		TicketContent: fields["ticket_content"],
	}, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.balancer.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"total":     stats.Total,
		"healthy":   stats.Healthy,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.balancer.Stats())
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	metrics.TicketRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(types.ErrorResponse{Detail: detail})
}
