package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Server forwards client calls to the order service. Pure proxying: no
// business logic lives here.
type Server struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

func NewServer(cfg Config, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, client: &http.Client{}, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/api/checkout", s.handleCheckout)
	r.Get("/api/orders/{orderID}", s.handleGetOrder)
	r.Get("/api/orders/user/{userID}", s.handleUserOrders)
	return cors.AllowAll().Handler(r)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "api-gateway",
		"status":  "healthy",
		"services": map[string]string{
			"order": s.cfg.OrderURL,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"gateway": "operational",
	})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, http.MethodPost, "/checkout", s.cfg.CheckoutTimeout)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, http.MethodGet, "/orders/"+chi.URLParam(r, "orderID"), s.cfg.LookupTimeout)
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, http.MethodGet, "/orders/user/"+chi.URLParam(r, "userID"), s.cfg.LookupTimeout)
}

// forward relays the request body and propagates the upstream status
// verbatim. An unreachable order service becomes a 503.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, method, path string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var body io.Reader
	if method == http.MethodPost {
		body = r.Body
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.OrderURL+path, body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "bad upstream request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("order service unreachable")
		writeError(w, http.StatusServiceUnavailable, "order service unavailable")
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("copy upstream response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
