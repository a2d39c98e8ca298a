package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mateovel/shoply/internal/bus"
	"github.com/mateovel/shoply/internal/dedup"
	"github.com/mateovel/shoply/internal/events"
)

type Server struct {
	repo *Repository
	pub  bus.Publisher
	seen *dedup.Tracker
	log  zerolog.Logger
}

func NewServer(repo *Repository, pub bus.Publisher, seen *dedup.Tracker, log zerolog.Logger) *Server {
	return &Server{repo: repo, pub: pub, seen: seen, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/checkout", s.handleCheckout)
	r.Get("/orders/{orderID}", s.handleGetOrder)
	r.Get("/orders/user/{userID}", s.handleUserOrders)
	r.Get("/health", s.handleHealth)
	return r
}

type checkoutItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type checkoutRequest struct {
	UserID    int64          `json:"user_id"`
	UserEmail string         `json:"user_email"`
	Items     []checkoutItem `json:"items"`
}

type itemResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type orderResponse struct {
	ID                   int64           `json:"id"`
	UserID               int64           `json:"user_id"`
	UserEmail            string          `json:"user_email"`
	Status               string          `json:"status"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	Items                []itemResponse  `json:"items"`
	ProcessingDurationMs int64           `json:"processing_duration_ms"`
	CreatedAt            time.Time       `json:"created_at"`
}

func orderToResponse(o *Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return orderResponse{
		ID:                   o.ID,
		UserID:               o.UserID,
		UserEmail:            o.UserEmail,
		Status:               o.Status,
		TotalAmount:          o.TotalAmount,
		Items:                items,
		ProcessingDurationMs: o.ProcessingDurationMs,
		CreatedAt:            time.Unix(o.CreatedUnix, 0).UTC(),
	}
}

func validateCheckout(req *checkoutRequest) error {
	if req.UserID == 0 {
		return errors.New("user_id is required")
	}
	if req.UserEmail == "" {
		return errors.New("user_email is required")
	}
	if len(req.Items) == 0 {
		return errors.New("items must not be empty")
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return errors.New("item quantity must be positive")
		}
		if it.Price.IsNegative() {
			return errors.New("item price must not be negative")
		}
	}
	return nil
}

// handleCheckout persists the order, publishes order.created and returns.
// Nothing downstream of the publish is waited on: payment and email happen
// behind the broker, so response latency is intake work only.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateCheckout(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Total is computed once, at creation. It is never recomputed later.
	total := decimal.Zero
	o := Order{
		UserID:      req.UserID,
		UserEmail:   req.UserEmail,
		Status:      OrderStatusPending,
		CreatedUnix: nowUnix(),
	}
	o.UpdatedUnix = o.CreatedUnix
	evItems := make([]events.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
		o.Items = append(o.Items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
		evItems = append(evItems, events.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	o.TotalAmount = total

	oid, err := s.repo.CreateOrder(r.Context(), &o)
	if err != nil {
		s.log.Error().Err(err).Msg("create order failed")
		writeError(w, http.StatusInternalServerError, "could not create order")
		return
	}
	o.ID = oid

	ev := events.OrderCreated{
		Envelope:    events.NewEnvelope(events.TypeOrderCreated),
		OrderID:     oid,
		UserID:      o.UserID,
		UserEmail:   o.UserEmail,
		TotalAmount: o.TotalAmount,
		Items:       evItems,
	}
	// Best effort: the order is created whether or not the event goes out.
	if err := s.pub.Publish(r.Context(), events.RKOrderCreated, ev); err != nil {
		s.log.Error().Err(err).Int64("order_id", oid).Msg("publish order.created failed, order stays pending")
	} else {
		s.log.Info().Int64("order_id", oid).Str("event_id", ev.EventID).Msg("order.created published")
	}

	o.ProcessingDurationMs = time.Since(start).Milliseconds()
	if err := s.repo.SetProcessingDuration(r.Context(), oid, o.ProcessingDurationMs); err != nil {
		s.log.Warn().Err(err).Int64("order_id", oid).Msg("store processing duration failed")
	}

	s.log.Info().
		Int64("order_id", oid).
		Str("total", o.TotalAmount.String()).
		Int64("duration_ms", o.ProcessingDurationMs).
		Msg("checkout done")
	writeJSON(w, http.StatusOK, orderToResponse(&o))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := s.repo.GetOrder(r.Context(), id)
	if errors.Is(err, ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Int64("order_id", id).Msg("get order failed")
		writeError(w, http.StatusInternalServerError, "could not load order")
		return
	}
	writeJSON(w, http.StatusOK, orderToResponse(o))
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	orders, err := s.repo.ListByUser(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", id).Msg("list orders failed")
		writeError(w, http.StatusInternalServerError, "could not load orders")
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderToResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "order-service",
		"status":  "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
