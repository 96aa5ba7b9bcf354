package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"admissions/internal/payment/signature"
)

// Simulator is an in-process stand-in for the gateway API. It issues orders,
// signs checkout completions the way the real checkout does, and records
// refunds. Used for local development and end-to-end tests.
type Simulator struct {
	keyID     string
	keySecret string
	now       func() time.Time

	mu      sync.Mutex
	orders  map[string]*Order
	refunds map[string][]Refund
	seq     atomic.Int64
}

func NewSimulator(keyID, keySecret string) *Simulator {
	return &Simulator{
		keyID:     keyID,
		keySecret: keySecret,
		now:       time.Now,
		orders:    make(map[string]*Order),
		refunds:   make(map[string][]Refund),
	}
}

// Handler serves the gateway API routes rooted at "/".
func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.basicAuth)
	r.Post("/orders", s.handleCreateOrder)
	r.Get("/orders/{orderID}", s.handleFetchOrder)
	r.Post("/orders/{orderID}/checkout", s.handleCheckout)
	r.Post("/payments/{paymentID}/refund", s.handleRefund)
	return r
}

// Checkout completes payment of an order and returns the signed callback the
// browser would post back.
func (s *Simulator) Checkout(orderID string) (paymentID, sig string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return "", "", fmt.Errorf("order %s not found", orderID)
	}
	order.Attempts++
	order.Status = "paid"
	order.AmountPaid = order.Amount
	order.AmountDue = 0
	paymentID = fmt.Sprintf("pay_sim%010d", s.seq.Add(1))
	return paymentID, signature.Sign(orderID, paymentID, s.keySecret), nil
}

// Refunds returns refunds recorded against a payment.
func (s *Simulator) Refunds(paymentID string) []Refund {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Refund(nil), s.refunds[paymentID]...)
}

func (s *Simulator) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.keyID || pass != s.keySecret {
			writeGatewayError(w, http.StatusUnauthorized, "BAD_REQUEST_ERROR", "Authentication failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Simulator) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGatewayError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid request body")
		return
	}
	if req.Amount < 100 {
		writeGatewayError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "The amount must be atleast INR 1.00")
		return
	}
	order := &Order{
		ID:        fmt.Sprintf("order_sim%010d", s.seq.Add(1)),
		Entity:    "order",
		Amount:    req.Amount,
		AmountDue: req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    "created",
		Notes:     req.Notes,
		CreatedAt: s.now().Unix(),
	}
	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()
	writeGatewayJSON(w, http.StatusOK, order)
}

func (s *Simulator) handleFetchOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	order, ok := s.orders[chi.URLParam(r, "orderID")]
	var cp Order
	if ok {
		cp = *order
	}
	s.mu.Unlock()
	if !ok {
		writeGatewayError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "The id provided does not exist")
		return
	}
	writeGatewayJSON(w, http.StatusOK, cp)
}

func (s *Simulator) handleCheckout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	paymentID, sig, err := s.Checkout(orderID)
	if err != nil {
		writeGatewayError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", err.Error())
		return
	}
	writeGatewayJSON(w, http.StatusOK, map[string]string{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  sig,
	})
}

func (s *Simulator) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	paymentID := chi.URLParam(r, "paymentID")
	refund := Refund{
		ID:        fmt.Sprintf("rfnd_sim%010d", s.seq.Add(1)),
		Entity:    "refund",
		PaymentID: paymentID,
		Amount:    req.Amount,
		Currency:  "INR",
		Status:    "processed",
	}
	s.mu.Lock()
	s.refunds[paymentID] = append(s.refunds[paymentID], refund)
	s.mu.Unlock()
	writeGatewayJSON(w, http.StatusOK, refund)
}

func writeGatewayJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeGatewayError(w http.ResponseWriter, status int, code, description string) {
	env := errorEnvelope{}
	env.Error.Code = code
	env.Error.Description = description
	writeGatewayJSON(w, status, env)
}
