package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	identitymodels "admissions/internal/identity/models"
	"admissions/internal/payment/models"
	"admissions/internal/payment/service"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/httputil"
	request "admissions/pkg/platform/middleware/request"
	"admissions/pkg/requestcontext"
)

// Service defines the payment operations exposed over HTTP.
type Service interface {
	CreateOrder(ctx context.Context, userID id.UserID, appID id.ApplicationID, amount decimal.Decimal) (*service.Order, error)
	VerifyPayment(ctx context.Context, userID id.UserID, cb models.Callback) (*service.Verification, error)
	Receipt(ctx context.Context, caller identitymodels.Caller, paymentID id.PaymentID) ([]byte, string, error)
}

// Handler serves checkout, callback verification and receipt download.
type Handler struct {
	payments Service
	logger   *slog.Logger
}

func New(payments Service, logger *slog.Logger) *Handler {
	return &Handler{payments: payments, logger: logger}
}

// Register registers the checkout routes used by students.
func (h *Handler) Register(r chi.Router) {
	r.Post("/payments/orders", h.handleCreateOrder)
	r.Post("/payments/verify", h.handleVerify)
}

// RegisterReceipts registers receipt download, open to students and admins.
func (h *Handler) RegisterReceipts(r chi.Router) {
	r.Get("/payments/{paymentID}/receipt", h.handleReceipt)
}

type createOrderRequest struct {
	ApplicationID string          `json:"application_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type orderResponse struct {
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	ReceiptNumber string `json:"receipt_number"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	KeyID         string `json:"key_id"`
}

type verifyResponse struct {
	PaymentID     string `json:"payment_id"`
	ApplicationID string `json:"application_id"`
	TransactionID string `json:"transaction_id"`
	ReceiptNumber string `json:"receipt_number"`
	Status        string `json:"status"`
	Replayed      bool   `json:"replayed"`
	ReceiptURL    string `json:"receipt_url"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	appID, err := id.ParseApplicationID(req.ApplicationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.payments.CreateOrder(ctx, requestcontext.UserID(ctx), appID, req.Amount)
	if err != nil {
		h.logFailure(ctx, "create payment order failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, orderResponse{
		OrderID:       order.OrderID,
		PaymentID:     order.PaymentID.String(),
		TransactionID: order.TransactionID,
		ReceiptNumber: order.ReceiptNumber,
		Amount:        order.Amount,
		Currency:      order.Currency,
		KeyID:         order.KeyID,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var cb models.Callback
	if err := httputil.DecodeJSON(r, &cb); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.payments.VerifyPayment(ctx, requestcontext.UserID(ctx), cb)
	if err != nil {
		h.logFailure(ctx, "payment verification failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		PaymentID:     result.PaymentID.String(),
		ApplicationID: result.ApplicationID.String(),
		TransactionID: result.TransactionID,
		ReceiptNumber: result.ReceiptNumber,
		Status:        string(result.Status),
		Replayed:      result.Replayed,
		ReceiptURL:    "/payments/" + result.PaymentID.String() + "/receipt",
	})
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := identitymodels.Caller{
		UserID: requestcontext.UserID(ctx),
		Role:   identitymodels.Role(requestcontext.Role(ctx)),
	}

	pdf, filename, err := h.payments.Receipt(ctx, caller, paymentID)
	if err != nil {
		h.logFailure(ctx, "receipt download failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", request.GetRequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"error", err,
	)
}
