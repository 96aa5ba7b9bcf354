package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"admissions/internal/payment/gateway"
	"admissions/internal/payment/models"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	"admissions/pkg/platform/sentinel"
	"admissions/pkg/requestcontext"

	dErrors "admissions/pkg/domain-errors"
)

// Order is what the checkout widget needs to collect a payment.
type Order struct {
	OrderID       string
	PaymentID     id.PaymentID
	TransactionID string
	ReceiptNumber string
	Amount        int64
	Currency      string
	KeyID         string
}

// CreateOrder opens a gateway order for the caller's application and records a
// PENDING payment. Nothing is persisted when the gateway call fails.
func (s *Service) CreateOrder(ctx context.Context, userID id.UserID, appID id.ApplicationID, amount decimal.Decimal) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.create_order")
	span.SetAttributes(attribute.String("application.id", appID.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}

	details, err := s.applications.FindApplicationDetails(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	app := details.Application
	if app.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	if !app.IsPayable() {
		return nil, dErrors.New(dErrors.CodeValidation, "application is not eligible for payment")
	}
	if !amount.Equal(app.ApplicationFee) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "amount must equal the application fee of %s", app.ApplicationFee.StringFixed(2))
	}

	if app.IsPaid() {
		return nil, dErrors.New(dErrors.CodeConflict, "application fee has already been paid")
	}
	if _, err := s.payments.FindSuccessfulByApplication(ctx, appID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "application fee has already been paid")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing payments")
	}

	now := requestcontext.Now(ctx)
	receiptNumber := s.sequence.ReceiptNumber(app.ApplicationNumber)
	transactionID := s.sequence.TransactionID()
	minor := models.MinorUnits(amount)

	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   minor,
		Currency: s.cfg.Currency,
		Receipt:  receiptNumber,
		Notes: map[string]string{
			"application_id":     appID.String(),
			"application_number": app.ApplicationNumber,
			"user_id":            userID.String(),
			"course_name":        details.CourseName,
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway order creation failed",
			"application_id", appID,
			"timeout", gateway.IsTimeout(err),
			"error", err,
		)
		s.metrics.ObserveOrder("gateway_error")
		s.record(ctx, audit.Entry{
			Actor:      userID.String(),
			Action:     audit.ActionPaymentOrderFailed,
			EntityType: audit.EntityApplication,
			EntityID:   appID.String(),
			NewValues:  map[string]any{"receipt_number": receiptNumber, "error": err.Error()},
		})
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "payment gateway is unavailable, please try again")
	}

	payment := &models.Payment{
		ID:             id.NewPaymentID(),
		TransactionID:  transactionID,
		ApplicationID:  appID,
		UserID:         userID,
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       s.cfg.Currency,
		Status:         models.StatusPending,
		ReceiptNumber:  receiptNumber,
		CreatedAt:      now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		s.metrics.ObserveOrder("store_error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment order")
	}

	s.metrics.ObserveOrder("created")
	s.logger.InfoContext(ctx, "payment order created",
		"payment_id", payment.ID,
		"application_id", appID,
		"gateway_order_id", order.ID,
	)
	s.record(ctx, audit.Entry{
		Actor:      userID.String(),
		Action:     audit.ActionPaymentOrderCreated,
		EntityType: audit.EntityPayment,
		EntityID:   payment.ID.String(),
		NewValues: map[string]any{
			"application_id":   appID.String(),
			"gateway_order_id": order.ID,
			"amount":           amount.StringFixed(2),
			"receipt_number":   receiptNumber,
			"status":           string(models.StatusPending),
		},
	})

	return &Order{
		OrderID:       order.ID,
		PaymentID:     payment.ID,
		TransactionID: transactionID,
		ReceiptNumber: receiptNumber,
		Amount:        minor,
		Currency:      s.cfg.Currency,
		KeyID:         s.gateway.KeyID(),
	}, nil
}
