package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	id "admissions/pkg/domain"
	dErrors "admissions/pkg/domain-errors"
)

// Status is the payment lifecycle state. PENDING is the only non-terminal state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransitionTo reports whether s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// Failure reasons recorded on FAILED payments.
const (
	FailureSignatureInvalid = "signature_invalid"
	FailureDuplicateCapture = "duplicate_capture"
)

// Payment is one attempt to pay an application's fee. An application may have
// many payments but at most one in SUCCESS.
type Payment struct {
	ID               id.PaymentID
	TransactionID    string
	ApplicationID    id.ApplicationID
	UserID           id.UserID
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
	Amount           decimal.Decimal
	Currency         string
	Status           Status
	ReceiptNumber    string
	PaymentMethod    string
	GatewayResponse  json.RawMessage
	FailureReason    string
	// Receipt snapshot taken at settlement so re-issued receipts match the
	// original even after the profile or course changes.
	StudentName       string
	CourseName        string
	ApplicationNumber string
	CreatedAt         time.Time
	CompletedAt      *time.Time
	FailedAt         *time.Time
}

// Settlement carries what a verified callback adds to a payment.
type Settlement struct {
	GatewayPaymentID string
	Signature        string
	Method           string
	Response         json.RawMessage
	At               time.Time

	StudentName       string
	CourseName        string
	ApplicationNumber string
}

// Rejection carries why a pending payment failed.
type Rejection struct {
	Reason           string
	GatewayPaymentID string
	Response         json.RawMessage
	At               time.Time
}

// Succeed applies s to a PENDING payment.
func (p *Payment) Succeed(s Settlement) error {
	if !p.Status.CanTransitionTo(StatusSuccess) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "payment %s cannot move from %s to SUCCESS", p.ID, p.Status)
	}
	at := s.At
	p.Status = StatusSuccess
	p.GatewayPaymentID = s.GatewayPaymentID
	p.GatewaySignature = s.Signature
	p.PaymentMethod = s.Method
	p.GatewayResponse = s.Response
	p.StudentName = s.StudentName
	p.CourseName = s.CourseName
	p.ApplicationNumber = s.ApplicationNumber
	p.CompletedAt = &at
	return nil
}

// Fail applies r to a PENDING payment.
func (p *Payment) Fail(r Rejection) error {
	if !p.Status.CanTransitionTo(StatusFailed) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "payment %s cannot move from %s to FAILED", p.ID, p.Status)
	}
	at := r.At
	p.Status = StatusFailed
	p.FailureReason = r.Reason
	if r.GatewayPaymentID != "" {
		p.GatewayPaymentID = r.GatewayPaymentID
	}
	p.GatewayResponse = r.Response
	p.FailedAt = &at
	return nil
}

// Callback is the signed payload the gateway's checkout posts back.
type Callback struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// Validate rejects callbacks with missing fields.
func (c Callback) Validate() error {
	if c.OrderID == "" || c.PaymentID == "" || c.Signature == "" {
		return dErrors.New(dErrors.CodeValidation, "missing payment verification fields")
	}
	return nil
}

// MinorUnits converts a rupee amount to paise.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// FromMinorUnits converts paise to rupees.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
