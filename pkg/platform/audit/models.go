package audit

import (
	"context"
	"time"

	id "admissions/pkg/domain"
)

// EventCategory classifies audit entries by their primary purpose so the outbox
// consumer can route them to different retention tiers.
type EventCategory string

const (
	// CategoryCompliance covers money movement and records with regulatory weight.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers authentication failures and rejected callbacks.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Action names a state-changing operation.
type Action string

const (
	ActionUserRegistered Action = "user_registered"
	ActionUserLoggedIn   Action = "user_logged_in"
	ActionLoginFailed    Action = "login_failed"

	ActionApplicationCreated  Action = "application_created"
	ActionApplicationRepaired Action = "application_payment_repaired"

	ActionPaymentOrderCreated       Action = "payment_order_created"
	ActionPaymentOrderFailed        Action = "payment_order_failed"
	ActionPaymentVerified           Action = "payment_verified"
	ActionPaymentVerificationFailed Action = "payment_verification_failed"
	ActionPaymentDuplicateCapture   Action = "payment_duplicate_capture"
	ActionReceiptReissued           Action = "receipt_reissued"
)

var actionCategories = map[Action]EventCategory{
	ActionUserRegistered:      CategoryCompliance,
	ActionApplicationCreated:  CategoryCompliance,
	ActionApplicationRepaired: CategoryCompliance,
	ActionPaymentOrderCreated: CategoryCompliance,
	ActionPaymentVerified:     CategoryCompliance,

	ActionLoginFailed:               CategorySecurity,
	ActionPaymentVerificationFailed: CategorySecurity,
	ActionPaymentDuplicateCapture:   CategorySecurity,

	ActionUserLoggedIn:       CategoryOperations,
	ActionPaymentOrderFailed: CategoryOperations,
	ActionReceiptReissued:    CategoryOperations,
}

// Category returns the category for a; unknown actions are operational.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Entity types referenced by entries.
const (
	EntityUser        = "user"
	EntityApplication = "application"
	EntityPayment     = "payment"
)

// Entry is one append-only audit record. OldValues and NewValues are JSON
// snapshots of the fields that changed.
type Entry struct {
	ID         id.AuditEntryID
	Actor      string
	Action     Action
	EntityType string
	EntityID   string
	OldValues  map[string]any
	NewValues  map[string]any
	IPAddress  string
	UserAgent  string
	Client     string
	RequestID  string
	Timestamp  time.Time
}

// Store persists entries. There is no update or delete.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]Entry, error)
}
