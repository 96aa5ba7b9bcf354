package service

import (
	"context"
	"errors"

	identitymodels "admissions/internal/identity/models"
	"admissions/internal/payment/models"
	"admissions/internal/receipt"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	"admissions/pkg/platform/sentinel"

	dErrors "admissions/pkg/domain-errors"
)

// Receipt re-issues the PDF receipt of a successful payment. Students may only
// fetch their own receipts; admins may fetch any.
func (s *Service) Receipt(ctx context.Context, caller identitymodels.Caller, paymentID id.PaymentID) ([]byte, string, error) {
	if s.receipts == nil {
		return nil, "", dErrors.New(dErrors.CodeInternal, "receipts are not configured")
	}

	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	if p.UserID != caller.UserID && caller.Role != identitymodels.RoleAdmin {
		return nil, "", dErrors.New(dErrors.CodeNotFound, "payment not found")
	}
	if p.Status != models.StatusSuccess {
		return nil, "", dErrors.New(dErrors.CodeConflict, "receipt is only available for successful payments")
	}

	data, err := s.receiptData(p)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load receipt details")
	}
	pdf, err := s.receipts.Generate(data)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to render receipt")
	}

	s.record(ctx, audit.Entry{
		Actor:      caller.UserID.String(),
		Action:     audit.ActionReceiptReissued,
		EntityType: audit.EntityPayment,
		EntityID:   p.ID.String(),
		NewValues:  map[string]any{"receipt_number": p.ReceiptNumber},
	})
	return pdf, receipt.FileName(p.ReceiptNumber), nil
}
