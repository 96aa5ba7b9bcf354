package service

import (
	"context"
	"errors"

	admissionmodels "admissions/internal/admission/models"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	"admissions/pkg/requestcontext"
)

// RepairApplications marks paid every application that has a SUCCESS payment
// but still reports an unpaid status. It returns how many rows it fixed.
func (s *Service) RepairApplications(ctx context.Context) (int, error) {
	appIDs, err := s.payments.ListSettledApplications(ctx)
	if err != nil {
		return 0, err
	}

	var (
		repaired int
		errs     []error
	)
	for _, appID := range appIDs {
		fixed, err := s.repairApplication(ctx, appID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to repair application payment status",
				"application_id", appID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		if fixed {
			repaired++
		}
	}
	if repaired > 0 {
		s.logger.WarnContext(ctx, "repaired application payment status", "count", repaired)
	}
	return repaired, errors.Join(errs...)
}

func (s *Service) repairApplication(ctx context.Context, appID id.ApplicationID) (bool, error) {
	release, err := s.locker.Acquire(ctx, "application:"+appID.String())
	if err != nil {
		return false, err
	}
	defer release()

	var previous admissionmodels.PaymentStatus
	fixed := false
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		app, err := s.applications.FindApplicationForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if app.IsPaid() {
			return nil
		}
		if _, err := s.payments.FindSuccessfulByApplication(ctx, appID); err != nil {
			return err
		}
		previous = app.PaymentStatus
		if err := s.applications.SetPaymentStatus(ctx, appID, admissionmodels.PaymentSuccess, requestcontext.Now(ctx)); err != nil {
			return err
		}
		fixed = true
		return nil
	})
	if err != nil || !fixed {
		return false, err
	}

	s.metrics.IncrementRepaired()
	s.record(ctx, audit.Entry{
		Actor:      "system",
		Action:     audit.ActionApplicationRepaired,
		EntityType: audit.EntityApplication,
		EntityID:   appID.String(),
		OldValues:  map[string]any{"payment_status": string(previous)},
		NewValues:  map[string]any{"payment_status": string(admissionmodels.PaymentSuccess)},
	})
	return true, nil
}
