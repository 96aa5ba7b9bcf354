package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	admissionmodels "admissions/internal/admission/models"
	"admissions/internal/payment/metrics"
	"admissions/internal/payment/models"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	"admissions/pkg/platform/sentinel"
	"admissions/pkg/requestcontext"

	dErrors "admissions/pkg/domain-errors"
)

// Verification is the settled state of a payment after a callback.
type Verification struct {
	PaymentID     id.PaymentID
	ApplicationID id.ApplicationID
	TransactionID string
	ReceiptNumber string
	Status        models.Status
	// Replayed is set when the payment had already succeeded before this call.
	Replayed bool
}

type outcomeKind int

const (
	outcomeSettled outcomeKind = iota
	outcomeReplayed
	outcomePreviouslyFailed
	outcomeSignatureInvalid
	outcomeDuplicate
)

type reconcileOutcome struct {
	kind    outcomeKind
	payment *models.Payment
	// winner is the payment that already settled the application on a duplicate.
	winner *models.Payment
}

// errLostRace marks a conditional update that matched no PENDING row.
var errLostRace = errors.New("payment left PENDING concurrently")

// VerifyPayment checks a gateway callback and, when it is genuine, moves the
// payment to SUCCESS and marks the application paid in one transaction.
// Repeating a callback is safe: settled payments are reported as replayed and
// failed ones return the error recorded for them.
func (s *Service) VerifyPayment(ctx context.Context, userID id.UserID, cb models.Callback) (_ *Verification, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "payment.verify")
	span.SetAttributes(attribute.String("gateway.order_id", cb.OrderID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := cb.Validate(); err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	defer cancel()

	payment, err := s.payments.FindByOrderID(ctx, cb.OrderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, s.verifyFailure(ctx, err, started)
	}
	if payment.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID.String()))

	release, err := s.locker.Acquire(ctx, "application:"+payment.ApplicationID.String())
	if err != nil {
		if errors.Is(err, sentinel.ErrLockHeld) {
			s.metrics.ObserveVerification(metrics.OutcomeError, started)
			return nil, dErrors.New(dErrors.CodeConflict, "payment verification already in progress, please retry")
		}
		return nil, s.verifyFailure(ctx, err, started)
	}
	defer release()

	var outcome reconcileOutcome
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var txErr error
		outcome, txErr = s.reconcile(ctx, payment.ID, cb)
		return txErr
	})
	if errors.Is(err, errLostRace) {
		outcome, err = s.settledOutcome(ctx, payment.ID)
	}
	if err != nil {
		return nil, s.verifyFailure(ctx, err, started)
	}

	return s.finishVerification(ctx, detached, userID, cb, outcome, started)
}

// reconcile runs inside the transaction with the payment and application rows locked.
func (s *Service) reconcile(ctx context.Context, paymentID id.PaymentID, cb models.Callback) (reconcileOutcome, error) {
	p, err := s.payments.FindByIDForUpdate(ctx, paymentID)
	if err != nil {
		return reconcileOutcome{}, err
	}
	if _, err := s.applications.FindApplicationForUpdate(ctx, p.ApplicationID); err != nil {
		return reconcileOutcome{}, err
	}

	switch p.Status {
	case models.StatusSuccess:
		return reconcileOutcome{kind: outcomeReplayed, payment: p}, nil
	case models.StatusFailed:
		return reconcileOutcome{kind: outcomePreviouslyFailed, payment: p}, nil
	}

	now := requestcontext.Now(ctx)
	raw, err := json.Marshal(cb)
	if err != nil {
		return reconcileOutcome{}, err
	}

	if !s.verifier.Verify(cb.OrderID, cb.PaymentID, cb.Signature) {
		rejection := models.Rejection{
			Reason:           models.FailureSignatureInvalid,
			GatewayPaymentID: cb.PaymentID,
			Response:         raw,
			At:               now,
		}
		if err := s.markFailed(ctx, p, rejection); err != nil {
			return reconcileOutcome{}, err
		}
		return reconcileOutcome{kind: outcomeSignatureInvalid, payment: p}, nil
	}

	winner, err := s.payments.FindSuccessfulByApplication(ctx, p.ApplicationID)
	switch {
	case err == nil && winner.ID != p.ID:
		rejection := models.Rejection{
			Reason:           models.FailureDuplicateCapture,
			GatewayPaymentID: cb.PaymentID,
			Response:         raw,
			At:               now,
		}
		if err := s.markFailed(ctx, p, rejection); err != nil {
			return reconcileOutcome{}, err
		}
		return reconcileOutcome{kind: outcomeDuplicate, payment: p, winner: winner}, nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return reconcileOutcome{}, err
	}

	details, err := s.applications.FindApplicationDetails(ctx, p.ApplicationID)
	if err != nil {
		return reconcileOutcome{}, err
	}
	settlement := models.Settlement{
		GatewayPaymentID:  cb.PaymentID,
		Signature:         cb.Signature,
		Method:            s.cfg.MethodLabel,
		Response:          raw,
		At:                now,
		StudentName:       details.StudentName,
		CourseName:        details.CourseName,
		ApplicationNumber: details.Application.ApplicationNumber,
	}
	if err := s.payments.MarkSucceeded(ctx, p.ID, settlement); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return reconcileOutcome{}, errLostRace
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return reconcileOutcome{}, dErrors.New(dErrors.CodeConflict, "application fee has already been paid")
		}
		return reconcileOutcome{}, err
	}
	if err := s.applications.SetPaymentStatus(ctx, p.ApplicationID, admissionmodels.PaymentSuccess, now); err != nil {
		return reconcileOutcome{}, err
	}
	if err := p.Succeed(settlement); err != nil {
		return reconcileOutcome{}, err
	}
	return reconcileOutcome{kind: outcomeSettled, payment: p}, nil
}

func (s *Service) markFailed(ctx context.Context, p *models.Payment, r models.Rejection) error {
	if err := s.payments.MarkFailed(ctx, p.ID, r); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return errLostRace
		}
		return err
	}
	return p.Fail(r)
}

// settledOutcome re-reads a payment another caller transitioned first.
func (s *Service) settledOutcome(ctx context.Context, paymentID id.PaymentID) (reconcileOutcome, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return reconcileOutcome{}, err
	}
	switch p.Status {
	case models.StatusSuccess:
		return reconcileOutcome{kind: outcomeReplayed, payment: p}, nil
	case models.StatusFailed:
		return reconcileOutcome{kind: outcomePreviouslyFailed, payment: p}, nil
	}
	return reconcileOutcome{}, dErrors.Newf(dErrors.CodeInvariantViolation, "payment %s still PENDING after a lost transition", paymentID)
}

func (s *Service) finishVerification(
	ctx, detached context.Context,
	userID id.UserID,
	cb models.Callback,
	outcome reconcileOutcome,
	started time.Time,
) (*Verification, error) {
	p := outcome.payment
	result := &Verification{
		PaymentID:     p.ID,
		ApplicationID: p.ApplicationID,
		TransactionID: p.TransactionID,
		ReceiptNumber: p.ReceiptNumber,
		Status:        p.Status,
	}

	switch outcome.kind {
	case outcomeReplayed:
		s.metrics.ObserveVerification(metrics.OutcomeReplayed, started)
		result.Replayed = true
		return result, nil

	case outcomePreviouslyFailed:
		s.metrics.ObserveVerification(metrics.OutcomeReplayed, started)
		return nil, recordedFailure(p)

	case outcomeSignatureInvalid:
		s.metrics.ObserveVerification(metrics.OutcomeSignatureInvalid, started)
		s.logger.WarnContext(ctx, "payment signature rejected",
			"payment_id", p.ID,
			"gateway_order_id", cb.OrderID,
		)
		s.record(ctx, audit.Entry{
			Actor:      userID.String(),
			Action:     audit.ActionPaymentVerificationFailed,
			EntityType: audit.EntityPayment,
			EntityID:   p.ID.String(),
			OldValues:  map[string]any{"status": string(models.StatusPending)},
			NewValues: map[string]any{
				"status":             string(models.StatusFailed),
				"failure_reason":     p.FailureReason,
				"gateway_payment_id": cb.PaymentID,
			},
		})
		return nil, recordedFailure(p)

	case outcomeDuplicate:
		s.metrics.ObserveVerification(metrics.OutcomeDuplicate, started)
		s.logger.ErrorContext(ctx, "duplicate capture for a paid application",
			"payment_id", p.ID,
			"application_id", p.ApplicationID,
			"settled_payment_id", outcome.winner.ID,
		)
		s.record(ctx, audit.Entry{
			Actor:      userID.String(),
			Action:     audit.ActionPaymentDuplicateCapture,
			EntityType: audit.EntityPayment,
			EntityID:   p.ID.String(),
			OldValues:  map[string]any{"status": string(models.StatusPending)},
			NewValues: map[string]any{
				"status":             string(models.StatusFailed),
				"failure_reason":     p.FailureReason,
				"gateway_payment_id": cb.PaymentID,
				"settled_payment_id": outcome.winner.ID.String(),
			},
		})
		s.refundDuplicate(detached, p, cb.PaymentID)
		return nil, recordedFailure(p)
	}

	s.metrics.ObserveVerification(metrics.OutcomeSuccess, started)
	s.logger.InfoContext(ctx, "payment verified",
		"payment_id", p.ID,
		"application_id", p.ApplicationID,
		"transaction_id", p.TransactionID,
	)
	s.record(ctx, audit.Entry{
		Actor:      userID.String(),
		Action:     audit.ActionPaymentVerified,
		EntityType: audit.EntityPayment,
		EntityID:   p.ID.String(),
		OldValues:  map[string]any{"status": string(models.StatusPending)},
		NewValues: map[string]any{
			"status":             string(models.StatusSuccess),
			"gateway_payment_id": p.GatewayPaymentID,
			"receipt_number":     p.ReceiptNumber,
			"application_status": string(admissionmodels.PaymentSuccess),
		},
	})
	s.dispatchSideEffects(detached, p)
	return result, nil
}

// recordedFailure is the error a FAILED payment reports, on first sight and on replay.
func recordedFailure(p *models.Payment) error {
	if p.FailureReason == models.FailureDuplicateCapture {
		return dErrors.New(dErrors.CodeConflict, "application fee has already been paid; this payment will be refunded")
	}
	return dErrors.New(dErrors.CodeSignatureInvalid, "payment verification failed")
}

func (s *Service) verifyFailure(ctx context.Context, err error, started time.Time) error {
	s.metrics.ObserveVerification(metrics.OutcomeError, started)
	if de, ok := dErrors.As(err); ok {
		if de.Code == dErrors.CodeInvariantViolation {
			s.logger.ErrorContext(ctx, "CRITICAL payment invariant violated", "error", err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "payment verification timed out", "error", err)
		return dErrors.Wrap(err, dErrors.CodeTimeout, "payment verification timed out, please retry")
	}
	s.logger.ErrorContext(ctx, "payment verification failed", "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify payment")
}
