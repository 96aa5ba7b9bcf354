package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"admissions/internal/notify"
	"admissions/internal/payment/models"
	"admissions/internal/receipt"
	"admissions/pkg/email"
)

const (
	taskReceipt = "receipt"
	taskArchive = "archive"
	taskNotify  = "notify"
)

// dispatchSideEffects renders and archives the receipt and emails the student.
// None of it can undo the settled payment; failures are logged and counted.
func (s *Service) dispatchSideEffects(ctx context.Context, p *models.Payment) {
	run := func() {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.SideEffectTimeout)
		defer cancel()
		s.runSideEffects(ctx, p)
	}
	if !s.cfg.AsyncSideEffects {
		run()
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		run()
	}()
}

func (s *Service) runSideEffects(ctx context.Context, p *models.Payment) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "panic in payment side effects",
				"payment_id", p.ID,
				"panic", fmt.Sprint(r),
			)
			s.metrics.IncrementSideEffectFailure("panic")
		}
	}()

	data, err := s.receiptData(p)
	if err != nil {
		s.sideEffectFailed(ctx, taskReceipt, p, err)
		return
	}

	var pdf []byte
	if s.receipts != nil {
		pdf, err = s.receipts.Generate(data)
		if err != nil {
			s.sideEffectFailed(ctx, taskReceipt, p, err)
			pdf = nil
		}
	}

	var g errgroup.Group
	if pdf != nil && s.archive != nil {
		g.Go(func() error {
			if err := s.archive.Put(ctx, receipt.FileName(p.ReceiptNumber), pdf); err != nil {
				s.sideEffectFailed(ctx, taskArchive, p, err)
			}
			return nil
		})
	}
	if s.notifier != nil {
		g.Go(func() error {
			s.sendConfirmation(ctx, p, data, pdf)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) sendConfirmation(ctx context.Context, p *models.Payment, data receipt.Data, pdf []byte) {
	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		s.sideEffectFailed(ctx, taskNotify, p, err)
		return
	}

	name := data.StudentName
	if name == "" {
		name = email.GreetingName(user.Email)
	}
	subject, body, err := notify.RenderPaymentSuccess(notify.PaymentSuccess{
		StudentName:   name,
		Amount:        receipt.FormatAmount(data.Currency, data.Amount),
		TransactionID: p.TransactionID,
		ReceiptNumber: p.ReceiptNumber,
		Date:          data.PaymentDate.Format("02 Jan 2006"),
		DashboardURL:  s.cfg.DashboardURL,
		Issuer:        s.cfg.IssuerName,
	})
	if err != nil {
		s.sideEffectFailed(ctx, taskNotify, p, err)
		return
	}

	msg := notify.Message{To: user.Email, Subject: subject, HTML: body}
	if pdf != nil {
		msg.Attachments = []notify.Attachment{{
			Filename:    receipt.FileName(p.ReceiptNumber),
			ContentType: "application/pdf",
			Content:     pdf,
		}}
	}
	result := s.notifier.Notify(ctx, msg)
	if !result.Sent {
		s.sideEffectFailed(ctx, taskNotify, p, result.Err)
		return
	}
	s.logger.InfoContext(ctx, "payment confirmation sent",
		"payment_id", p.ID,
		"attempts", result.Attempts,
	)
}

// receiptData builds the printable receipt from the committed payment row
// alone. GeneratedAt is the completion time, so a reissued receipt is
// byte-identical to the first one.
func (s *Service) receiptData(p *models.Payment) (receipt.Data, error) {
	if p.CompletedAt == nil {
		return receipt.Data{}, fmt.Errorf("payment %s has no completion time", p.ID)
	}
	if p.ApplicationNumber == "" {
		return receipt.Data{}, fmt.Errorf("payment %s has no receipt snapshot", p.ID)
	}
	return receipt.Data{
		ReceiptNumber:     p.ReceiptNumber,
		TransactionID:     p.TransactionID,
		StudentName:       p.StudentName,
		CourseName:        p.CourseName,
		ApplicationNumber: p.ApplicationNumber,
		Amount:            p.Amount,
		Currency:          p.Currency,
		PaymentDate:       *p.CompletedAt,
		PaymentMethod:     p.PaymentMethod,
		GeneratedAt:       *p.CompletedAt,
	}, nil
}

func (s *Service) sideEffectFailed(ctx context.Context, task string, p *models.Payment, err error) {
	s.metrics.IncrementSideEffectFailure(task)
	s.logger.ErrorContext(ctx, "payment side effect failed",
		"task", task,
		"payment_id", p.ID,
		"error", err,
	)
}

// refundDuplicate returns a second capture for an already paid application.
// A failed refund is left for an operator; the payment row records why.
func (s *Service) refundDuplicate(ctx context.Context, p *models.Payment, gatewayPaymentID string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SideEffectTimeout)
	defer cancel()
	refund, err := s.gateway.Refund(ctx, gatewayPaymentID, models.MinorUnits(p.Amount))
	if err != nil {
		s.sideEffectFailed(ctx, "refund", p, err)
		return
	}
	s.logger.WarnContext(ctx, "duplicate capture refunded",
		"payment_id", p.ID,
		"refund_id", refund.ID,
	)
}
