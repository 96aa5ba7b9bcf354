package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Gateway,Notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	admissionmodels "admissions/internal/admission/models"
	admissionstore "admissions/internal/admission/store"
	identitymodels "admissions/internal/identity/models"
	identitystore "admissions/internal/identity/store"
	"admissions/internal/notify"
	"admissions/internal/payment/gateway"
	"admissions/internal/payment/metrics"
	"admissions/internal/payment/models"
	"admissions/internal/payment/service/mocks"
	"admissions/internal/payment/signature"
	paymentstore "admissions/internal/payment/store"
	"admissions/internal/receipt"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	auditmemory "admissions/pkg/platform/audit/store/memory"
	"admissions/pkg/platform/tx"
	"admissions/pkg/requestcontext"

	dErrors "admissions/pkg/domain-errors"
)

const testSecret = "rzp_test_secret"

type PaymentServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	gateway  *mocks.MockGateway
	notifier *mocks.MockNotifier

	payments     *paymentstore.InMemoryStore
	applications *admissionstore.InMemoryStore
	users        *identitystore.InMemoryUserStore
	audits       *auditmemory.InMemoryStore
	archive      *receipt.MemoryArchive
	verifier     *signature.Verifier
	service      *Service

	ctx     context.Context
	student *identitymodels.User
	app     *admissionmodels.Application
	orders  int
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.gateway = mocks.NewMockGateway(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.gateway.EXPECT().KeyID().Return("rzp_test_key").AnyTimes()

	s.payments = paymentstore.NewInMemoryStore()
	s.applications = admissionstore.NewInMemoryStore()
	s.users = identitystore.NewInMemoryUserStore()
	s.audits = auditmemory.NewInMemoryStore()
	s.archive = receipt.NewMemoryArchive()
	s.verifier = signature.NewVerifier(testSecret)
	s.orders = 0

	now := time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.service = s.newService(Config{})
	s.seed(now)
}

func (s *PaymentServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *PaymentServiceSuite) newService(cfg Config) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.DashboardURL = "https://admissions.example.edu/dashboard"
	cfg.IssuerName = "Example University"
	return New(Deps{
		Payments:     s.payments,
		Applications: s.applications,
		Users:        s.users,
		Tx:           tx.NewLocalRunner(),
		Gateway:      s.gateway,
		Verifier:     s.verifier,
		Sequence:     id.MustSequence(3),
	}, cfg,
		WithLogger(logger),
		WithAuditRecorder(audit.NewRecorder(s.audits, audit.WithLogger(logger))),
		WithMetrics(metrics.NewWithRegistry(prometheus.NewRegistry())),
		WithReceipts(receipt.NewGenerator(cfg.IssuerName, time.UTC), s.archive),
		WithNotifier(s.notifier),
	)
}

func (s *PaymentServiceSuite) seed(now time.Time) {
	user, err := identitymodels.NewUser(id.NewUserID(), "asha.patil@example.edu", "hash", identitymodels.RoleStudent, now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(s.ctx, user))
	s.student = user

	period := &admissionmodels.AdmissionPeriod{
		ID:             id.NewPeriodID(),
		Name:           "Admissions 2025-26",
		AcademicYear:   "2025-26",
		StartsAt:       now.AddDate(0, -1, 0),
		EndsAt:         now.AddDate(0, 1, 0),
		ApplicationFee: decimal.NewFromInt(5000),
	}
	s.Require().NoError(s.applications.CreatePeriod(s.ctx, period))
	course := &admissionmodels.Course{
		ID:            id.NewCourseID(),
		Code:          "BSC-CS",
		Name:          "B.Sc. Computer Science",
		PeriodID:      period.ID,
		MinPercentage: decimal.NewFromInt(60),
		IsActive:      true,
	}
	s.Require().NoError(s.applications.CreateCourse(s.ctx, course))
	s.Require().NoError(s.applications.SaveProfile(s.ctx, &admissionmodels.StudentProfile{
		ID:                id.NewProfileID(),
		UserID:            user.ID,
		FirstName:         "Asha",
		LastName:          "Patil",
		Category:          admissionmodels.CategorySC,
		TwelfthPercentage: decimal.NewFromInt(82),
		TwelfthBoard:      "CBSE",
		IsComplete:        true,
	}))

	s.app = &admissionmodels.Application{
		ID:                id.NewApplicationID(),
		ApplicationNumber: "APP-2025-1001",
		UserID:            user.ID,
		CourseID:          course.ID,
		PeriodID:          period.ID,
		IsEligible:        true,
		ApplicationFee:    decimal.NewFromInt(2500),
		Status:            admissionmodels.StatusDraft,
		PaymentStatus:     admissionmodels.PaymentPending,
		CreatedAt:         now,
	}
	s.Require().NoError(s.applications.CreateApplication(s.ctx, s.app))
}

func (s *PaymentServiceSuite) expectOrder() {
	s.gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
			s.orders++
			return &gateway.Order{
				ID:       fmt.Sprintf("order_%d", s.orders),
				Entity:   "order",
				Amount:   req.Amount,
				Currency: req.Currency,
				Receipt:  req.Receipt,
				Status:   "created",
			}, nil
		})
}

func (s *PaymentServiceSuite) createOrder() *Order {
	s.expectOrder()
	order, err := s.service.CreateOrder(s.ctx, s.student.ID, s.app.ID, decimal.NewFromInt(2500))
	s.Require().NoError(err)
	return order
}

func (s *PaymentServiceSuite) callback(order *Order, gatewayPaymentID string) models.Callback {
	return models.Callback{
		OrderID:   order.OrderID,
		PaymentID: gatewayPaymentID,
		Signature: s.verifier.Sign(order.OrderID, gatewayPaymentID),
	}
}

func (s *PaymentServiceSuite) expectNotification() *gomock.Call {
	return s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(notify.Result{Sent: true, Attempts: 1})
}

func (s *PaymentServiceSuite) auditActions(entityType, entityID string) []audit.Action {
	entries, err := s.audits.ListByEntity(s.ctx, entityType, entityID)
	s.Require().NoError(err)
	actions := make([]audit.Action, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *PaymentServiceSuite) TestCreateOrder() {
	s.Run("issues a gateway order and records a pending payment", func() {
		order := s.createOrder()

		s.Equal(int64(250000), order.Amount)
		s.Equal("INR", order.Currency)
		s.Equal("rzp_test_key", order.KeyID)
		s.Regexp(`^TXN-[0-9]+$`, order.TransactionID)
		s.LessOrEqual(len(order.ReceiptNumber), id.MaxReceiptLength)
		s.True(strings.HasSuffix(order.ReceiptNumber, "-2025-1001"), order.ReceiptNumber)

		p, err := s.payments.FindByID(s.ctx, order.PaymentID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, p.Status)
		s.Equal(order.OrderID, p.GatewayOrderID)
		s.True(p.Amount.Equal(decimal.NewFromInt(2500)))
		s.Contains(s.auditActions(audit.EntityPayment, p.ID.String()), audit.ActionPaymentOrderCreated)
	})

	s.Run("amount must match the application fee", func() {
		_, err := s.service.CreateOrder(s.ctx, s.student.ID, s.app.ID, decimal.NewFromInt(5000))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non positive amounts are rejected", func() {
		_, err := s.service.CreateOrder(s.ctx, s.student.ID, s.app.ID, decimal.Zero)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejected applications cannot be paid", func() {
		rejected := *s.app
		rejected.ID = id.NewApplicationID()
		rejected.ApplicationNumber = "APP-2025-1002"
		rejected.IsEligible = false
		rejected.EligibilityReason = "12th percentage below course minimum"
		rejected.Status = admissionmodels.StatusRejected
		s.Require().NoError(s.applications.CreateApplication(s.ctx, &rejected))

		_, err := s.service.CreateOrder(s.ctx, s.student.ID, rejected.ID, decimal.NewFromInt(2500))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		rows, err := s.payments.ListByApplication(s.ctx, rejected.ID)
		s.Require().NoError(err)
		s.Empty(rows)
	})

	s.Run("other students cannot pay for the application", func() {
		_, err := s.service.CreateOrder(s.ctx, id.NewUserID(), s.app.ID, decimal.NewFromInt(2500))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *PaymentServiceSuite) TestCreateOrderGatewayFailure() {
	s.gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
		Return(nil, &gateway.APIError{StatusCode: 502, Code: "SERVER_ERROR", Description: "bad gateway"})

	_, err := s.service.CreateOrder(s.ctx, s.student.ID, s.app.ID, decimal.NewFromInt(2500))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))

	rows, err := s.payments.ListByApplication(s.ctx, s.app.ID)
	s.Require().NoError(err)
	s.Empty(rows)
	s.Equal([]audit.Action{audit.ActionPaymentOrderFailed}, s.auditActions(audit.EntityApplication, s.app.ID.String()))
}

func (s *PaymentServiceSuite) TestVerifyPayment() {
	order := s.createOrder()
	var sent notify.Message
	s.expectNotification().Do(func(_ context.Context, msg notify.Message) { sent = msg })

	result, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(order, "pay_1"))
	s.Require().NoError(err)
	s.False(result.Replayed)
	s.Equal(models.StatusSuccess, result.Status)
	s.Equal(order.ReceiptNumber, result.ReceiptNumber)

	p, err := s.payments.FindByID(s.ctx, order.PaymentID)
	s.Require().NoError(err)
	s.Equal(models.StatusSuccess, p.Status)
	s.Equal("pay_1", p.GatewayPaymentID)
	s.Equal("Razorpay", p.PaymentMethod)
	s.NotNil(p.CompletedAt)
	s.JSONEq(fmt.Sprintf(`{"razorpay_order_id":%q,"razorpay_payment_id":"pay_1","razorpay_signature":%q}`,
		order.OrderID, s.verifier.Sign(order.OrderID, "pay_1")), string(p.GatewayResponse))

	app, err := s.applications.FindApplication(s.ctx, s.app.ID)
	s.Require().NoError(err)
	s.Equal(admissionmodels.PaymentSuccess, app.PaymentStatus)

	s.Equal("asha.patil@example.edu", sent.To)
	s.Equal("Payment Successful - Application Fee", sent.Subject)
	s.Contains(sent.HTML, "INR 2500.00")
	s.Require().Len(sent.Attachments, 1)
	s.Equal(receipt.FileName(order.ReceiptNumber), sent.Attachments[0].Filename)

	archived, err := s.archive.Get(s.ctx, receipt.FileName(order.ReceiptNumber))
	s.Require().NoError(err)
	s.Equal(sent.Attachments[0].Content, archived)

	s.Equal(
		[]audit.Action{audit.ActionPaymentOrderCreated, audit.ActionPaymentVerified},
		s.auditActions(audit.EntityPayment, order.PaymentID.String()),
	)

	s.Run("a repeated callback is replayed without side effects", func() {
		again, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(order, "pay_1"))
		s.Require().NoError(err)
		s.True(again.Replayed)
		s.Equal(result.PaymentID, again.PaymentID)
	})

	s.Run("a paid application cannot open another order", func() {
		_, err := s.service.CreateOrder(s.ctx, s.student.ID, s.app.ID, decimal.NewFromInt(2500))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		rows, err := s.payments.ListByApplication(s.ctx, s.app.ID)
		s.Require().NoError(err)
		s.Len(rows, 1)
	})
}

func (s *PaymentServiceSuite) TestVerifyPaymentInvalidSignature() {
	order := s.createOrder()
	cb := s.callback(order, "pay_1")
	cb.Signature = s.verifier.Sign(order.OrderID, "pay_2")

	_, err := s.service.VerifyPayment(s.ctx, s.student.ID, cb)
	s.True(dErrors.HasCode(err, dErrors.CodeSignatureInvalid))

	p, err := s.payments.FindByID(s.ctx, order.PaymentID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, p.Status)
	s.Equal(models.FailureSignatureInvalid, p.FailureReason)
	s.NotNil(p.FailedAt)

	app, err := s.applications.FindApplication(s.ctx, s.app.ID)
	s.Require().NoError(err)
	s.Equal(admissionmodels.PaymentPending, app.PaymentStatus)
	s.Contains(s.auditActions(audit.EntityPayment, p.ID.String()), audit.ActionPaymentVerificationFailed)

	s.Run("replaying the same invalid callback is rejected without a new audit entry", func() {
		before := s.auditActions(audit.EntityPayment, p.ID.String())

		_, err := s.service.VerifyPayment(s.ctx, s.student.ID, cb)
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureInvalid))

		replayed, err := s.payments.FindByID(s.ctx, order.PaymentID)
		s.Require().NoError(err)
		s.Equal(models.StatusFailed, replayed.Status)
		s.Equal(before, s.auditActions(audit.EntityPayment, p.ID.String()))
	})

	s.Run("a later genuine callback for the failed order is still rejected", func() {
		_, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(order, "pay_1"))
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureInvalid))
	})

	s.Run("the student can retry with a new order", func() {
		retry := s.createOrder()
		s.expectNotification()
		result, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(retry, "pay_3"))
		s.Require().NoError(err)
		s.Equal(models.StatusSuccess, result.Status)
	})
}

func (s *PaymentServiceSuite) TestVerifyPaymentValidation() {
	s.Run("missing fields", func() {
		_, err := s.service.VerifyPayment(s.ctx, s.student.ID, models.Callback{OrderID: "order_1"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown order", func() {
		_, err := s.service.VerifyPayment(s.ctx, s.student.ID, models.Callback{OrderID: "order_x", PaymentID: "pay_x", Signature: "00"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("order owned by another student", func() {
		order := s.createOrder()
		_, err := s.service.VerifyPayment(s.ctx, id.NewUserID(), s.callback(order, "pay_1"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		p, err := s.payments.FindByID(s.ctx, order.PaymentID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, p.Status)
	})
}

func (s *PaymentServiceSuite) TestDuplicateCaptureIsRefunded() {
	first := s.createOrder()
	second := s.createOrder()

	s.expectNotification()
	_, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(first, "pay_1"))
	s.Require().NoError(err)

	s.gateway.EXPECT().Refund(gomock.Any(), "pay_2", int64(250000)).
		Return(&gateway.Refund{ID: "rfnd_1", PaymentID: "pay_2", Amount: 250000, Status: "processed"}, nil)

	_, err = s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(second, "pay_2"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	p, err := s.payments.FindByID(s.ctx, second.PaymentID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, p.Status)
	s.Equal(models.FailureDuplicateCapture, p.FailureReason)

	winner, err := s.payments.FindSuccessfulByApplication(s.ctx, s.app.ID)
	s.Require().NoError(err)
	s.Equal(first.PaymentID, winner.ID)
	s.Contains(s.auditActions(audit.EntityPayment, second.PaymentID.String()), audit.ActionPaymentDuplicateCapture)
}

func (s *PaymentServiceSuite) TestConcurrentCallbacksSettleOnce() {
	order := s.createOrder()
	cb := s.callback(order, "pay_1")
	s.expectNotification().Times(1)

	const callers = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		settled  int
		replayed int
		failures []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.VerifyPayment(s.ctx, s.student.ID, cb)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, err)
			case result.Replayed:
				replayed++
			default:
				settled++
			}
		}()
	}
	wg.Wait()

	s.Empty(failures)
	s.Equal(1, settled)
	s.Equal(callers-1, replayed)
	s.Equal(
		[]audit.Action{audit.ActionPaymentOrderCreated, audit.ActionPaymentVerified},
		s.auditActions(audit.EntityPayment, order.PaymentID.String()),
	)
}

func (s *PaymentServiceSuite) TestSideEffectFailuresDoNotAffectPayment() {
	order := s.createOrder()
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
		Return(notify.Result{Attempts: 3, Err: errors.New("smtp: connection refused")})

	result, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(order, "pay_1"))
	s.Require().NoError(err)
	s.Equal(models.StatusSuccess, result.Status)
}

func (s *PaymentServiceSuite) TestAsyncSideEffectsDrainOnClose() {
	s.service = s.newService(Config{AsyncSideEffects: true})
	order := s.createOrder()

	delivered := make(chan struct{})
	s.expectNotification().Do(func(context.Context, notify.Message) { close(delivered) })

	_, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(order, "pay_1"))
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.service.Close(ctx))

	select {
	case <-delivered:
	default:
		s.Fail("notification was not sent before Close returned")
	}
}

func (s *PaymentServiceSuite) TestReceipt() {
	order := s.createOrder()
	s.expectNotification()
	_, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(order, "pay_1"))
	s.Require().NoError(err)

	s.Run("owner receives the same bytes as the archived receipt", func() {
		pdf, name, err := s.service.Receipt(s.ctx, identitymodels.Caller{UserID: s.student.ID, Role: identitymodels.RoleStudent}, order.PaymentID)
		s.Require().NoError(err)
		s.Equal(receipt.FileName(order.ReceiptNumber), name)

		archived, err := s.archive.Get(s.ctx, name)
		s.Require().NoError(err)
		s.Equal(archived, pdf)
	})

	s.Run("profile and course edits after payment do not change the reissued receipt", func() {
		renamed := &admissionmodels.StudentProfile{
			ID:                id.NewProfileID(),
			UserID:            s.student.ID,
			FirstName:         "Renamed",
			LastName:          "Student",
			Category:          admissionmodels.CategorySC,
			TwelfthPercentage: decimal.NewFromInt(82),
			TwelfthBoard:      "CBSE",
			IsComplete:        true,
		}
		s.Require().NoError(s.applications.SaveProfile(s.ctx, renamed))

		pdf, name, err := s.service.Receipt(s.ctx, identitymodels.Caller{UserID: s.student.ID, Role: identitymodels.RoleStudent}, order.PaymentID)
		s.Require().NoError(err)
		archived, err := s.archive.Get(s.ctx, name)
		s.Require().NoError(err)
		s.Equal(archived, pdf)

		settled, err := s.payments.FindByID(s.ctx, order.PaymentID)
		s.Require().NoError(err)
		s.Equal("Asha Patil", settled.StudentName)
		s.Equal("B.Sc. Computer Science", settled.CourseName)
		s.Equal("APP-2025-1001", settled.ApplicationNumber)
	})

	s.Run("admins may fetch any receipt", func() {
		_, _, err := s.service.Receipt(s.ctx, identitymodels.Caller{UserID: id.NewUserID(), Role: identitymodels.RoleAdmin}, order.PaymentID)
		s.NoError(err)
	})

	s.Run("other students see not found", func() {
		_, _, err := s.service.Receipt(s.ctx, identitymodels.Caller{UserID: id.NewUserID(), Role: identitymodels.RoleStudent}, order.PaymentID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("pending payments have no receipt", func() {
		pending := &models.Payment{
			ID:             id.NewPaymentID(),
			TransactionID:  "TXN-PENDING",
			ApplicationID:  s.app.ID,
			UserID:         s.student.ID,
			GatewayOrderID: "order_pending",
			Amount:         decimal.NewFromInt(2500),
			Currency:       "INR",
			Status:         models.StatusPending,
			ReceiptNumber:  "RCP-PENDING",
		}
		s.Require().NoError(s.payments.Create(s.ctx, pending))
		_, _, err := s.service.Receipt(s.ctx, identitymodels.Caller{UserID: s.student.ID, Role: identitymodels.RoleStudent}, pending.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *PaymentServiceSuite) TestRepairApplications() {
	order := s.createOrder()
	s.expectNotification()
	_, err := s.service.VerifyPayment(s.ctx, s.student.ID, s.callback(order, "pay_1"))
	s.Require().NoError(err)

	s.Require().NoError(s.applications.SetPaymentStatus(s.ctx, s.app.ID, admissionmodels.PaymentPending, time.Now()))

	repaired, err := s.service.RepairApplications(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, repaired)

	app, err := s.applications.FindApplication(s.ctx, s.app.ID)
	s.Require().NoError(err)
	s.Equal(admissionmodels.PaymentSuccess, app.PaymentStatus)
	s.Contains(s.auditActions(audit.EntityApplication, s.app.ID.String()), audit.ActionApplicationRepaired)

	repaired, err = s.service.RepairApplications(s.ctx)
	s.Require().NoError(err)
	s.Zero(repaired)
}
