// Package service implements the payment lifecycle: issuing gateway orders,
// reconciling signed callbacks into one atomic Payment and Application
// transition, and the best-effort side effects that follow.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	admissionmodels "admissions/internal/admission/models"
	identitymodels "admissions/internal/identity/models"
	"admissions/internal/notify"
	"admissions/internal/payment/gateway"
	"admissions/internal/payment/lock"
	"admissions/internal/payment/metrics"
	"admissions/internal/payment/models"
	"admissions/internal/receipt"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
)

// Gateway is the subset of the gateway API the payment core calls.
type Gateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error)
	Refund(ctx context.Context, paymentID string, amount int64) (*gateway.Refund, error)
	KeyID() string
}

// Notifier delivers email and reports the outcome instead of failing.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) notify.Result
}

type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	FindByIDForUpdate(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	FindSuccessfulByApplication(ctx context.Context, appID id.ApplicationID) (*models.Payment, error)
	MarkSucceeded(ctx context.Context, paymentID id.PaymentID, settlement models.Settlement) error
	MarkFailed(ctx context.Context, paymentID id.PaymentID, rejection models.Rejection) error
	ListSettledApplications(ctx context.Context) ([]id.ApplicationID, error)
}

// ApplicationStore is the part of the admission store the payment core
// reads and updates.
type ApplicationStore interface {
	FindApplication(ctx context.Context, appID id.ApplicationID) (*admissionmodels.Application, error)
	FindApplicationForUpdate(ctx context.Context, appID id.ApplicationID) (*admissionmodels.Application, error)
	FindApplicationDetails(ctx context.Context, appID id.ApplicationID) (*admissionmodels.ApplicationDetails, error)
	SetPaymentStatus(ctx context.Context, appID id.ApplicationID, status admissionmodels.PaymentStatus, at time.Time) error
}

type UserDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
}

// TxRunner runs fn in one store transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ReceiptRenderer interface {
	Generate(d receipt.Data) ([]byte, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Config carries the tunables of the payment core.
type Config struct {
	Currency          string
	MethodLabel       string
	VerifyTimeout     time.Duration
	AsyncSideEffects  bool
	SideEffectTimeout time.Duration
	DashboardURL      string
	IssuerName        string
}

func (c *Config) applyDefaults() {
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if c.MethodLabel == "" {
		c.MethodLabel = "Razorpay"
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 15 * time.Second
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = time.Minute
	}
}

// Service owns the payment lifecycle.
type Service struct {
	payments     PaymentStore
	applications ApplicationStore
	users        UserDirectory
	tx           TxRunner
	locker       lock.Locker
	gateway      Gateway
	verifier     SignatureVerifier
	sequence     *id.Sequence
	cfg          Config

	receipts ReceiptRenderer
	archive  receipt.Archive
	notifier Notifier
	auditor  AuditRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	// inflight tracks detached side effects so Close can drain them.
	inflight sync.WaitGroup
}

// Deps groups the required collaborators.
type Deps struct {
	Payments     PaymentStore
	Applications ApplicationStore
	Users        UserDirectory
	Tx           TxRunner
	Locker       lock.Locker
	Gateway      Gateway
	Verifier     SignatureVerifier
	Sequence     *id.Sequence
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		s.auditor = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithReceipts(renderer ReceiptRenderer, archive receipt.Archive) Option {
	return func(s *Service) {
		s.receipts = renderer
		s.archive = archive
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func New(deps Deps, cfg Config, opts ...Option) *Service {
	cfg.applyDefaults()
	s := &Service{
		payments:     deps.Payments,
		applications: deps.Applications,
		users:        deps.Users,
		tx:           deps.Tx,
		locker:       deps.Locker,
		gateway:      deps.Gateway,
		verifier:     deps.Verifier,
		sequence:     deps.Sequence,
		cfg:          cfg,
		logger:       slog.Default(),
		tracer:       otel.Tracer("admissions/payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewLocal(0)
	}
	return s
}

// Close waits for detached side effects to finish or ctx to end.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.auditor != nil {
		s.auditor.Record(ctx, entry)
	}
}
