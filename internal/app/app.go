// Package app builds the object graph shared by the server and admissionsctl.
// Every backing service is optional: without a DSN the stores live in memory,
// without Redis locks are in-process, without brokers the outbox is not relayed.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	admissionservice "admissions/internal/admission/service"
	admissionstore "admissions/internal/admission/store"
	identityservice "admissions/internal/identity/service"
	identitystore "admissions/internal/identity/store"
	"admissions/internal/identity/token"
	"admissions/internal/notify"
	"admissions/internal/payment/gateway"
	"admissions/internal/payment/lock"
	paymentmetrics "admissions/internal/payment/metrics"
	paymentservice "admissions/internal/payment/service"
	"admissions/internal/payment/signature"
	paymentstore "admissions/internal/payment/store"
	"admissions/internal/platform/config"
	"admissions/internal/platform/kafka"
	"admissions/internal/platform/metrics"
	"admissions/internal/platform/outbox"
	"admissions/internal/platform/postgres"
	redisclient "admissions/internal/platform/redis"
	"admissions/internal/receipt"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	auditmemory "admissions/pkg/platform/audit/store/memory"
	auditpostgres "admissions/pkg/platform/audit/store/postgres"
	"admissions/pkg/platform/tx"
)

// SimulatorPrefix is where the server mounts the gateway simulator.
const SimulatorPrefix = "/gateway-sim"

type userStore interface {
	identityservice.UserStore
	paymentservice.UserDirectory
}

type admissionStore interface {
	admissionservice.Store
	paymentservice.ApplicationStore
}

// App holds the wired services and the resources Close releases.
type App struct {
	Config   config.Server
	Logger   *slog.Logger
	Registry *prometheus.Registry

	DB       *sql.DB
	Redis    *redisclient.Client
	Producer *kafka.Producer
	Relay    *outbox.Relay

	Audit     *audit.Recorder
	Tokens    *token.JWTService
	Identity  *identityservice.Service
	Admission *admissionservice.Service
	Payments  *paymentservice.Service
	Simulator *gateway.Simulator
	HTTP      *metrics.Metrics
}

// Build wires the application from cfg.
func Build(ctx context.Context, cfg config.Server, logger *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.HTTP = metrics.NewWithRegistry(a.Registry)

	var (
		users        userStore
		applications admissionStore
		payments     paymentservice.PaymentStore
		auditStore   audit.Store
		runner       paymentservice.TxRunner
	)
	if cfg.Postgres.DSN != "" {
		a.DB, err = postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, a.DB); err != nil {
			return nil, err
		}
		users = identitystore.NewPostgresUserStore(a.DB)
		applications = admissionstore.NewPostgresStore(a.DB)
		payments = paymentstore.NewPostgresStore(a.DB)
		auditStore = auditpostgres.New(a.DB)
		runner = postgres.NewTxRunner(a.DB, cfg.Postgres.TxTimeout)
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		users = identitystore.NewInMemoryUserStore()
		applications = admissionstore.NewInMemoryStore()
		payments = paymentstore.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
		runner = tx.NewLocalRunner()
		logger.WarnContext(ctx, "no postgres DSN configured, using in-memory stores")
	}

	a.Audit = audit.NewRecorder(auditStore,
		audit.WithLogger(logger),
		audit.WithRegisterer(a.Registry),
	)

	if len(cfg.Kafka.Brokers) > 0 && a.DB != nil {
		a.Producer, err = kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		if err := a.Producer.EnsureTopic(ctx, cfg.Kafka.AuditTopic, 3); err != nil {
			return nil, err
		}
		a.Relay = outbox.NewRelay(a.DB, a.Producer, cfg.Kafka.AuditTopic, cfg.Kafka.BatchSize, cfg.Kafka.PollInterval, logger)
	}

	var locker lock.Locker = lock.NewLocal(0)
	a.Redis, err = redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if a.Redis != nil {
		locker = lock.NewRedis(a.Redis.Client, cfg.Payment.LockTTL, cfg.Payment.VerifyTimeout)
		logger.InfoContext(ctx, "using redis application locks")
	}

	sequence, err := id.NewSequence(cfg.Payment.SequenceNode)
	if err != nil {
		return nil, err
	}

	a.Tokens = token.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)
	a.Identity = identityservice.New(users, a.Tokens, cfg.Auth.TokenTTL,
		identityservice.WithLogger(logger),
		identityservice.WithAuditRecorder(a.Audit),
		identityservice.WithMetrics(a.HTTP),
		identityservice.WithBcryptCost(cfg.Auth.BcryptCost),
	)
	a.Admission = admissionservice.New(applications, sequence,
		admissionservice.WithLogger(logger),
		admissionservice.WithAuditRecorder(a.Audit),
	)

	gatewayCfg := cfg.Gateway
	if gatewayCfg.Simulate {
		a.Simulator = gateway.NewSimulator(gatewayCfg.KeyID, gatewayCfg.KeySecret)
		gatewayCfg.BaseURL = simulatorURL(cfg.Addr)
		logger.WarnContext(ctx, "payment gateway simulator enabled", "base_url", gatewayCfg.BaseURL)
	}

	archive, err := newArchive(ctx, cfg.Receipt)
	if err != nil {
		return nil, err
	}
	notifier, err := newNotifier(cfg.SMTP, logger)
	if err != nil {
		return nil, err
	}

	a.Payments = paymentservice.New(paymentservice.Deps{
		Payments:     payments,
		Applications: applications,
		Users:        users,
		Tx:           runner,
		Locker:       locker,
		Gateway:      gateway.NewClient(gatewayCfg),
		Verifier:     signature.NewVerifier(gatewayCfg.KeySecret),
		Sequence:     sequence,
	}, paymentservice.Config{
		Currency:          cfg.Payment.Currency,
		MethodLabel:       cfg.Payment.MethodLabel,
		VerifyTimeout:     cfg.Payment.VerifyTimeout,
		AsyncSideEffects:  cfg.Payment.AsyncSideEffects,
		SideEffectTimeout: cfg.Payment.SideEffectTimeout,
		DashboardURL:      cfg.SMTP.DashboardURL,
		IssuerName:        cfg.Receipt.IssuerName,
	},
		paymentservice.WithLogger(logger),
		paymentservice.WithAuditRecorder(a.Audit),
		paymentservice.WithMetrics(paymentmetrics.NewWithRegistry(a.Registry)),
		paymentservice.WithReceipts(receipt.NewGenerator(cfg.Receipt.IssuerName, istLocation()), archive),
		paymentservice.WithNotifier(notifier),
	)
	return a, nil
}

func newArchive(ctx context.Context, cfg config.ReceiptConfig) (receipt.Archive, error) {
	if cfg.Bucket == "" {
		return receipt.NewMemoryArchive(), nil
	}
	return receipt.NewS3Archive(ctx, cfg)
}

func newNotifier(cfg config.SMTPConfig, logger *slog.Logger) (*notify.Notifier, error) {
	var transport notify.Transport = notify.NewLogTransport(logger)
	if cfg.Host != "" {
		smtp, err := notify.NewSMTPTransport(cfg)
		if err != nil {
			return nil, err
		}
		transport = smtp
	}
	return notify.New(transport,
		notify.WithLogger(logger),
		notify.WithMaxRetries(cfg.MaxRetries),
	), nil
}

func simulatorURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + SimulatorPrefix
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + SimulatorPrefix
}

// istLocation is used for dates printed on receipts.
func istLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*60*60+30*60)
}

// Close drains payment side effects, then releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Payments != nil {
		if err := a.Payments.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain payment side effects: %w", err))
		}
	}
	if a.Producer != nil {
		a.Producer.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Health checks the configured backing services.
func (a *App) Health(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
