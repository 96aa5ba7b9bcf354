package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"admissions/internal/identity/models"
	"admissions/internal/platform/metrics"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	"admissions/pkg/platform/sentinel"
	"admissions/pkg/requestcontext"

	dErrors "admissions/pkg/domain-errors"
)

const minPasswordLength = 8

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role models.Role, expiresIn time.Duration) (string, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service registers accounts and exchanges credentials for access tokens.
type Service struct {
	users      UserStore
	tokens     TokenIssuer
	tokenTTL   time.Duration
	bcryptCost int
	logger     *slog.Logger
	auditor    AuditRecorder
	metrics    *metrics.Metrics
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

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(users UserStore, tokens TokenIssuer, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		users:      users,
		tokens:     tokens,
		tokenTTL:   tokenTTL,
		bcryptCost: 12,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session is the result of a successful register or login.
type Session struct {
	User        *models.User
	AccessToken string
	ExpiresIn   time.Duration
}

// Register creates a STUDENT account. Admin accounts are provisioned with CreateAdmin.
func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.create(ctx, email, password, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// CreateAdmin provisions an administrator without issuing a token.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (*models.User, error) {
	return s.create(ctx, email, password, models.RoleAdmin)
}

func (s *Service) create(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	if len(password) < minPasswordLength {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "password cannot be hashed")
	}

	user, err := models.NewUser(id.NewUserID(), email, string(hash), role, requestcontext.Now(ctx))
	if err != nil {
		if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeInvariantViolation {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.metrics.IncrementUsersCreated()
	s.record(ctx, audit.Entry{
		Actor:      user.ID.String(),
		Action:     audit.ActionUserRegistered,
		EntityType: audit.EntityUser,
		EntityID:   user.ID.String(),
		NewValues:  map[string]any{"email": user.Email, "role": string(user.Role)},
	})
	return user, nil
}

// Login verifies credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.record(ctx, audit.Entry{Action: audit.ActionLoginFailed, EntityType: audit.EntityUser, EntityID: normalizeEmail(email)})
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.record(ctx, audit.Entry{Actor: user.ID.String(), Action: audit.ActionLoginFailed, EntityType: audit.EntityUser, EntityID: user.ID.String()})
		return nil, invalid
	}

	s.record(ctx, audit.Entry{Actor: user.ID.String(), Action: audit.ActionUserLoggedIn, EntityType: audit.EntityUser, EntityID: user.ID.String()})
	return s.issue(ctx, user)
}

func (s *Service) issue(ctx context.Context, user *models.User) (*Session, error) {
	token, err := s.tokens.GenerateAccessToken(user.ID, user.Role, s.tokenTTL)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sign access token", "error", err, "user_id", user.ID)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	return &Session{User: user, AccessToken: token, ExpiresIn: s.tokenTTL}, nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.auditor != nil {
		s.auditor.Record(ctx, entry)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
