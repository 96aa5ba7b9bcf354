// Package service implements course browsing, student profiles, and
// application creation with eligibility and fee computation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"admissions/internal/admission/models"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/audit"
	"admissions/pkg/platform/sentinel"
	pstrings "admissions/pkg/platform/strings"
	"admissions/pkg/requestcontext"

	dErrors "admissions/pkg/domain-errors"
)

// Store is the persistence port for the admission catalog and applications.
type Store interface {
	CreatePeriod(ctx context.Context, period *models.AdmissionPeriod) error
	CreateCourse(ctx context.Context, course *models.Course) error
	ListActiveCourses(ctx context.Context) ([]models.CourseListing, error)
	FindCourse(ctx context.Context, courseID id.CourseID, periodID id.PeriodID) (*models.CourseListing, error)
	SaveProfile(ctx context.Context, profile *models.StudentProfile) error
	FindProfileByUser(ctx context.Context, userID id.UserID) (*models.StudentProfile, error)
	CreateApplication(ctx context.Context, app *models.Application) error
	FindApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ListApplicationsByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

type Service struct {
	store    Store
	sequence *id.Sequence
	logger   *slog.Logger
	auditor  AuditRecorder
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

func New(store Store, sequence *id.Sequence, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sequence: sequence,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddPeriod provisions an admission period. Used by seeding and admin tooling.
func (s *Service) AddPeriod(ctx context.Context, period *models.AdmissionPeriod) error {
	if strings.TrimSpace(period.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "period name is required")
	}
	if !period.EndsAt.After(period.StartsAt) {
		return dErrors.New(dErrors.CodeValidation, "period must end after it starts")
	}
	if !period.ApplicationFee.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "application fee must be positive")
	}
	if period.ID.IsNil() {
		period.ID = id.NewPeriodID()
	}
	if err := s.store.CreatePeriod(ctx, period); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "admission period already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create admission period")
	}
	return nil
}

// AddCourse provisions a course in an existing period. Eligible boards are
// stored lower-cased since eligibility compares case-insensitively.
func (s *Service) AddCourse(ctx context.Context, course *models.Course) error {
	if strings.TrimSpace(course.Code) == "" || strings.TrimSpace(course.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "course code and name are required")
	}
	if course.ID.IsNil() {
		course.ID = id.NewCourseID()
	}
	course.EligibleBoards = pstrings.Normalize(course.EligibleBoards, true)
	if err := s.store.CreateCourse(ctx, course); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.Newf(dErrors.CodeConflict, "course %s already exists in this period", course.Code)
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "admission period not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create course")
	}
	return nil
}

// ListCourses returns active courses with their admission periods.
func (s *Service) ListCourses(ctx context.Context) ([]models.CourseListing, error) {
	courses, err := s.store.ListActiveCourses(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list courses")
	}
	return courses, nil
}

// ProfileInput is what a student submits about themselves.
type ProfileInput struct {
	FirstName         string
	LastName          string
	Category          string
	TwelfthPercentage decimal.Decimal
	TwelfthBoard      string
}

// SaveProfile creates or replaces the caller's profile. A profile is complete
// once every field needed for eligibility is present.
func (s *Service) SaveProfile(ctx context.Context, userID id.UserID, in ProfileInput) (*models.StudentProfile, error) {
	category, err := models.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	if in.TwelfthPercentage.IsNegative() || in.TwelfthPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return nil, dErrors.New(dErrors.CodeValidation, "12th percentage must be between 0 and 100")
	}

	profile := &models.StudentProfile{
		ID:                id.NewProfileID(),
		UserID:            userID,
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		Category:          category,
		TwelfthPercentage: in.TwelfthPercentage.Round(2),
		TwelfthBoard:      strings.TrimSpace(in.TwelfthBoard),
		UpdatedAt:         requestcontext.Now(ctx),
	}
	profile.IsComplete = profile.FirstName != "" && profile.LastName != "" &&
		profile.TwelfthBoard != "" && profile.TwelfthPercentage.IsPositive()

	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
	}
	return profile, nil
}

// CreateApplication applies the caller to a course. Ineligible applicants get
// a REJECTED application carrying the reason; eligible ones start as DRAFT
// with the category-adjusted fee and a PENDING payment.
func (s *Service) CreateApplication(ctx context.Context, userID id.UserID, courseID id.CourseID, periodID id.PeriodID) (*models.Application, error) {
	profile, err := s.store.FindProfileByUser(ctx, userID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	if profile == nil || !profile.IsComplete {
		return nil, dErrors.New(dErrors.CodeValidation, "please complete your profile before applying")
	}

	listing, err := s.store.FindCourse(ctx, courseID, periodID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "course not found or not available")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load course")
	}
	if !listing.Course.IsActive {
		return nil, dErrors.New(dErrors.CodeNotFound, "course not found or not available")
	}

	now := requestcontext.Now(ctx)
	if !listing.Period.IsOpen(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "admission period is not active")
	}

	eligibility := models.CheckEligibility(profile, listing.Course)
	status := models.StatusDraft
	if !eligibility.Eligible {
		status = models.StatusRejected
	}

	app := &models.Application{
		ID:                id.NewApplicationID(),
		ApplicationNumber: s.sequence.ApplicationNumber(now),
		UserID:            userID,
		CourseID:          courseID,
		PeriodID:          periodID,
		IsEligible:        eligibility.Eligible,
		EligibilityReason: eligibility.Reason,
		ApplicationFee:    models.FeeFor(listing.Period.ApplicationFee, profile.Category),
		Status:            status,
		PaymentStatus:     models.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "you have already applied for this course")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
	}

	s.logger.InfoContext(ctx, "application created",
		"application_id", app.ID,
		"application_number", app.ApplicationNumber,
		"eligible", app.IsEligible,
	)
	s.record(ctx, audit.Entry{
		Actor:      userID.String(),
		Action:     audit.ActionApplicationCreated,
		EntityType: audit.EntityApplication,
		EntityID:   app.ID.String(),
		NewValues: map[string]any{
			"application_number": app.ApplicationNumber,
			"course_id":          courseID.String(),
			"is_eligible":        app.IsEligible,
			"application_fee":    app.ApplicationFee.StringFixed(2),
		},
	})
	return app, nil
}

// ListApplications returns the caller's applications, oldest first.
func (s *Service) ListApplications(ctx context.Context, userID id.UserID) ([]*models.Application, error) {
	apps, err := s.store.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

// GetApplication returns one application owned by userID. Applications owned
// by someone else are reported as not found.
func (s *Service) GetApplication(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.store.FindApplication(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	if app.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return app, nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.auditor != nil {
		s.auditor.Record(ctx, entry)
	}
}
