package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"admissions/internal/admission/models"
	"admissions/internal/admission/service"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/httputil"
	request "admissions/pkg/platform/middleware/request"
	"admissions/pkg/requestcontext"
)

// Service defines the admission operations exposed over HTTP.
type Service interface {
	ListCourses(ctx context.Context) ([]models.CourseListing, error)
	SaveProfile(ctx context.Context, userID id.UserID, in service.ProfileInput) (*models.StudentProfile, error)
	CreateApplication(ctx context.Context, userID id.UserID, courseID id.CourseID, periodID id.PeriodID) (*models.Application, error)
	ListApplications(ctx context.Context, userID id.UserID) ([]*models.Application, error)
	GetApplication(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error)
}

// Handler serves course browsing and student application routes. Routes added
// by Register expect an authenticated caller in the request context.
type Handler struct {
	admission Service
	logger    *slog.Logger
}

func New(admission Service, logger *slog.Logger) *Handler {
	return &Handler{admission: admission, logger: logger}
}

// RegisterPublic registers course browsing, which needs no caller.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/courses", h.handleListCourses)
}

// Register registers the student routes.
func (h *Handler) Register(r chi.Router) {
	r.Put("/profile", h.handleSaveProfile)
	r.Post("/applications", h.handleCreateApplication)
	r.Get("/applications", h.handleListApplications)
	r.Get("/applications/{applicationID}", h.handleGetApplication)
}

type courseResponse struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Department     string    `json:"department"`
	MinPercentage  string    `json:"min_percentage"`
	EligibleBoards []string  `json:"eligible_boards"`
	PeriodID       string    `json:"admission_period_id"`
	PeriodName     string    `json:"admission_period"`
	AcademicYear   string    `json:"academic_year"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	ApplicationFee string    `json:"application_fee"`
}

type profileRequest struct {
	FirstName         string          `json:"first_name"`
	LastName          string          `json:"last_name"`
	Category          string          `json:"category"`
	TwelfthPercentage decimal.Decimal `json:"twelfth_percentage"`
	TwelfthBoard      string          `json:"twelfth_board"`
}

type profileResponse struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	IsComplete bool   `json:"is_complete"`
}

type createApplicationRequest struct {
	CourseID string `json:"course_id"`
	PeriodID string `json:"admission_period_id"`
}

type applicationResponse struct {
	ID                string     `json:"id"`
	ApplicationNumber string     `json:"application_number"`
	CourseID          string     `json:"course_id"`
	PeriodID          string     `json:"admission_period_id"`
	IsEligible        bool       `json:"is_eligible"`
	EligibilityReason string     `json:"eligibility_reason,omitempty"`
	ApplicationFee    string     `json:"application_fee"`
	Status            string     `json:"status"`
	PaymentStatus     string     `json:"payment_status"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courses, err := h.admission.ListCourses(ctx)
	if err != nil {
		h.logFailure(ctx, "list courses failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]courseResponse, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseResponse{
			ID:             c.Course.ID.String(),
			Code:           c.Course.Code,
			Name:           c.Course.Name,
			Department:     c.Course.Department,
			MinPercentage:  c.Course.MinPercentage.StringFixed(2),
			EligibleBoards: c.Course.EligibleBoards,
			PeriodID:       c.Period.ID.String(),
			PeriodName:     c.Period.Name,
			AcademicYear:   c.Period.AcademicYear,
			StartsAt:       c.Period.StartsAt,
			EndsAt:         c.Period.EndsAt,
			ApplicationFee: c.Period.ApplicationFee.StringFixed(2),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"courses": out})
}

func (h *Handler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req profileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.admission.SaveProfile(ctx, requestcontext.UserID(ctx), service.ProfileInput{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Category:          req.Category,
		TwelfthPercentage: req.TwelfthPercentage,
		TwelfthBoard:      req.TwelfthBoard,
	})
	if err != nil {
		h.logFailure(ctx, "save profile failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profileResponse{
		ID:         profile.ID.String(),
		Category:   string(profile.Category),
		IsComplete: profile.IsComplete,
	})
}

func (h *Handler) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createApplicationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	courseID, err := id.ParseCourseID(req.CourseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	periodID, err := id.ParsePeriodID(req.PeriodID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.admission.CreateApplication(ctx, requestcontext.UserID(ctx), courseID, periodID)
	if err != nil {
		h.logFailure(ctx, "create application failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) handleListApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.admission.ListApplications(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "list applications failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]applicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toApplicationResponse(app))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"applications": out})
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.admission.GetApplication(ctx, requestcontext.UserID(ctx), appID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", request.GetRequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"error", err,
	)
}

func toApplicationResponse(app *models.Application) applicationResponse {
	return applicationResponse{
		ID:                app.ID.String(),
		ApplicationNumber: app.ApplicationNumber,
		CourseID:          app.CourseID.String(),
		PeriodID:          app.PeriodID.String(),
		IsEligible:        app.IsEligible,
		EligibilityReason: app.EligibilityReason,
		ApplicationFee:    app.ApplicationFee.StringFixed(2),
		Status:            string(app.Status),
		PaymentStatus:     string(app.PaymentStatus),
		SubmittedAt:       app.SubmittedAt,
		CreatedAt:         app.CreatedAt,
	}
}
