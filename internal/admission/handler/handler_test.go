package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions/internal/admission/models"
	"admissions/internal/admission/service"
	id "admissions/pkg/domain"
	"admissions/pkg/testutil"

	dErrors "admissions/pkg/domain-errors"
)

type stubService struct {
	app        *models.Application
	err        error
	gotUser    id.UserID
	gotCourse  id.CourseID
	gotProfile service.ProfileInput
}

func (s *stubService) ListCourses(context.Context) ([]models.CourseListing, error) {
	period := &models.AdmissionPeriod{ID: id.NewPeriodID(), Name: "2025-26", ApplicationFee: decimal.NewFromInt(5000)}
	course := &models.Course{ID: id.NewCourseID(), Code: "BSC-CS", MinPercentage: decimal.NewFromInt(60), PeriodID: period.ID}
	return []models.CourseListing{{Course: course, Period: period}}, s.err
}

func (s *stubService) SaveProfile(_ context.Context, userID id.UserID, in service.ProfileInput) (*models.StudentProfile, error) {
	s.gotUser = userID
	s.gotProfile = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.StudentProfile{ID: id.NewProfileID(), UserID: userID, Category: models.CategorySC, IsComplete: true}, nil
}

func (s *stubService) CreateApplication(_ context.Context, userID id.UserID, courseID id.CourseID, _ id.PeriodID) (*models.Application, error) {
	s.gotUser = userID
	s.gotCourse = courseID
	return s.app, s.err
}

func (s *stubService) ListApplications(context.Context, id.UserID) ([]*models.Application, error) {
	return []*models.Application{s.app}, s.err
}

func (s *stubService) GetApplication(context.Context, id.UserID, id.ApplicationID) (*models.Application, error) {
	return s.app, s.err
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.RegisterPublic(r)
	h.Register(r)
	return r
}

func sampleApplication() *models.Application {
	return &models.Application{
		ID:                id.NewApplicationID(),
		ApplicationNumber: "APP-2025-ABC123",
		CourseID:          id.NewCourseID(),
		PeriodID:          id.NewPeriodID(),
		IsEligible:        true,
		ApplicationFee:    decimal.NewFromInt(2500),
		Status:            models.StatusDraft,
		PaymentStatus:     models.PaymentPending,
		CreatedAt:         time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestHandleCreateApplication(t *testing.T) {
	userID := id.NewUserID()

	testutil.Given(t, "a valid request from an authenticated student", func(t *testing.T) {
		svc := &stubService{app: sampleApplication()}
		courseID := id.NewCourseID()
		req := testutil.NewJSONRequest(t, http.MethodPost, "/applications", map[string]string{
			"course_id":           courseID.String(),
			"admission_period_id": id.NewPeriodID().String(),
		})
		rr := testutil.DoRequest(newRouter(svc), testutil.WithUser(req, userID, "STUDENT"))

		testutil.Then(t, "the application is created for the caller", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusCreated)
			resp := testutil.UnmarshalResponse[applicationResponse](t, rr)
			assert.Equal(t, "2500.00", resp.ApplicationFee)
			assert.Equal(t, "PENDING", resp.PaymentStatus)
			assert.Equal(t, userID, svc.gotUser)
			assert.Equal(t, courseID, svc.gotCourse)
		})
	})

	testutil.Given(t, "a malformed course id", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/applications", map[string]string{
			"course_id":           "not-a-uuid",
			"admission_period_id": id.NewPeriodID().String(),
		})
		rr := testutil.DoRequest(newRouter(&stubService{}), testutil.WithUser(req, userID, "STUDENT"))

		testutil.Then(t, "the request is rejected", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
		})
	})

	testutil.Given(t, "a duplicate application", func(t *testing.T) {
		svc := &stubService{err: dErrors.New(dErrors.CodeConflict, "you have already applied for this course")}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/applications", map[string]string{
			"course_id":           id.NewCourseID().String(),
			"admission_period_id": id.NewPeriodID().String(),
		})
		rr := testutil.DoRequest(newRouter(svc), testutil.WithUser(req, userID, "STUDENT"))

		testutil.Then(t, "a conflict is returned", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeConflict))
		})
	})
}

func TestHandleSaveProfile(t *testing.T) {
	userID := id.NewUserID()
	svc := &stubService{}
	req := testutil.NewRequestWithBody(t, http.MethodPut, "/profile",
		`{"first_name":"Asha","last_name":"Patil","category":"sc","twelfth_percentage":"82.5","twelfth_board":"CBSE"}`)
	rr := testutil.DoRequest(newRouter(svc), testutil.WithUser(req, userID, "STUDENT"))

	testutil.AssertStatusOK(t, rr)
	require.Equal(t, userID, svc.gotUser)
	assert.True(t, svc.gotProfile.TwelfthPercentage.Equal(decimal.RequireFromString("82.5")))
	resp := testutil.UnmarshalResponse[profileResponse](t, rr)
	assert.True(t, resp.IsComplete)
}

func TestHandleListCourses(t *testing.T) {
	rr := testutil.DoRequest(newRouter(&stubService{}), testutil.NewRequest(t, http.MethodGet, "/courses"))

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[struct {
		Courses []courseResponse `json:"courses"`
	}](t, rr)
	require.Len(t, resp.Courses, 1)
	assert.Equal(t, "5000.00", resp.Courses[0].ApplicationFee)
	assert.Equal(t, "60.00", resp.Courses[0].MinPercentage)
}

func TestHandleGetApplication(t *testing.T) {
	testutil.Given(t, "an application owned by someone else", func(t *testing.T) {
		svc := &stubService{err: dErrors.New(dErrors.CodeNotFound, "application not found")}
		req := testutil.NewRequest(t, http.MethodGet, "/applications/"+id.NewApplicationID().String())
		rr := testutil.DoRequest(newRouter(svc), testutil.WithUser(req, id.NewUserID(), "STUDENT"))

		testutil.Then(t, "it is reported as not found", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
		})
	})
}
