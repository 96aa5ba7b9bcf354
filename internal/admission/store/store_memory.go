package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"admissions/internal/admission/models"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/sentinel"
)

// InMemoryStore keeps periods, courses, profiles, and applications in process.
// Returned values are copies so callers cannot mutate stored state.
type InMemoryStore struct {
	mu           sync.RWMutex
	periods      map[id.PeriodID]*models.AdmissionPeriod
	courses      map[id.CourseID]*models.Course
	profiles     map[id.UserID]*models.StudentProfile
	applications map[id.ApplicationID]*models.Application
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		periods:      make(map[id.PeriodID]*models.AdmissionPeriod),
		courses:      make(map[id.CourseID]*models.Course),
		profiles:     make(map[id.UserID]*models.StudentProfile),
		applications: make(map[id.ApplicationID]*models.Application),
	}
}

func (s *InMemoryStore) CreatePeriod(_ context.Context, period *models.AdmissionPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.periods[period.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *period
	s.periods[period.ID] = &cp
	return nil
}

func (s *InMemoryStore) CreateCourse(_ context.Context, course *models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.periods[course.PeriodID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, c := range s.courses {
		if c.Code == course.Code && c.PeriodID == course.PeriodID {
			return sentinel.ErrConflict
		}
	}
	cp := copyCourse(course)
	s.courses[course.ID] = cp
	return nil
}

func (s *InMemoryStore) ListActiveCourses(_ context.Context) ([]models.CourseListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CourseListing
	for _, c := range s.courses {
		if !c.IsActive {
			continue
		}
		period := *s.periods[c.PeriodID]
		out = append(out, models.CourseListing{Course: copyCourse(c), Period: &period})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Course.Code < out[j].Course.Code })
	return out, nil
}

func (s *InMemoryStore) FindCourse(_ context.Context, courseID id.CourseID, periodID id.PeriodID) (*models.CourseListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[courseID]
	if !ok || c.PeriodID != periodID {
		return nil, sentinel.ErrNotFound
	}
	period := *s.periods[c.PeriodID]
	return &models.CourseListing{Course: copyCourse(c), Period: &period}, nil
}

func (s *InMemoryStore) SaveProfile(_ context.Context, profile *models.StudentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[profile.UserID]; ok {
		profile.ID = existing.ID
	}
	cp := *profile
	s.profiles[profile.UserID] = &cp
	return nil
}

func (s *InMemoryStore) FindProfileByUser(_ context.Context, userID id.UserID) (*models.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// CreateApplication inserts app unless a live application exists for the
// same user, course, and period.
func (s *InMemoryStore) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.IsLive() {
		for _, existing := range s.applications {
			if existing.UserID == app.UserID && existing.CourseID == app.CourseID &&
				existing.PeriodID == app.PeriodID && existing.IsLive() {
				return sentinel.ErrConflict
			}
		}
	}
	cp := *app
	s.applications[app.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindApplication(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

// FindApplicationForUpdate has no row lock in memory; callers serialize
// through the transaction runner.
func (s *InMemoryStore) FindApplicationForUpdate(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.FindApplication(ctx, appID)
}

func (s *InMemoryStore) ListApplicationsByUser(_ context.Context, userID id.UserID) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.applications {
		if app.UserID == userID {
			cp := *app
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) FindApplicationDetails(_ context.Context, appID id.ApplicationID) (*models.ApplicationDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *app
	details := &models.ApplicationDetails{Application: &cp}
	if c, ok := s.courses[app.CourseID]; ok {
		details.CourseName = c.Name
		details.CourseCode = c.Code
	}
	if p, ok := s.profiles[app.UserID]; ok {
		details.StudentName = p.FullName()
	}
	return details, nil
}

// SetPaymentStatus records the fee outcome on the application.
func (s *InMemoryStore) SetPaymentStatus(_ context.Context, appID id.ApplicationID, status models.PaymentStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[appID]
	if !ok {
		return sentinel.ErrNotFound
	}
	app.PaymentStatus = status
	app.UpdatedAt = at
	return nil
}

func copyCourse(c *models.Course) *models.Course {
	cp := *c
	cp.EligibleBoards = append([]string(nil), c.EligibleBoards...)
	return &cp
}
