package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"admissions/internal/admission/models"
	"admissions/internal/platform/postgres"
	id "admissions/pkg/domain"
	"admissions/pkg/platform/sentinel"
	txcontext "admissions/pkg/platform/tx"
)

// PostgresStore persists admission data. Every method joins the transaction
// carried by the context, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePeriod(ctx context.Context, p *models.AdmissionPeriod) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO admission_periods (id, name, academic_year, starts_at, ends_at, application_fee)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(p.ID), p.Name, p.AcademicYear, p.StartsAt, p.EndsAt, p.ApplicationFee)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert admission period: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCourse(ctx context.Context, c *models.Course) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO courses (id, code, name, department, period_id, min_percentage, eligible_boards, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(c.ID), c.Code, c.Name, c.Department, uuid.UUID(c.PeriodID), c.MinPercentage,
		pq.Array(c.EligibleBoards), c.IsActive)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

const courseListingColumns = `
	c.id, c.code, c.name, c.department, c.period_id, c.min_percentage, c.eligible_boards, c.is_active,
	p.id, p.name, p.academic_year, p.starts_at, p.ends_at, p.application_fee`

func scanCourseListing(row interface{ Scan(...any) error }) (*models.CourseListing, error) {
	var (
		course             models.Course
		period             models.AdmissionPeriod
		courseID, periodID uuid.UUID
		coursePeriodID     uuid.UUID
		boards             []string
	)
	if err := row.Scan(
		&courseID, &course.Code, &course.Name, &course.Department, &coursePeriodID,
		&course.MinPercentage, pq.Array(&boards), &course.IsActive,
		&periodID, &period.Name, &period.AcademicYear, &period.StartsAt, &period.EndsAt, &period.ApplicationFee,
	); err != nil {
		return nil, err
	}
	course.ID = id.CourseID(courseID)
	course.PeriodID = id.PeriodID(coursePeriodID)
	course.EligibleBoards = boards
	period.ID = id.PeriodID(periodID)
	return &models.CourseListing{Course: &course, Period: &period}, nil
}

func (s *PostgresStore) ListActiveCourses(ctx context.Context) ([]models.CourseListing, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+courseListingColumns+`
		FROM courses c JOIN admission_periods p ON p.id = c.period_id
		WHERE c.is_active
		ORDER BY c.code
	`)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var out []models.CourseListing
	for rows.Next() {
		listing, err := scanCourseListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindCourse(ctx context.Context, courseID id.CourseID, periodID id.PeriodID) (*models.CourseListing, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+courseListingColumns+`
		FROM courses c JOIN admission_periods p ON p.id = c.period_id
		WHERE c.id = $1 AND c.period_id = $2
	`, uuid.UUID(courseID), uuid.UUID(periodID))
	listing, err := scanCourseListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return listing, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p *models.StudentProfile) error {
	var profileID uuid.UUID
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO student_profiles (
			id, user_id, first_name, last_name, category, twelfth_percentage, twelfth_board, is_complete, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			category = EXCLUDED.category,
			twelfth_percentage = EXCLUDED.twelfth_percentage,
			twelfth_board = EXCLUDED.twelfth_board,
			is_complete = EXCLUDED.is_complete,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, uuid.UUID(p.ID), uuid.UUID(p.UserID), p.FirstName, p.LastName, string(p.Category),
		p.TwelfthPercentage, p.TwelfthBoard, p.IsComplete, p.UpdatedAt,
	).Scan(&profileID)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	p.ID = id.ProfileID(profileID)
	return nil
}

func (s *PostgresStore) FindProfileByUser(ctx context.Context, userID id.UserID) (*models.StudentProfile, error) {
	var (
		p                  models.StudentProfile
		profileID, userUID uuid.UUID
		category           string
	)
	err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, user_id, first_name, last_name, category, twelfth_percentage, twelfth_board, is_complete, updated_at
		FROM student_profiles WHERE user_id = $1
	`, uuid.UUID(userID)).Scan(
		&profileID, &userUID, &p.FirstName, &p.LastName, &category,
		&p.TwelfthPercentage, &p.TwelfthBoard, &p.IsComplete, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	p.ID = id.ProfileID(profileID)
	p.UserID = id.UserID(userUID)
	p.Category = models.Category(category)
	return &p, nil
}

func (s *PostgresStore) CreateApplication(ctx context.Context, a *models.Application) error {
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO applications (
			id, application_number, user_id, course_id, period_id, is_eligible, eligibility_reason,
			application_fee, status, payment_status, submitted_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.UUID(a.ID), a.ApplicationNumber, uuid.UUID(a.UserID), uuid.UUID(a.CourseID), uuid.UUID(a.PeriodID),
		a.IsEligible, a.EligibilityReason, a.ApplicationFee, string(a.Status), string(a.PaymentStatus),
		a.SubmittedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "applications_one_live_per_course") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

const applicationColumns = `
	id, application_number, user_id, course_id, period_id, is_eligible, eligibility_reason,
	application_fee, status, payment_status, submitted_at, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (*models.Application, error) {
	var (
		a                                 models.Application
		appID, userID, courseID, periodID uuid.UUID
		status, paymentStatus             string
		submittedAt                       sql.NullTime
	)
	if err := row.Scan(
		&appID, &a.ApplicationNumber, &userID, &courseID, &periodID, &a.IsEligible, &a.EligibilityReason,
		&a.ApplicationFee, &status, &paymentStatus, &submittedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.ID = id.ApplicationID(appID)
	a.UserID = id.UserID(userID)
	a.CourseID = id.CourseID(courseID)
	a.PeriodID = id.PeriodID(periodID)
	a.Status = models.Status(status)
	a.PaymentStatus = models.PaymentStatus(paymentStatus)
	if submittedAt.Valid {
		t := submittedAt.Time
		a.SubmittedAt = &t
	}
	return &a, nil
}

func (s *PostgresStore) findApplication(ctx context.Context, appID id.ApplicationID, suffix string) (*models.Application, error) {
	row := txcontext.Execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`+suffix, uuid.UUID(appID))
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) FindApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.findApplication(ctx, appID, "")
}

// FindApplicationForUpdate row-locks the application until the surrounding
// transaction ends.
func (s *PostgresStore) FindApplicationForUpdate(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.findApplication(ctx, appID, " FOR UPDATE")
}

func (s *PostgresStore) ListApplicationsByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE user_id = $1 ORDER BY created_at`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindApplicationDetails(ctx context.Context, appID id.ApplicationID) (*models.ApplicationDetails, error) {
	app, err := s.FindApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	details := &models.ApplicationDetails{Application: app}
	var firstName, lastName sql.NullString
	err = txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT c.name, c.code, sp.first_name, sp.last_name
		FROM applications a
		JOIN courses c ON c.id = a.course_id
		LEFT JOIN student_profiles sp ON sp.user_id = a.user_id
		WHERE a.id = $1
	`, uuid.UUID(appID)).Scan(&details.CourseName, &details.CourseCode, &firstName, &lastName)
	if err != nil {
		return nil, fmt.Errorf("find application details: %w", err)
	}
	profile := models.StudentProfile{FirstName: firstName.String, LastName: lastName.String}
	details.StudentName = profile.FullName()
	return details, nil
}

func (s *PostgresStore) SetPaymentStatus(ctx context.Context, appID id.ApplicationID, status models.PaymentStatus, at time.Time) error {
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx,
		`UPDATE applications SET payment_status = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(appID), string(status), at)
	if err != nil {
		return fmt.Errorf("update application payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
