package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"admissions/internal/admission/models"
)

// SeedOptions describes the admission period created by SeedDemo.
type SeedOptions struct {
	PeriodName     string
	AcademicYear   string
	ApplicationFee decimal.Decimal
	OpenFor        time.Duration
}

// SeedDemo opens an admission period starting at now with a small course catalogue.
func (a *App) SeedDemo(ctx context.Context, now time.Time, opts SeedOptions) (*models.AdmissionPeriod, error) {
	if opts.PeriodName == "" {
		opts.PeriodName = "Undergraduate Admissions"
	}
	if opts.AcademicYear == "" {
		opts.AcademicYear = academicYear(now)
	}
	if !opts.ApplicationFee.IsPositive() {
		opts.ApplicationFee = decimal.NewFromInt(5000)
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 90 * 24 * time.Hour
	}

	period := &models.AdmissionPeriod{
		Name:           opts.PeriodName + " " + opts.AcademicYear,
		AcademicYear:   opts.AcademicYear,
		StartsAt:       now,
		EndsAt:         now.Add(opts.OpenFor),
		ApplicationFee: opts.ApplicationFee,
	}
	if err := a.Admission.AddPeriod(ctx, period); err != nil {
		return nil, err
	}

	courses := []*models.Course{
		{Code: "BSC-CS", Name: "B.Sc. Computer Science", Department: "Computer Science", MinPercentage: decimal.NewFromInt(60), EligibleBoards: []string{"CBSE", "Maharashtra", "ICSE"}},
		{Code: "BCOM", Name: "B.Com.", Department: "Commerce", MinPercentage: decimal.NewFromInt(50)},
		{Code: "BA-ECO", Name: "B.A. Economics", Department: "Economics", MinPercentage: decimal.NewFromInt(55)},
	}
	for _, c := range courses {
		c.PeriodID = period.ID
		c.IsActive = true
		if err := a.Admission.AddCourse(ctx, c); err != nil {
			return nil, err
		}
	}
	a.Logger.InfoContext(ctx, "seeded admission period",
		"period_id", period.ID,
		"courses", len(courses),
	)
	return period, nil
}

// academicYear formats "2025-26" for dates from June onwards, "2024-25" before.
func academicYear(now time.Time) string {
	start := now.Year()
	if now.Month() < time.June {
		start--
	}
	return time.Date(start, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006") + "-" +
		time.Date(start+1, 1, 1, 0, 0, 0, 0, time.UTC).Format("06")
}
