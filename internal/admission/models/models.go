package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "admissions/pkg/domain"
	dErrors "admissions/pkg/domain-errors"
)

// Category is the reservation category declared on a student profile.
type Category string

const (
	CategoryGeneral Category = "GENERAL"
	CategoryOBC     Category = "OBC"
	CategorySC      Category = "SC"
	CategoryST      Category = "ST"
	CategoryEWS     Category = "EWS"
)

// ParseCategory accepts any casing.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CategoryGeneral, CategoryOBC, CategorySC, CategoryST, CategoryEWS:
		return c, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown category %q", s)
}

// feeWaiver is the fraction of the base fee charged per category.
var feeWaiver = map[Category]decimal.Decimal{
	CategorySC: decimal.NewFromFloat(0.5),
	CategoryST: decimal.NewFromFloat(0.5),
}

// FeeFor computes the application fee for a category, rounded to paise.
func FeeFor(base decimal.Decimal, category Category) decimal.Decimal {
	if factor, ok := feeWaiver[category]; ok {
		return base.Mul(factor).Round(2)
	}
	return base.Round(2)
}

// Status is the application lifecycle state.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusWaitlisted  Status = "WAITLISTED"
)

// PaymentStatus mirrors the outcome of the application's fee payment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// AdmissionPeriod is a window during which applications are accepted.
type AdmissionPeriod struct {
	ID             id.PeriodID
	Name           string
	AcademicYear   string
	StartsAt       time.Time
	EndsAt         time.Time
	ApplicationFee decimal.Decimal
}

// IsOpen reports whether now falls inside the period, inclusive.
func (p *AdmissionPeriod) IsOpen(now time.Time) bool {
	return !now.Before(p.StartsAt) && !now.After(p.EndsAt)
}

// Course is a programme offered in one admission period.
type Course struct {
	ID             id.CourseID
	Code           string
	Name           string
	Department     string
	PeriodID       id.PeriodID
	MinPercentage  decimal.Decimal
	EligibleBoards []string
	IsActive       bool
}

// CourseListing is a course with its period, as shown to applicants.
type CourseListing struct {
	Course *Course
	Period *AdmissionPeriod
}

// StudentProfile holds the applicant facts that eligibility and fees depend on.
type StudentProfile struct {
	ID                id.ProfileID
	UserID            id.UserID
	FirstName         string
	LastName          string
	Category          Category
	TwelfthPercentage decimal.Decimal
	TwelfthBoard      string
	IsComplete        bool
	UpdatedAt         time.Time
}

func (p *StudentProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Eligibility is the outcome of checking a profile against a course.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// CheckEligibility applies the minimum percentage and board rules.
func CheckEligibility(profile *StudentProfile, course *Course) Eligibility {
	if profile.TwelfthPercentage.LessThan(course.MinPercentage) {
		return Eligibility{Reason: fmt.Sprintf("Minimum %s%% required in 12th standard", course.MinPercentage.String())}
	}
	if len(course.EligibleBoards) > 0 && !slices.Contains(course.EligibleBoards, strings.ToLower(profile.TwelfthBoard)) {
		return Eligibility{Reason: fmt.Sprintf("Your board (%s) is not eligible for this course", profile.TwelfthBoard)}
	}
	return Eligibility{Eligible: true}
}

// Application is a student's application to one course in one period.
type Application struct {
	ID                id.ApplicationID
	ApplicationNumber string
	UserID            id.UserID
	CourseID          id.CourseID
	PeriodID          id.PeriodID
	IsEligible        bool
	EligibilityReason string
	ApplicationFee    decimal.Decimal
	Status            Status
	PaymentStatus     PaymentStatus
	SubmittedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLive reports whether the application blocks another one for the same course.
func (a *Application) IsLive() bool {
	return a.Status != StatusRejected
}

// IsPayable reports whether a fee may be collected: refused or ineligible
// applications are never charged.
func (a *Application) IsPayable() bool {
	return a.IsEligible && a.Status != StatusRejected
}

// IsPaid reports whether the application fee has been settled.
func (a *Application) IsPaid() bool {
	return a.PaymentStatus == PaymentSuccess
}

// ApplicationDetails joins what receipts and notifications show about an application.
type ApplicationDetails struct {
	Application *Application
	CourseName  string
	CourseCode  string
	StudentName string
}
