// Package domain holds identifier types shared across the admissions modules.
//
// Each entity gets its own UUID-backed type so a PaymentID can never be passed
// where an ApplicationID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "admissions/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	ProfileID     uuid.UUID
	CourseID      uuid.UUID
	PeriodID      uuid.UUID
	ApplicationID uuid.UUID
	PaymentID     uuid.UUID
	AuditEntryID  uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id ProfileID) String() string     { return uuid.UUID(id).String() }
func (id CourseID) String() string      { return uuid.UUID(id).String() }
func (id PeriodID) String() string      { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id PaymentID) String() string     { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id CourseID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id PeriodID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewProfileID() ProfileID         { return ProfileID(uuid.New()) }
func NewCourseID() CourseID           { return CourseID(uuid.New()) }
func NewPeriodID() PeriodID           { return PeriodID(uuid.New()) }
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }
func NewPaymentID() PaymentID         { return PaymentID(uuid.New()) }
func NewAuditEntryID() AuditEntryID   { return AuditEntryID(uuid.New()) }

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseCourseID(s string) (CourseID, error) {
	u, err := parseUUID(s, "course id")
	return CourseID(u), err
}

func ParsePeriodID(s string) (PeriodID, error) {
	u, err := parseUUID(s, "admission period id")
	return PeriodID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s, "payment id")
	return PaymentID(u), err
}

func ParseAuditEntryID(s string) (AuditEntryID, error) {
	u, err := parseUUID(s, "audit entry id")
	return AuditEntryID(u), err
}
