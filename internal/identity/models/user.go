package models

import (
	"strings"
	"time"

	id "admissions/pkg/domain"
	dErrors "admissions/pkg/domain-errors"
)

// Role is the coarse permission level carried in identity tokens.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// User is a portal account.
type User struct {
	ID           id.UserID
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// NewUser validates invariants and normalizes the email.
func NewUser(userID id.UserID, email, passwordHash string, role Role, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email must be a valid address")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown role")
	}
	return &User{ID: userID, Email: email, PasswordHash: passwordHash, Role: role, CreatedAt: now}, nil
}

// Caller is the verified identity handed to the admission and payment modules.
type Caller struct {
	UserID id.UserID
	Role   Role
}
