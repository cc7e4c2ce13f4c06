package models

import (
	"time"

	id "fleetdesk/pkg/domain"
)

// This file contains the pure domain values of the session gate. None of them
// know about HTTP, SQL or the credential provider's wire format.

// Session is the transient copy of the credential service's session. The
// credential store owns it; the auth container only holds it in memory.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	UserID       id.UserID
	ExpiresAt    time.Time
}

// Expired reports whether the access token is past its expiry at the given time.
// A zero ExpiresAt means the provider did not report one.
func (s *Session) Expired(at time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !at.Before(s.ExpiresAt)
}

// Identity is the authenticated user as confirmed by the credential service.
type Identity struct {
	ID    id.UserID
	Email string
}

// UserRecord is the application-level profile looked up by Identity.ID.
// Role holds the raw value stored in the users table.
type UserRecord struct {
	ID        id.UserID
	Email     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ParsedRole maps the stored role to the closed Role enumeration.
func (r *UserRecord) ParsedRole() (Role, bool) {
	if r == nil {
		return RoleUnknown, false
	}
	return ParseRole(r.Role)
}

// Valid reports whether the record can back an authenticated state: it must
// carry a recognised, non-empty role.
func (r *UserRecord) Valid() bool {
	_, ok := r.ParsedRole()
	return ok
}

// Snapshot is the read model of the auth container. It is a copy; mutating it
// never changes the container.
type Snapshot struct {
	Session    *Session
	User       *Identity
	UserRecord *UserRecord
	IsLoading  bool
	IsHydrated bool
}

// IsAuthenticated is derived, never stored: session, user and record must all be present.
func (s Snapshot) IsAuthenticated() bool {
	return s.Session != nil && s.User != nil && s.UserRecord != nil
}

// Role returns the parsed role of the current record, or RoleUnknown.
func (s Snapshot) Role() Role {
	role, _ := s.UserRecord.ParsedRole()
	return role
}

// HasRole reports whether the snapshot is authenticated with a non-empty,
// recognised role. Both route guards share this predicate.
func (s Snapshot) HasRole() bool {
	return s.IsAuthenticated() && s.Role() != RoleUnknown
}

// SignInResult is returned to the login form. Error is only set when Success is false.
type SignInResult struct {
	Success bool
	Error   string
}
