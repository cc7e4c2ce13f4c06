// Package domain provides type-safe identifiers shared across fleetdesk packages.
package domain

import (
	"github.com/google/uuid"

	dErrors "fleetdesk/pkg/domain-errors"
)

// UserID identifies an authenticated user in both the credential service and
// the application database.
type UserID uuid.UUID

// ParseUserID validates s at a trust boundary (provider payloads, DB rows).
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return UserID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "user ID cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UserID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "invalid user ID format")
	}
	if parsed == uuid.Nil {
		return UserID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "user ID cannot be nil")
	}
	return UserID(parsed), nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
