package sentinel

import "errors"

// Sentinel dependency errors. Stores and provider clients return these
// (optionally wrapped) so callers can classify failures exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrExpired      = errors.New("expired")
	ErrUnavailable  = errors.New("unavailable")
)
