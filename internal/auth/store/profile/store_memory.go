// Package profile stores the application-level user records that carry roles.
package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/sentinel"
	id "fleetdesk/pkg/domain"
)

// Error Contract:
// - FindByID returns a wrapped sentinel.ErrNotFound when no record exists.
// - Returned records are copies; callers may not mutate the store through them.

// InMemoryStore keeps user records in memory for development and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID]models.UserRecord
}

// New constructs an empty in-memory profile store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.UserID]models.UserRecord)}
}

func (s *InMemoryStore) Save(_ context.Context, record *models.UserRecord) error {
	if record == nil {
		return fmt.Errorf("user record is required: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *record
	now := time.Now().UTC()
	if existing, ok := s.records[record.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.records[record.ID] = stored
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, userID id.UserID) (*models.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, fmt.Errorf("user record not found: %w", sentinel.ErrNotFound)
	}
	return &record, nil
}

// SetRole changes the stored role of an existing record.
func (s *InMemoryStore) SetRole(userID id.UserID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		return fmt.Errorf("user record not found: %w", sentinel.ErrNotFound)
	}
	record.Role = role
	record.UpdatedAt = time.Now().UTC()
	s.records[userID] = record
	return nil
}
