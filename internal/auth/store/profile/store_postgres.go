package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/sentinel"
	id "fleetdesk/pkg/domain"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore reads application user records from PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgres constructs a PostgreSQL-backed profile store.
func NewPostgres(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.UserRecord, error) {
	query := `
		SELECT id, email, COALESCE(role, ''), created_at, updated_at
		FROM users
		WHERE id = $1`

	var (
		rowID  uuid.UUID
		record models.UserRecord
	)
	err := s.db.QueryRow(ctx, query, uuid.UUID(userID)).Scan(
		&rowID,
		&record.Email,
		&record.Role,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user record not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find user record by id: %w", err)
	}
	record.ID = id.UserID(rowID)
	return &record, nil
}

// Save upserts a record. Used to seed development databases.
func (s *PostgresStore) Save(ctx context.Context, record *models.UserRecord) error {
	if record == nil {
		return fmt.Errorf("user record is required: %w", sentinel.ErrInvalidInput)
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.Exec(ctx, query, uuid.UUID(record.ID), record.Email, record.Role, now); err != nil {
		return fmt.Errorf("save user record: %w", err)
	}
	return nil
}
