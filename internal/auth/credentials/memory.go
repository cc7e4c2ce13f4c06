package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fleetdesk/internal/auth/models"
	jwttoken "fleetdesk/internal/jwt_token"
	"fleetdesk/internal/sentinel"
	id "fleetdesk/pkg/domain"
)

// seedNamespace derives stable user IDs from seeded e-mail addresses so a
// restarted dev server keeps matching its profile rows.
var seedNamespace = uuid.MustParse("5b0c7f2e-9a51-4c8e-8a55-1f5e2f7d3c10")

// SeedUser is a development account: credentials for MemoryStore and a role
// for the matching profile row.
type SeedUser struct {
	ID       id.UserID
	Email    string
	Password string
	Role     string
}

// ParseSeedUsers parses "email:password:role" entries separated by commas.
func ParseSeedUsers(raw string) ([]SeedUser, error) {
	var users []SeedUser
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("seed user %q: want email:password:role: %w", entry, sentinel.ErrInvalidInput)
		}
		email := strings.ToLower(strings.TrimSpace(parts[0]))
		users = append(users, SeedUser{
			ID:       id.UserID(uuid.NewSHA1(seedNamespace, []byte(email))),
			Email:    email,
			Password: parts[1],
			Role:     parts[2],
		})
	}
	return users, nil
}

type memoryAccount struct {
	id           id.UserID
	email        string
	passwordHash []byte
}

// MemoryStore is an in-process credential issuer for development and tests.
// It keeps one current session, like the hosted client library does.
type MemoryStore struct {
	Broadcaster

	mu       sync.Mutex
	tokens   *jwttoken.JWTService
	accounts map[string]memoryAccount
	session  *models.Session
	now      func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now; tests use it to expire tokens.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(tokens *jwttoken.JWTService, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tokens:   tokens,
		accounts: make(map[string]memoryAccount),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser registers an account. The password is stored as a bcrypt hash.
func (s *MemoryStore) AddUser(userID id.UserID, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(email)] = memoryAccount{id: userID, email: strings.ToLower(email), passwordHash: hash}
	return nil
}

func (s *MemoryStore) ExchangeCredentials(ctx context.Context, identifier, secret string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	account, ok := s.accounts[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok || bcrypt.CompareHashAndPassword(account.passwordHash, []byte(secret)) != nil {
		s.mu.Unlock()
		return nil, &ProviderError{Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"}
	}
	session, err := s.issueLocked(account)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.Emit(Event{Kind: EventSignedIn, Session: copySession(session)})
	return copySession(session), nil
}

// CurrentSession returns the held session, rotating it first when the access
// token has expired.
func (s *MemoryStore) CurrentSession(ctx context.Context) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil, nil
	}
	if !s.session.Expired(s.now()) {
		current := copySession(s.session)
		s.mu.Unlock()
		return current, nil
	}

	account, ok := s.accountByIDLocked(s.session.UserID)
	if !ok {
		s.session = nil
		s.mu.Unlock()
		return nil, nil
	}
	session, err := s.issueLocked(account)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.Emit(Event{Kind: EventTokenRefreshed, Session: copySession(session)})
	return copySession(session), nil
}

func (s *MemoryStore) CurrentIdentity(ctx context.Context) (*models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	session := copySession(s.session)
	s.mu.Unlock()
	if session == nil {
		return nil, fmt.Errorf("no current session: %w", sentinel.ErrUnauthorized)
	}

	claims, err := s.tokens.ValidateToken(session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrUnauthorized, err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	return &models.Identity{ID: userID, Email: claims.Email}, nil
}

// InvalidateSession drops the held session and announces the sign-out.
func (s *MemoryStore) InvalidateSession(ctx context.Context) error {
	s.mu.Lock()
	ended := s.session
	s.session = nil
	s.mu.Unlock()

	if ended != nil {
		s.Emit(Event{Kind: EventSignedOut, Session: copySession(ended)})
	}
	return nil
}

func (s *MemoryStore) DropSession(expected *models.Session) bool {
	if expected == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.AccessToken != expected.AccessToken {
		return false
	}
	s.session = nil
	return true
}

// UpdateUser changes an account's e-mail and announces it, the way an account
// settings change does on the hosted service.
func (s *MemoryStore) UpdateUser(userID id.UserID, email string) error {
	s.mu.Lock()
	account, ok := s.accountByIDLocked(userID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	delete(s.accounts, account.email)
	account.email = strings.ToLower(email)
	s.accounts[account.email] = account

	var session *models.Session
	if s.session != nil && s.session.UserID == userID {
		var err error
		if session, err = s.issueLocked(account); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if session != nil {
		s.Emit(Event{Kind: EventUserUpdated, Session: copySession(session)})
	}
	return nil
}

func (s *MemoryStore) issueLocked(account memoryAccount) (*models.Session, error) {
	access, expiresAt, err := s.tokens.GenerateAccessToken(s.now(), account.id, account.email)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := s.tokens.CreateRefreshToken()
	if err != nil {
		return nil, err
	}
	s.session = &models.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		UserID:       account.id,
		ExpiresAt:    expiresAt,
	}
	return s.session, nil
}

func (s *MemoryStore) accountByIDLocked(userID id.UserID) (memoryAccount, bool) {
	for _, account := range s.accounts {
		if account.id == userID {
			return account, true
		}
	}
	return memoryAccount{}, false
}
