package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleetdesk/internal/auth/models"
	jwttoken "fleetdesk/internal/jwt_token"
	"fleetdesk/internal/sentinel"
	id "fleetdesk/pkg/domain"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig configures HTTPStore.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Now        func() time.Time
}

// HTTPStore talks to a GoTrue-style authentication REST API and keeps the
// resulting session in memory.
type HTTPStore struct {
	Broadcaster

	baseURL string
	apiKey  string
	client  HTTPDoer
	now     func() time.Time

	mu      sync.Mutex
	session *models.Session
}

func NewHTTPStore(cfg HTTPConfig) *HTTPStore {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		now:     cfg.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (s *HTTPStore) ExchangeCredentials(ctx context.Context, identifier, secret string) (*models.Session, error) {
	body := map[string]string{"email": strings.TrimSpace(identifier), "password": secret}
	var resp tokenResponse
	if err := s.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	session, err := s.sessionFromToken(resp)
	if err != nil || session == nil {
		return nil, err
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.Emit(Event{Kind: EventSignedIn, Session: copySession(session)})
	return copySession(session), nil
}

// CurrentSession returns the held session. An expired access token is
// exchanged for a new one using the refresh token first.
func (s *HTTPStore) CurrentSession(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	current := copySession(s.session)
	s.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.Expired(s.now()) {
		return current, nil
	}
	if current.RefreshToken == "" {
		s.clearIf(current)
		return nil, nil
	}

	var resp tokenResponse
	body := map[string]string{"refresh_token": current.RefreshToken}
	if err := s.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, fmt.Errorf("refreshing session: %w", err)
		}
		// The refresh token was rejected; the session is over.
		if s.clearIf(current) {
			s.Emit(Event{Kind: EventSignedOut, Session: current})
		}
		return nil, nil
	}

	refreshed, err := s.sessionFromToken(resp)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		if s.clearIf(current) {
			s.Emit(Event{Kind: EventSignedOut, Session: current})
		}
		return nil, nil
	}
	s.mu.Lock()
	if s.session == nil || s.session.AccessToken != current.AccessToken {
		// Signed out or replaced while the refresh was in flight.
		latest := copySession(s.session)
		s.mu.Unlock()
		return latest, nil
	}
	s.session = refreshed
	s.mu.Unlock()

	s.Emit(Event{Kind: EventTokenRefreshed, Session: copySession(refreshed)})
	return copySession(refreshed), nil
}

func (s *HTTPStore) CurrentIdentity(ctx context.Context) (*models.Identity, error) {
	s.mu.Lock()
	current := copySession(s.session)
	s.mu.Unlock()
	if current == nil {
		return nil, fmt.Errorf("no current session: %w", sentinel.ErrUnauthorized)
	}

	var resp userResponse
	if err := s.do(ctx, http.MethodGet, "/user", current.AccessToken, nil, &resp); err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(resp.ID)
	if err != nil {
		return nil, fmt.Errorf("user response: %w", err)
	}
	return &models.Identity{ID: userID, Email: resp.Email}, nil
}

// InvalidateSession revokes the session remotely. The local copy is dropped
// only if it is still the one being revoked, so a sign-in that completed
// meanwhile survives.
func (s *HTTPStore) InvalidateSession(ctx context.Context) error {
	s.mu.Lock()
	current := copySession(s.session)
	s.mu.Unlock()
	if current == nil {
		return nil
	}

	err := s.do(ctx, http.MethodPost, "/logout", current.AccessToken, nil, nil)
	if err != nil && !errors.Is(err, sentinel.ErrUnauthorized) && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	if s.clearIf(current) {
		s.Emit(Event{Kind: EventSignedOut, Session: current})
	}
	return nil
}

// DropSession forgets expected locally. The service is not told; use it when
// the session already ended elsewhere.
func (s *HTTPStore) DropSession(expected *models.Session) bool {
	if expected == nil {
		return false
	}
	return s.clearIf(expected)
}

// Ping checks that the credential service answers at all.
func (s *HTTPStore) Ping(ctx context.Context) error {
	err := s.do(ctx, http.MethodGet, "/health", "", nil, nil)
	if err != nil && errors.Is(err, sentinel.ErrUnavailable) {
		return err
	}
	return nil
}

func (s *HTTPStore) clearIf(expected *models.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.AccessToken != expected.AccessToken {
		return false
	}
	s.session = nil
	return true
}

func (s *HTTPStore) sessionFromToken(resp tokenResponse) (*models.Session, error) {
	if resp.AccessToken == "" {
		return nil, nil
	}

	claims, err := jwttoken.ParseUnverified(resp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	subject := resp.User.ID
	if subject == "" {
		subject = claims.Subject
	}
	userID, err := id.ParseUserID(subject)
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}

	var expiresAt time.Time
	switch {
	case resp.ExpiresAt > 0:
		expiresAt = time.Unix(resp.ExpiresAt, 0)
	case claims.ExpiresAt != nil:
		expiresAt = claims.ExpiresAt.Time
	case resp.ExpiresIn > 0:
		expiresAt = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return &models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		UserID:       userID,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *HTTPStore) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w: %w", sentinel.ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProviderError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func decodeProviderError(status int, body []byte) *ProviderError {
	perr := &ProviderError{Status: status}
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		perr.Message = http.StatusText(status)
		return perr
	}

	perr.Code = firstNonEmpty(payload.ErrorCode, payload.Error)
	perr.Message = firstNonEmpty(payload.Msg, payload.Message, payload.ErrorDescription, payload.Error, http.StatusText(status))
	return perr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
