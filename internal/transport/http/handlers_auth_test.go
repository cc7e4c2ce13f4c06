package httptransport

//go:generate mockgen -source=handlers_auth.go -destination=mocks/mocks.go -package=mocks AuthService

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"fleetdesk/internal/auth/guard"
	"fleetdesk/internal/auth/metrics"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/transport/http/mocks"
	id "fleetdesk/pkg/domain"
)

type RouterSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	mockAuth *mocks.MockAuthService
	router   http.Handler
	userID   id.UserID
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockAuth = mocks.NewMockAuthService(s.ctrl)
	s.userID = id.UserID(uuid.New())
	s.router = NewRouter(Dependencies{
		Auth:        s.mockAuth,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Routes:      guard.DefaultRoutes(),
		AuthMetrics: metrics.New(prometheus.NewRegistry()),
	})
}

func (s *RouterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RouterSuite) signedIn(role string) models.Snapshot {
	return models.Snapshot{
		Session: &models.Session{
			AccessToken:  "secret-access",
			RefreshToken: "secret-refresh",
			UserID:       s.userID,
			ExpiresAt:    time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		},
		User:       &models.Identity{ID: s.userID, Email: "dispatch@fleet.example"},
		UserRecord: &models.UserRecord{ID: s.userID, Email: "dispatch@fleet.example", Role: role},
		IsHydrated: true,
	}
}

func signedOut() models.Snapshot {
	return models.Snapshot{IsHydrated: true}
}

func (s *RouterSuite) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func (s *RouterSuite) TestSignIn() {
	s.Run("Given valid credentials When signing in Then 200 with success", func() {
		s.mockAuth.EXPECT().SignIn(gomock.Any(), "dispatch@fleet.example", "pw").Return(models.SignInResult{Success: true})

		w := s.do(http.MethodPost, "/auth/sign-in", `{"email":"  dispatch@fleet.example ","password":"pw"}`)

		s.Equal(http.StatusOK, w.Code)
		var body SignInResponse
		s.decode(w, &body)
		s.Equal(SignInResponse{Success: true}, body)
	})

	s.Run("Given rejected credentials When signing in Then 401 carries the message", func() {
		s.mockAuth.EXPECT().SignIn(gomock.Any(), "dispatch@fleet.example", "bad").
			Return(models.SignInResult{Error: "Invalid login credentials"})

		w := s.do(http.MethodPost, "/auth/sign-in", `{"email":"dispatch@fleet.example","password":"bad"}`)

		s.Equal(http.StatusUnauthorized, w.Code)
		s.JSONEq(`{"success":false,"error":"Invalid login credentials"}`, w.Body.String())
	})

	s.Run("Given malformed JSON When signing in Then 400 and the container is not called", func() {
		w := s.do(http.MethodPost, "/auth/sign-in", `{bad-json`)

		s.Equal(http.StatusBadRequest, w.Code)
		var body map[string]string
		s.decode(w, &body)
		s.Equal("bad_request", body["error"])
	})

	s.Run("Given a form content type When signing in Then 415", func() {
		w := s.do(http.MethodPost, "/auth/sign-in", `email=a`, "Content-Type", "application/x-www-form-urlencoded")
		s.Equal(http.StatusUnsupportedMediaType, w.Code)
	})
}

func (s *RouterSuite) TestSignOut() {
	s.mockAuth.EXPECT().SignOut(gomock.Any())

	w := s.do(http.MethodPost, "/auth/sign-out", "")

	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("no-store", w.Header().Get("Cache-Control"))
}

func (s *RouterSuite) TestStateNeverLeaksTokens() {
	s.mockAuth.EXPECT().Snapshot().Return(s.signedIn("fleet manager"))

	w := s.do(http.MethodGet, "/auth/state", "")

	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "secret-access")
	s.NotContains(w.Body.String(), "secret-refresh")
	var view StateView
	s.decode(w, &view)
	s.True(view.IsAuthenticated)
	s.True(view.IsHydrated)
	s.Equal("fleet manager", view.Role)
	s.Equal(s.userID.String(), view.User.ID)
	s.Require().NotNil(view.ExpiresAt)
}

func (s *RouterSuite) TestRefresh() {
	s.mockAuth.EXPECT().Refresh(gomock.Any()).Return(signedOut())

	w := s.do(http.MethodPost, "/auth/refresh", "")

	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"is_loading":false,"is_hydrated":true,"is_authenticated":false}`, w.Body.String())
}

func (s *RouterSuite) TestSignInIsThrottledPerClient() {
	s.router = NewRouter(Dependencies{
		Auth:        s.mockAuth,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Routes:      guard.DefaultRoutes(),
		SignInRate:  0.01,
		SignInBurst: 1,
	})
	s.mockAuth.EXPECT().SignIn(gomock.Any(), "dispatch@fleet.example", "bad").
		Return(models.SignInResult{Error: "Invalid login credentials"}).Times(1)

	first := s.do(http.MethodPost, "/auth/sign-in", `{"email":"dispatch@fleet.example","password":"bad"}`)
	second := s.do(http.MethodPost, "/auth/sign-in", `{"email":"dispatch@fleet.example","password":"bad"}`)

	s.Equal(http.StatusUnauthorized, first.Code)
	s.Equal(http.StatusTooManyRequests, second.Code)

	s.mockAuth.EXPECT().Snapshot().Return(signedOut())
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/auth/state", "").Code, "only sign-in is limited")
}

func (s *RouterSuite) TestOversizedSignInIsRejected() {
	s.router = NewRouter(Dependencies{
		Auth:         s.mockAuth,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Routes:       guard.DefaultRoutes(),
		MaxBodyBytes: 64,
	})

	// No SignIn expectation: the container is never reached.
	w := s.do(http.MethodPost, "/auth/sign-in", `{"email":"dispatch@fleet.example","password":"`+strings.Repeat("x", 64)+`"}`)

	s.Equal(http.StatusRequestEntityTooLarge, w.Code)
	var body map[string]string
	s.decode(w, &body)
	s.Equal("request_too_large", body["error"])
}
