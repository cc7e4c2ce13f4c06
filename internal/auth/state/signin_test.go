package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/credentials"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/auth/state/mocks"
	"fleetdesk/internal/sentinel"
)

func (s *ContainerSuite) TestSignIn() {
	ctx := context.Background()

	s.Run("Given blank credentials When signing in Then the store is not called", func() {
		result := s.container.SignIn(ctx, "  ", "secret")
		s.Equal(models.SignInResult{Success: false, Error: "Email and password are required"}, result)

		result = s.container.SignIn(ctx, "a@b.com", "")
		s.False(result.Success)
	})

	s.Run("Given valid credentials When signing in Then the session is validated and success returned", func() {
		s.mockCredentials.EXPECT().ExchangeCredentials(gomock.Any(), "a@b.com", "secret").Return(s.session, nil)
		s.expectValid("call centre")

		result := s.container.SignIn(ctx, " a@b.com ", "secret")

		s.Equal(models.SignInResult{Success: true}, result)
		snap := s.container.Snapshot()
		s.True(snap.IsAuthenticated())
		s.Equal(models.RoleCallCentre, snap.Role())
		s.Contains(s.auditStore.Actions(), audit.ActionSignInSucceeded)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.SignIns.WithLabelValues("succeeded")))
	})

	s.Run("Given the store returns no session When signing in Then it fails with a fixed message", func() {
		s.mockCredentials.EXPECT().ExchangeCredentials(gomock.Any(), "a@b.com", "secret").Return(nil, nil)

		result := s.container.SignIn(ctx, "a@b.com", "secret")

		s.Equal(models.SignInResult{Success: false, Error: "No session returned"}, result)
		s.False(s.container.Snapshot().IsLoading)
	})

	s.Run("Given the service is down When signing in Then a generic message hides transport details", func() {
		s.mockCredentials.EXPECT().ExchangeCredentials(gomock.Any(), "a@b.com", "secret").
			Return(nil, fmt.Errorf("POST /token: dial tcp: %w", sentinel.ErrUnavailable))

		result := s.container.SignIn(ctx, "a@b.com", "secret")

		s.False(result.Success)
		s.Equal(msgServiceUnavailable, result.Error)
		s.NotContains(result.Error, "dial tcp")
	})

	s.Run("Given the provider answers 503 When signing in Then the outage message replaces the status text", func() {
		s.mockCredentials.EXPECT().ExchangeCredentials(gomock.Any(), "a@b.com", "secret").
			Return(nil, &credentials.ProviderError{Status: 503, Message: "Service Unavailable"})

		result := s.container.SignIn(ctx, "a@b.com", "secret")

		s.False(result.Success)
		s.Equal(msgServiceUnavailable, result.Error)
	})
}

func (s *ContainerSuite) TestSignInRejectedLeavesStateAlone() {
	ctx := context.Background()
	s.authenticate()
	before := s.container.Snapshot()

	s.mockCredentials.EXPECT().ExchangeCredentials(gomock.Any(), "a@b.com", "wrong").
		Return(nil, &credentials.ProviderError{Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"})

	result := s.container.SignIn(ctx, "a@b.com", "wrong")

	s.Equal(models.SignInResult{Success: false, Error: "Invalid login credentials"}, result)
	after := s.container.Snapshot()
	s.Equal(before, after)
	s.True(after.IsAuthenticated())
	s.Contains(s.auditStore.Actions(), audit.ActionSignInFailed)
}

func (s *ContainerSuite) TestSignInWaitsForPendingInvalidation() {
	ctx := context.Background()
	s.authenticate()

	release := make(chan struct{})
	s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).DoAndReturn(func(context.Context) error {
		<-release
		return nil
	})
	s.container.SignOut(ctx)

	exchanged := make(chan struct{})
	s.mockCredentials.EXPECT().ExchangeCredentials(gomock.Any(), "a@b.com", "secret").
		DoAndReturn(func(context.Context, string, string) (*models.Session, error) {
			close(exchanged)
			return s.session, nil
		})
	s.expectValid("driver")

	done := make(chan models.SignInResult)
	go func() { done <- s.container.SignIn(ctx, "a@b.com", "secret") }()

	select {
	case <-exchanged:
		s.Fail("sign-in overtook the pending invalidation")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	s.True((<-done).Success)
	s.True(s.container.Snapshot().IsAuthenticated())
}

func (s *ContainerSuite) TestAuditFailuresDoNotChangeOutcome() {
	publisher := mocks.NewMockAuditPublisher(s.ctrl)
	container, err := New(s.mockCredentials, s.mockProfiles, WithAuditPublisher(publisher))
	s.Require().NoError(err)

	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit sink down")).AnyTimes()
	s.expectValid("admin")

	snap := container.Validate(context.Background(), s.session)
	s.True(snap.IsAuthenticated())
	s.Equal(models.RoleAdmin, snap.Role())
}
