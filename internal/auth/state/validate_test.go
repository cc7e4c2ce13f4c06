package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/credentials"
	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/sentinel"
	id "fleetdesk/pkg/domain"
)

func (s *ContainerSuite) TestValidateWithoutSession() {
	s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil)

	snap := s.container.Validate(context.Background(), nil)

	s.requireSignedOut(snap)
	s.requireSignedOut(s.container.Snapshot())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Validations.WithLabelValues(outcomeSignedOut, string(ReasonNoSession))))
}

func (s *ContainerSuite) TestValidateAuthenticates() {
	s.expectValid("driver")

	snap := s.container.Validate(context.Background(), s.session)

	s.True(snap.IsAuthenticated())
	s.True(snap.IsHydrated)
	s.False(snap.IsLoading)
	s.Equal("driver", snap.UserRecord.Role)
	s.Equal(models.RoleDriver, snap.Role())
	s.Equal(s.identity.Email, snap.User.Email)
	s.Equal(s.session.AccessToken, snap.Session.AccessToken)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Authenticated))
	s.Contains(s.auditStore.Actions(), audit.ActionSessionValidated)
}

func (s *ContainerSuite) TestValidateEmptyRoleSignsOut() {
	s.expectValid("")
	s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil)

	snap := s.container.Validate(context.Background(), s.session)

	s.requireSignedOut(snap)
	s.Contains(s.auditStore.Actions(), audit.ActionSessionRejected)
}

func (s *ContainerSuite) TestValidateFailsClosed() {
	cases := []struct {
		name   string
		prime  func()
		reason Reason
	}{
		{
			name: "identity lookup fails",
			prime: func() {
				s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).
					Return(nil, fmt.Errorf("GET /user: %w", sentinel.ErrUnavailable))
			},
			reason: ReasonIdentity,
		},
		{
			name: "identity is missing",
			prime: func() {
				s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).Return(nil, nil)
			},
			reason: ReasonIdentity,
		},
		{
			name: "profile fetch fails",
			prime: func() {
				s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).Return(s.identity, nil)
				s.mockProfiles.EXPECT().FindByID(gomock.Any(), s.userID).
					Return(nil, fmt.Errorf("user %s: %w", s.userID, sentinel.ErrNotFound))
			},
			reason: ReasonProfileFetch,
		},
		{
			name: "profile is missing",
			prime: func() {
				s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).Return(s.identity, nil)
				s.mockProfiles.EXPECT().FindByID(gomock.Any(), s.userID).Return(nil, nil)
			},
			reason: ReasonProfileFetch,
		},
		{
			name:   "profile has an empty role",
			prime:  func() { s.expectValid("") },
			reason: ReasonInvalidProfile,
		},
		{
			name:   "profile has an unknown role",
			prime:  func() { s.expectValid("pilot") },
			reason: ReasonInvalidProfile,
		},
	}

	for _, tc := range cases {
		s.Run("Given an authenticated state When "+tc.name+" Then the state is signed out", func() {
			s.authenticate()
			tc.prime()
			s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil)

			snap := s.container.Validate(context.Background(), s.session)
			s.container.Wait()

			s.requireSignedOut(snap)
			s.Equal(0.0, testutil.ToFloat64(s.metrics.Authenticated))
			s.GreaterOrEqual(testutil.ToFloat64(s.metrics.Validations.WithLabelValues(outcomeSignedOut, string(tc.reason))), 1.0)
		})
	}
}

func (s *ContainerSuite) TestCallerGoingAwayLeavesStateAlone() {
	s.Run("Given an authenticated state When the caller cancels mid-validation Then nothing is cleared or invalidated", func() {
		s.authenticate()
		ctx, cancel := context.WithCancel(context.Background())
		s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).DoAndReturn(func(context.Context) (*models.Identity, error) {
			cancel()
			return nil, context.Canceled
		})

		// No InvalidateSession expectation: a caller leaving is not a sign-out.
		snap := s.container.Validate(ctx, s.session)
		s.container.Wait()

		s.True(snap.IsAuthenticated())
		s.True(s.container.Snapshot().IsAuthenticated())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Authenticated))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Validations.WithLabelValues(outcomeAbandoned, "")))
		s.NotContains(s.auditStore.Actions(), audit.ActionSessionRejected)
	})

	s.Run("Given a refresh When the request times out reading the session Then loading ends and the state is kept", func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.mockCredentials.EXPECT().CurrentSession(gomock.Any()).DoAndReturn(func(context.Context) (*models.Session, error) {
			cancel()
			return nil, context.DeadlineExceeded
		})

		snap := s.container.Refresh(ctx)
		s.container.Wait()

		s.True(snap.IsAuthenticated())
		s.False(snap.IsLoading)
		s.False(s.container.Snapshot().IsLoading)
	})
}

func (s *ContainerSuite) TestValidateDiscardsSessionOfAnotherUser() {
	ctx := context.Background()
	other := id.UserID(uuid.New())
	otherSession := &models.Session{AccessToken: "access-b", UserID: other}
	otherIdentity := &models.Identity{ID: other, Email: "b@b.com"}

	s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).Return(otherIdentity, nil).Times(2)
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), other).
		Return(&models.UserRecord{ID: other, Email: "b@b.com", Role: "admin"}, nil)
	s.Require().True(s.container.Validate(ctx, otherSession).IsAuthenticated())

	s.Run("Given the store holds another user When the older session is revalidated Then it is dropped without mixing state", func() {
		// No profile lookup and no InvalidateSession: the live session is not touched.
		snap := s.container.Validate(ctx, s.session)

		s.Equal(otherSession.AccessToken, snap.Session.AccessToken)
		s.Equal(other, snap.User.ID)
		s.Equal(models.RoleAdmin, snap.Role())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StaleValidations))
	})

	s.Run("Given the live session ends When its sign-out event arrives Then the state clears", func() {
		s.container.HandleEvent(ctx, credentials.Event{Kind: credentials.EventSignedOut, Session: otherSession})

		s.requireSignedOut(s.container.Snapshot())
		s.Equal(0.0, testutil.ToFloat64(s.metrics.Authenticated))
	})
}

func (s *ContainerSuite) TestAuthenticatedGaugeFollowsState() {
	ctx := context.Background()
	s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).Return(s.identity, nil).AnyTimes()
	s.mockProfiles.EXPECT().FindByID(gomock.Any(), s.userID).Return(s.record("driver"), nil).AnyTimes()
	s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil).AnyTimes()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.container.Validate(ctx, s.session)
		}()
		go func() {
			defer wg.Done()
			s.container.SignOut(ctx)
		}()
	}
	wg.Wait()
	s.container.Wait()

	want := 0.0
	if s.container.Snapshot().IsAuthenticated() {
		want = 1.0
	}
	s.Equal(want, testutil.ToFloat64(s.metrics.Authenticated))
}

func (s *ContainerSuite) TestStaleValidationIsDiscarded() {
	s.Run("Given a validation in flight When a sign-out happens first Then the late result does not resurrect the session", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).DoAndReturn(func(context.Context) (*models.Identity, error) {
			close(entered)
			<-release
			return s.identity, nil
		})
		s.mockProfiles.EXPECT().FindByID(gomock.Any(), s.userID).Return(s.record("driver"), nil)
		s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil)

		done := make(chan models.Snapshot)
		go func() { done <- s.container.Validate(context.Background(), s.session) }()
		<-entered

		s.container.SignOut(context.Background())
		close(release)
		late := <-done

		s.requireSignedOut(late)
		s.requireSignedOut(s.container.Snapshot())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StaleValidations))
	})

	s.Run("Given a failing validation in flight When a newer one authenticates Then the late failure neither clears nor invalidates", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		s.mockCredentials.EXPECT().CurrentIdentity(gomock.Any()).DoAndReturn(func(context.Context) (*models.Identity, error) {
			close(entered)
			<-release
			return nil, errors.New("connection reset")
		})
		s.expectValid("fleet manager")

		done := make(chan models.Snapshot)
		go func() { done <- s.container.Validate(context.Background(), s.session) }()
		<-entered

		newer := s.container.Validate(context.Background(), s.session)
		s.Require().True(newer.IsAuthenticated())

		close(release)
		late := <-done
		s.container.Wait()

		s.True(late.IsAuthenticated())
		s.True(s.container.Snapshot().IsAuthenticated())
		s.Equal(models.RoleFleetManager, s.container.Snapshot().Role())
	})
}

func (s *ContainerSuite) TestHydrationIsMonotonic() {
	ctx := context.Background()
	s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil).AnyTimes()
	s.mockCredentials.EXPECT().ExchangeCredentials(gomock.Any(), "a@b.com", "wrong").
		Return(nil, errors.New("Invalid login credentials"))
	s.mockCredentials.EXPECT().CurrentSession(gomock.Any()).Return(nil, nil)

	steps := []func(){
		func() { s.container.Validate(ctx, nil) },
		func() { s.container.SignIn(ctx, "a@b.com", "wrong") },
		func() { s.authenticate() },
		func() { s.container.SignOut(ctx) },
		func() { s.container.Refresh(ctx) },
		func() { s.container.SignOut(ctx) },
	}
	for i, step := range steps {
		step()
		s.True(s.container.Snapshot().IsHydrated, "step %d un-hydrated the state", i)
	}
}

func (s *ContainerSuite) TestSnapshotIsACopy() {
	s.authenticate()

	snap := s.container.Snapshot()
	snap.UserRecord.Role = "admin"
	snap.Session.AccessToken = "tampered"

	current := s.container.Snapshot()
	s.Equal("driver", current.UserRecord.Role)
	s.Equal(s.session.AccessToken, current.Session.AccessToken)
}
