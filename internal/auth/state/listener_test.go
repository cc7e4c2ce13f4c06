package state

import (
	"context"
	"slices"
	"time"

	"go.uber.org/mock/gomock"

	"fleetdesk/internal/audit"
	"fleetdesk/internal/auth/credentials"
	"fleetdesk/internal/auth/models"
)

// signalingSource reports when the listener has subscribed.
type signalingSource struct {
	credentials.Broadcaster
	subscribed chan struct{}
}

func newSignalingSource() *signalingSource {
	return &signalingSource{subscribed: make(chan struct{})}
}

func (src *signalingSource) OnSessionChange(fn func(credentials.Event)) func() {
	unsubscribe := src.Broadcaster.OnSessionChange(fn)
	close(src.subscribed)
	return unsubscribe
}

func (s *ContainerSuite) listen(src *signalingSource) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Listen(ctx, s.container, src) }()
	select {
	case <-src.subscribed:
	case <-time.After(time.Second):
		s.Require().FailNow("listener never subscribed")
	}
	return func() {
		cancel()
		s.NoError(<-done)
	}
}

func (s *ContainerSuite) TestListenValidatesSessionEvents() {
	source := newSignalingSource()
	stop := s.listen(source)
	defer stop()

	s.expectValid("cost centre")
	source.Emit(credentials.Event{Kind: credentials.EventSignedIn, Session: s.session})

	s.Eventually(func() bool {
		return s.container.Snapshot().IsAuthenticated()
	}, time.Second, 10*time.Millisecond)
	s.Equal(models.RoleCostCentre, s.container.Snapshot().Role())
}

func (s *ContainerSuite) TestListenSignedOutClearsWithoutInvalidating() {
	s.authenticate()
	source := newSignalingSource()
	stop := s.listen(source)
	defer stop()

	// No InvalidateSession expectation: the store already signed out.
	source.Emit(credentials.Event{Kind: credentials.EventSignedOut, Session: s.session})
	s.Eventually(func() bool {
		return slices.Contains(s.auditStore.Actions(), audit.ActionRemoteSignOut)
	}, time.Second, 10*time.Millisecond)

	s.requireSignedOut(s.container.Snapshot())
}

func (s *ContainerSuite) TestListenIgnoresSignOutOfAnOlderSession() {
	s.authenticate()
	older := &models.Session{AccessToken: "access-0", UserID: s.userID}

	s.container.HandleEvent(context.Background(), credentials.Event{Kind: credentials.EventSignedOut, Session: older})
	s.True(s.container.Snapshot().IsAuthenticated())

	s.container.HandleEvent(context.Background(), credentials.Event{Kind: credentials.EventSignedOut})
	s.requireSignedOut(s.container.Snapshot())
}

func (s *ContainerSuite) TestListenUnsubscribesOnExit() {
	source := newSignalingSource()
	stop := s.listen(source)
	stop()

	// Nothing is listening; an emitted event must not reach the container.
	source.Emit(credentials.Event{Kind: credentials.EventSignedIn, Session: s.session})
	s.False(s.container.Snapshot().IsHydrated)
}

func (s *ContainerSuite) TestRefresh() {
	ctx := context.Background()

	s.Run("Given a stored session When refreshing Then it is validated", func() {
		s.mockCredentials.EXPECT().CurrentSession(gomock.Any()).Return(s.session, nil)
		s.expectValid("customer")

		snap := s.container.Refresh(ctx)

		s.True(snap.IsAuthenticated())
		s.Equal(models.RoleCustomer, snap.Role())
	})

	s.Run("Given the session cannot be read When refreshing Then it counts as no session", func() {
		s.mockCredentials.EXPECT().CurrentSession(gomock.Any()).Return(nil, context.DeadlineExceeded)
		s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil)

		s.requireSignedOut(s.container.Refresh(ctx))
	})
}

func (s *ContainerSuite) TestHydrateRunsOnce() {
	ctx := context.Background()
	s.mockCredentials.EXPECT().CurrentSession(gomock.Any()).Return(s.session, nil).Times(1)
	s.expectValid("driver")

	first := s.container.Hydrate(ctx)
	second := s.container.Hydrate(ctx)

	s.True(first.IsHydrated)
	s.Equal(first, second)
}
