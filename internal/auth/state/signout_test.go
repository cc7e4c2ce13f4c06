package state

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"fleetdesk/internal/audit"
)

func (s *ContainerSuite) TestSignOut() {
	ctx := context.Background()

	s.Run("Given an authenticated state When signing out Then everything is cleared", func() {
		s.authenticate()
		s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil)

		s.container.SignOut(ctx)

		s.requireSignedOut(s.container.Snapshot())
		s.Contains(s.auditStore.Actions(), audit.ActionSignedOut)
	})

	s.Run("Given already signed out When signing out again Then the state is identical", func() {
		s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).Return(nil)
		before := s.container.Snapshot()

		s.container.SignOut(ctx)

		s.Equal(before, s.container.Snapshot())
		s.requireSignedOut(s.container.Snapshot())
	})
}

func (s *ContainerSuite) TestSignOutIsLocalFirst() {
	ctx, cancel := context.WithCancel(context.Background())
	s.authenticate()

	release := make(chan struct{})
	s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-release
		s.NoError(ctx.Err())
		return errors.New("network unreachable")
	})

	s.container.SignOut(ctx)
	cancel()

	// The remote call is still blocked; local state is already gone.
	s.requireSignedOut(s.container.Snapshot())

	close(release)
	s.container.Wait()

	s.requireSignedOut(s.container.Snapshot())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.InvalidationFailures))
	s.Contains(s.auditStore.Actions(), audit.ActionInvalidationFailed)
}

func (s *ContainerSuite) TestInvalidationIsBounded() {
	container, err := New(s.mockCredentials, s.mockProfiles, WithInvalidateTimeout(20*time.Millisecond))
	s.Require().NoError(err)

	s.mockCredentials.EXPECT().InvalidateSession(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	container.SignOut(context.Background())

	waited := make(chan struct{})
	go func() {
		container.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		s.Fail("invalidation outlived its timeout")
	}
}
