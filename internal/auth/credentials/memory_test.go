package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fleetdesk/internal/auth/models"
	jwttoken "fleetdesk/internal/jwt_token"
	"fleetdesk/internal/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	now    time.Time
	store  *MemoryStore
	seeded SeedUser

	mu     sync.Mutex
	events []Event
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Now()
	s.events = nil
	tokens := jwttoken.NewJWTService("dev-key", "fleetdesk-dev", time.Hour)
	s.store = NewMemoryStore(tokens, WithClock(func() time.Time { return s.now }))

	users, err := ParseSeedUsers("driver@fleet.test:secret:driver")
	s.Require().NoError(err)
	s.seeded = users[0]
	s.Require().NoError(s.store.AddUser(s.seeded.ID, s.seeded.Email, s.seeded.Password))

	s.store.OnSessionChange(func(ev Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, ev)
	})
}

func (s *MemoryStoreSuite) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]EventKind, 0, len(s.events))
	for _, ev := range s.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (s *MemoryStoreSuite) TestExchangeCredentials() {
	s.Run("Given valid credentials When exchanged Then a session is issued and announced", func() {
		session, err := s.store.ExchangeCredentials(context.Background(), " Driver@Fleet.test ", "secret")
		s.Require().NoError(err)
		s.Require().NotNil(session)
		s.Equal(s.seeded.ID, session.UserID)
		s.NotEmpty(session.RefreshToken)
		s.Equal([]EventKind{EventSignedIn}, s.kinds())

		identity, err := s.store.CurrentIdentity(context.Background())
		s.Require().NoError(err)
		s.Equal(s.seeded.ID, identity.ID)
		s.Equal("driver@fleet.test", identity.Email)
	})

	s.Run("Given a wrong password When exchanged Then the provider message is returned", func() {
		_, err := s.store.ExchangeCredentials(context.Background(), "driver@fleet.test", "nope")
		var perr *ProviderError
		s.Require().True(errors.As(err, &perr))
		s.Equal("Invalid login credentials", perr.Error())
		s.ErrorIs(err, sentinel.ErrInvalidInput)
	})
}

func (s *MemoryStoreSuite) TestCurrentSession() {
	ctx := context.Background()

	s.Run("Given no sign-in When read Then there is no session", func() {
		session, err := s.store.CurrentSession(ctx)
		s.NoError(err)
		s.Nil(session)

		_, err = s.store.CurrentIdentity(ctx)
		s.ErrorIs(err, sentinel.ErrUnauthorized)
	})

	s.Run("Given an expired access token When read Then it is rotated and announced", func() {
		first, err := s.store.ExchangeCredentials(ctx, "driver@fleet.test", "secret")
		s.Require().NoError(err)

		s.now = s.now.Add(2 * time.Hour)
		rotated, err := s.store.CurrentSession(ctx)
		s.Require().NoError(err)
		s.Require().NotNil(rotated)
		s.NotEqual(first.AccessToken, rotated.AccessToken)
		s.Contains(s.kinds(), EventTokenRefreshed)
	})
}

func (s *MemoryStoreSuite) TestInvalidateSession() {
	ctx := context.Background()
	_, err := s.store.ExchangeCredentials(ctx, "driver@fleet.test", "secret")
	s.Require().NoError(err)

	s.Require().NoError(s.store.InvalidateSession(ctx))
	s.Require().NoError(s.store.InvalidateSession(ctx), "second invalidation is a no-op")

	session, err := s.store.CurrentSession(ctx)
	s.NoError(err)
	s.Nil(session)
	s.Equal([]EventKind{EventSignedIn, EventSignedOut}, s.kinds())
}

func (s *MemoryStoreSuite) TestDropSession() {
	ctx := context.Background()
	session, err := s.store.ExchangeCredentials(ctx, "driver@fleet.test", "secret")
	s.Require().NoError(err)

	s.Run("Given another session When dropping Then the held one survives", func() {
		s.False(s.store.DropSession(&models.Session{AccessToken: "someone-else"}))
		current, err := s.store.CurrentSession(ctx)
		s.Require().NoError(err)
		s.Equal(session.AccessToken, current.AccessToken)
	})

	s.Run("Given the held session When dropping Then it is gone without an event", func() {
		s.True(s.store.DropSession(session))
		s.False(s.store.DropSession(session), "second drop is a no-op")

		current, err := s.store.CurrentSession(ctx)
		s.NoError(err)
		s.Nil(current)
		s.Equal([]EventKind{EventSignedIn}, s.kinds())
	})
}

func (s *MemoryStoreSuite) TestUpdateUser() {
	ctx := context.Background()
	_, err := s.store.ExchangeCredentials(ctx, "driver@fleet.test", "secret")
	s.Require().NoError(err)

	s.Require().NoError(s.store.UpdateUser(s.seeded.ID, "renamed@fleet.test"))
	identity, err := s.store.CurrentIdentity(ctx)
	s.Require().NoError(err)
	s.Equal("renamed@fleet.test", identity.Email)
	s.Equal(EventUserUpdated, s.kinds()[len(s.kinds())-1])
}

func TestParseSeedUsers(t *testing.T) {
	suite.Run(t, new(seedUsersSuite))
}

type seedUsersSuite struct{ suite.Suite }

func (s *seedUsersSuite) TestParse() {
	users, err := ParseSeedUsers("a@x.test:pw:admin, b@x.test:pw2:fleet manager,")
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal("fleet manager", users[1].Role)

	again, err := ParseSeedUsers("A@x.test:other:driver")
	s.Require().NoError(err)
	s.Equal(users[0].ID, again[0].ID, "IDs derive from the normalized e-mail")

	_, err = ParseSeedUsers("broken-entry")
	s.ErrorIs(err, sentinel.ErrInvalidInput)
}
