package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "fleetdesk/pkg/domain"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw    string
		want   Role
		wantOK bool
	}{
		{"driver", RoleDriver, true},
		{"  Driver ", RoleDriver, true},
		{"fleet manager", RoleFleetManager, true},
		{"Fleet_Manager", RoleFleetManager, true},
		{"call-centre", RoleCallCentre, true},
		{"cost  centre", RoleCostCentre, true},
		{"customer", RoleCustomer, true},
		{"ADMIN", RoleAdmin, true},
		{"", RoleUnknown, false},
		{"   ", RoleUnknown, false},
		{"mechanic", RoleUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseRole(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestSnapshotDerivedFields(t *testing.T) {
	userID := id.UserID(uuid.New())
	session := &Session{AccessToken: "token", UserID: userID}
	user := &Identity{ID: userID, Email: "a@b.com"}
	record := &UserRecord{ID: userID, Email: "a@b.com", Role: "driver"}

	t.Run("all three present is authenticated", func(t *testing.T) {
		snap := Snapshot{Session: session, User: user, UserRecord: record, IsHydrated: true}
		assert.True(t, snap.IsAuthenticated())
		assert.True(t, snap.HasRole())
		assert.Equal(t, RoleDriver, snap.Role())
	})

	t.Run("missing record is not authenticated", func(t *testing.T) {
		snap := Snapshot{Session: session, User: user, IsHydrated: true}
		assert.False(t, snap.IsAuthenticated())
		assert.False(t, snap.HasRole())
		assert.Equal(t, RoleUnknown, snap.Role())
	})

	t.Run("empty role is authenticated but carries no role", func(t *testing.T) {
		snap := Snapshot{Session: session, User: user, UserRecord: &UserRecord{ID: userID}}
		assert.True(t, snap.IsAuthenticated())
		assert.False(t, snap.HasRole())
	})
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()

	var missing *Session
	assert.True(t, missing.Expired(now))
	assert.False(t, (&Session{}).Expired(now), "zero expiry means unknown, not expired")
	assert.True(t, (&Session{ExpiresAt: now}).Expired(now))
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now))
}

func TestUserRecordValid(t *testing.T) {
	var missing *UserRecord
	assert.False(t, missing.Valid())
	assert.False(t, (&UserRecord{Role: ""}).Valid())
	assert.False(t, (&UserRecord{Role: "mechanic"}).Valid())
	assert.True(t, (&UserRecord{Role: "cost centre"}).Valid())
}
