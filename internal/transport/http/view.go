package httptransport

import (
	"time"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/auth/navigation"
)

// StateView is the public read model of the auth state. Tokens never leave
// the process.
type StateView struct {
	IsLoading       bool       `json:"is_loading"`
	IsHydrated      bool       `json:"is_hydrated"`
	IsAuthenticated bool       `json:"is_authenticated"`
	User            *UserView  `json:"user,omitempty"`
	Role            string     `json:"role,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func toStateView(snap models.Snapshot) StateView {
	view := StateView{
		IsLoading:       snap.IsLoading,
		IsHydrated:      snap.IsHydrated,
		IsAuthenticated: snap.IsAuthenticated(),
	}
	if !view.IsAuthenticated {
		return view
	}
	view.User = &UserView{ID: snap.User.ID.String(), Email: snap.User.Email}
	if role := snap.Role(); role != models.RoleUnknown {
		view.Role = role.String()
	}
	if !snap.Session.ExpiresAt.IsZero() {
		expires := snap.Session.ExpiresAt.UTC()
		view.ExpiresAt = &expires
	}
	return view
}

type SignInResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type PageView struct {
	View  string                 `json:"view"`
	Title string                 `json:"title,omitempty"`
	Role  string                 `json:"role,omitempty"`
	Menu  []navigation.MenuEntry `json:"menu,omitempty"`
}
