// Package guard gates routes on the auth state. A guard is in one of three
// phases: before hydration it shows a placeholder and never navigates; after
// hydration it either lets the request through or redirects it.
package guard

import (
	"fleetdesk/internal/auth/device"
	"fleetdesk/internal/auth/models"
)

// Kind selects the guard's predicate.
type Kind int

const (
	// KindProtected admits authenticated users with a role (AuthGuard).
	KindProtected Kind = iota
	// KindGuestOnly admits everyone else (GuestGuard).
	KindGuestOnly
)

func (k Kind) String() string {
	switch k {
	case KindProtected:
		return "auth"
	case KindGuestOnly:
		return "guest"
	default:
		return "unknown"
	}
}

type Phase string

const (
	PhasePreHydration Phase = "pre_hydration"
	PhaseAllowed      Phase = "allowed"
	PhaseRedirecting  Phase = "redirecting"
)

// Routes are the redirect targets.
type Routes struct {
	Login      string
	Home       string
	MobileHome string
}

func DefaultRoutes() Routes {
	return Routes{
		Login:      "/login",
		Home:       "/dashboard",
		MobileHome: "/m/home",
	}
}

// homeFor returns the authenticated landing page of a client surface.
func (r Routes) homeFor(surface device.Surface) string {
	if surface == device.SurfaceMobile && r.MobileHome != "" {
		return r.MobileHome
	}
	return r.Home
}

// Decision is what a guard does with one request. Target is set only when
// redirecting.
type Decision struct {
	Phase  Phase
	Target string
}

// Evaluate decides for a snapshot. For any hydrated snapshot exactly one of
// the two kinds allows, and the other redirects.
func Evaluate(kind Kind, snap models.Snapshot, routes Routes, surface device.Surface) Decision {
	if !snap.IsHydrated {
		return Decision{Phase: PhasePreHydration}
	}

	signedIn := snap.HasRole()
	switch kind {
	case KindGuestOnly:
		if signedIn {
			return Decision{Phase: PhaseRedirecting, Target: routes.homeFor(surface)}
		}
		return Decision{Phase: PhaseAllowed}
	default:
		if signedIn {
			return Decision{Phase: PhaseAllowed}
		}
		return Decision{Phase: PhaseRedirecting, Target: routes.Login}
	}
}

// Navigator performs a replacing navigation, the way a client router does.
type Navigator interface {
	Replace(target string)
}

// Render applies a decision for non-HTTP consumers such as the CLI: render
// is called when allowed, nav.Replace when redirecting, and neither before
// hydration.
func Render(kind Kind, snap models.Snapshot, routes Routes, surface device.Surface, nav Navigator, render func()) Phase {
	decision := Evaluate(kind, snap, routes, surface)
	switch decision.Phase {
	case PhaseAllowed:
		render()
	case PhaseRedirecting:
		nav.Replace(decision.Target)
	case PhasePreHydration:
	}
	return decision.Phase
}
