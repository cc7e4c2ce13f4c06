package models

import "strings"

// Role is the closed set of application roles. Access control and dashboard
// menus switch over it exhaustively.
type Role string

const (
	RoleUnknown      Role = ""
	RoleDriver       Role = "driver"
	RoleFleetManager Role = "fleet manager"
	RoleCallCentre   Role = "call centre"
	RoleCustomer     Role = "customer"
	RoleCostCentre   Role = "cost centre"
	RoleAdmin        Role = "admin"
)

// Roles lists every recognised role in display order.
var Roles = []Role{
	RoleDriver,
	RoleFleetManager,
	RoleCallCentre,
	RoleCustomer,
	RoleCostCentre,
	RoleAdmin,
}

// ParseRole normalises a stored role string. Matching is case-insensitive,
// surrounding space is ignored and "_" or "-" count as a space, so
// "Fleet_Manager" and "fleet-manager" both parse as RoleFleetManager.
// Empty and unrecognised values return RoleUnknown, false.
func ParseRole(raw string) (Role, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("_", " ", "-", " ").Replace(normalized)
	normalized = strings.Join(strings.Fields(normalized), " ")
	if normalized == "" {
		return RoleUnknown, false
	}
	for _, role := range Roles {
		if string(role) == normalized {
			return role, true
		}
	}
	return RoleUnknown, false
}

func (r Role) String() string {
	return string(r)
}
