// Package navigation maps roles to the dashboard pages they may open and the
// menu they see. The mapping is a switch over the closed role set; a role
// missing from it gets nothing.
package navigation

import (
	"fmt"
	"slices"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/sentinel"
)

type Page string

const (
	PageDashboard   Page = "dashboard"
	PageBreakdowns  Page = "breakdowns"
	PageVehicles    Page = "vehicles"
	PageDrivers     Page = "drivers"
	PageInspections Page = "inspections"
	PageQuotations  Page = "quotations"
	PageTrips       Page = "trips"
	PageCostCentres Page = "cost-centres"
	PageUsers       Page = "users"
	PageProfile     Page = "profile"
)

// Pages lists every page in menu order.
var Pages = []Page{
	PageDashboard,
	PageBreakdowns,
	PageVehicles,
	PageDrivers,
	PageInspections,
	PageQuotations,
	PageTrips,
	PageCostCentres,
	PageUsers,
	PageProfile,
}

var labels = map[Page]string{
	PageDashboard:   "Dashboard",
	PageBreakdowns:  "Breakdowns",
	PageVehicles:    "Vehicles",
	PageDrivers:     "Drivers",
	PageInspections: "Inspections",
	PageQuotations:  "Quotations",
	PageTrips:       "Trips",
	PageCostCentres: "Cost Centres",
	PageUsers:       "Users",
	PageProfile:     "Profile",
}

func ParsePage(s string) (Page, error) {
	p := Page(s)
	if _, ok := labels[p]; !ok {
		return "", fmt.Errorf("unknown page %q: %w", s, sentinel.ErrNotFound)
	}
	return p, nil
}

// Path is the dashboard route of the page.
func (p Page) Path() string {
	if p == PageDashboard {
		return "/dashboard"
	}
	return "/dashboard/" + string(p)
}

func (p Page) Label() string {
	return labels[p]
}

// MenuEntry is one item of a role's menu.
type MenuEntry struct {
	Page  Page   `json:"page"`
	Label string `json:"label"`
	Path  string `json:"path"`
}

// pagesFor is the single source of role access.
func pagesFor(role models.Role) []Page {
	switch role {
	case models.RoleDriver:
		return []Page{PageDashboard, PageBreakdowns, PageTrips, PageInspections, PageProfile}
	case models.RoleFleetManager:
		return []Page{PageDashboard, PageBreakdowns, PageVehicles, PageDrivers, PageInspections, PageQuotations, PageTrips, PageProfile}
	case models.RoleCallCentre:
		return []Page{PageDashboard, PageBreakdowns, PageVehicles, PageDrivers, PageProfile}
	case models.RoleCustomer:
		return []Page{PageDashboard, PageBreakdowns, PageQuotations, PageProfile}
	case models.RoleCostCentre:
		return []Page{PageDashboard, PageQuotations, PageCostCentres, PageProfile}
	case models.RoleAdmin:
		return Pages
	case models.RoleUnknown:
		return nil
	default:
		return nil
	}
}

// MenuFor returns the menu of role in display order.
func MenuFor(role models.Role) []MenuEntry {
	allowed := pagesFor(role)
	menu := make([]MenuEntry, 0, len(allowed))
	for _, p := range Pages {
		if slices.Contains(allowed, p) {
			menu = append(menu, MenuEntry{Page: p, Label: p.Label(), Path: p.Path()})
		}
	}
	return menu
}

// Allows reports whether role may open page.
func Allows(role models.Role, page Page) bool {
	return slices.Contains(pagesFor(role), page)
}
