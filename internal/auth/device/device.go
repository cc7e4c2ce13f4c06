// Package device classifies the client behind a request. Guest redirects
// depend on it: the dashboard and the mobile client have different homes.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Surface is the client a request comes from.
type Surface string

const (
	SurfaceDashboard Surface = "dashboard"
	SurfaceMobile    Surface = "mobile"
)

// mobileAppToken is sent in the User-Agent of the fleet mobile app, whose
// embedded web view otherwise looks like any phone browser.
const mobileAppToken = "fleetdesk-mobile"

// DetectSurface maps a User-Agent to a surface. Phones and tablets count as
// mobile; everything else, including an empty header, is the dashboard.
func DetectSurface(userAgent string) Surface {
	if userAgent == "" {
		return SurfaceDashboard
	}
	if strings.Contains(strings.ToLower(userAgent), mobileAppToken) {
		return SurfaceMobile
	}
	if useragent.New(userAgent).Mobile() {
		return SurfaceMobile
	}
	return SurfaceDashboard
}

// DisplayName renders a User-Agent as "Browser on OS" for logs,
// e.g. "Chrome on macOS" or "Safari on iPhone".
func DisplayName(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
