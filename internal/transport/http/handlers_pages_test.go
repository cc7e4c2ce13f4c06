package httptransport

import (
	"net/http"

	"fleetdesk/internal/auth/models"
	"fleetdesk/internal/auth/navigation"
)

const mobileUA = "fleetdesk-mobile/2.4 (Android 14)"

func (s *RouterSuite) TestLogin() {
	s.Run("Given a signed-out user When opening login Then the form is rendered", func() {
		s.mockAuth.EXPECT().Snapshot().Return(signedOut())

		w := s.do(http.MethodGet, "/login", "")

		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"view":"login"}`, w.Body.String())
	})

	s.Run("Given a signed-in dashboard user When opening login Then redirect to the dashboard", func() {
		s.mockAuth.EXPECT().Snapshot().Return(s.signedIn("admin"))

		w := s.do(http.MethodGet, "/login", "")

		s.Equal(http.StatusSeeOther, w.Code)
		s.Equal("/dashboard", w.Header().Get("Location"))
	})

	s.Run("Given a signed-in mobile user When opening login Then redirect to the mobile home", func() {
		s.mockAuth.EXPECT().Snapshot().Return(s.signedIn("driver"))

		w := s.do(http.MethodGet, "/login", "", "User-Agent", mobileUA)

		s.Equal(http.StatusSeeOther, w.Code)
		s.Equal("/m/home", w.Header().Get("Location"))
	})

	s.Run("Given hydration has not finished When opening login Then the loading view is served", func() {
		s.mockAuth.EXPECT().Snapshot().Return(models.Snapshot{IsLoading: true})

		w := s.do(http.MethodGet, "/login", "")

		s.Equal(http.StatusServiceUnavailable, w.Code)
		s.Equal("1", w.Header().Get("Retry-After"))
	})
}

func (s *RouterSuite) TestDashboard() {
	s.Run("Given a signed-out user When opening the dashboard Then redirect to login", func() {
		s.mockAuth.EXPECT().Snapshot().Return(signedOut())

		w := s.do(http.MethodGet, "/dashboard", "")

		s.Equal(http.StatusSeeOther, w.Code)
		s.Equal("/login", w.Header().Get("Location"))
	})

	s.Run("Given a customer When opening the dashboard Then the customer menu is returned", func() {
		s.mockAuth.EXPECT().Snapshot().Return(s.signedIn("customer"))

		w := s.do(http.MethodGet, "/dashboard", "")

		s.Equal(http.StatusOK, w.Code)
		var view PageView
		s.decode(w, &view)
		s.Equal("dashboard", view.View)
		s.Equal("customer", view.Role)
		s.Equal(navigation.MenuFor(models.RoleCustomer), view.Menu)
	})

	s.Run("Given a driver on mobile When opening the mobile home Then it is served", func() {
		s.mockAuth.EXPECT().Snapshot().Return(s.signedIn("driver"))

		w := s.do(http.MethodGet, "/m/home", "", "User-Agent", mobileUA)

		s.Equal(http.StatusOK, w.Code)
		var view PageView
		s.decode(w, &view)
		s.Equal("mobile_home", view.View)
	})
}

func (s *RouterSuite) TestDashboardPages() {
	cases := []struct {
		name string
		role string
		path string
		want int
	}{
		{"fleet manager opens vehicles", "fleet manager", "/dashboard/vehicles", http.StatusOK},
		{"driver opens vehicles", "driver", "/dashboard/vehicles", http.StatusForbidden},
		{"admin opens users", "admin", "/dashboard/users", http.StatusOK},
		{"cost centre opens cost centres", "cost centre", "/dashboard/cost-centres", http.StatusOK},
		{"anyone opens an unknown page", "admin", "/dashboard/hangar", http.StatusNotFound},
	}

	for _, tc := range cases {
		s.Run("Given a "+tc.role+" When "+tc.name+" Then the page guard decides", func() {
			s.mockAuth.EXPECT().Snapshot().Return(s.signedIn(tc.role))

			w := s.do(http.MethodGet, tc.path, "")

			s.Equal(tc.want, w.Code)
		})
	}

	s.Run("Given an allowed page When opened Then its title is returned", func() {
		s.mockAuth.EXPECT().Snapshot().Return(s.signedIn("call centre"))

		w := s.do(http.MethodGet, "/dashboard/breakdowns", "")

		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"view":"breakdowns","title":"Breakdowns","role":"call centre"}`, w.Body.String())
	})
}
