package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleetdesk/internal/auth/guard"
	"fleetdesk/internal/auth/metrics"
	"fleetdesk/internal/auth/navigation"
	"fleetdesk/pkg/platform/httputil"
)

// PageHandler serves the guarded views. Every handler behind AuthGuard reads
// the snapshot the guard admitted the request with, never a fresh one.
type PageHandler struct {
	reader  guard.Reader
	routes  guard.Routes
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPageHandler(reader guard.Reader, routes guard.Routes, logger *slog.Logger, m *metrics.Metrics) *PageHandler {
	return &PageHandler{reader: reader, routes: routes, logger: logger, metrics: m}
}

func (h *PageHandler) Register(r chi.Router) {
	opts := []guard.Option{guard.WithMetrics(h.metrics)}

	r.With(guard.GuestGuard(h.reader, h.routes, h.logger, opts...)).
		Get(h.routes.Login, h.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(guard.AuthGuard(h.reader, h.routes, h.logger, opts...))
		r.Get(h.routes.Home, h.HandleDashboard)
		r.With(guard.PageGuard(pageFromURL, h.logger)).
			Get(h.routes.Home+"/{page}", h.HandlePage)
		r.Get(h.routes.MobileHome, h.HandleMobileHome)
	})
}

func pageFromURL(r *http.Request) (navigation.Page, error) {
	return navigation.ParsePage(chi.URLParam(r, "page"))
}

func (h *PageHandler) HandleLogin(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, PageView{View: "login"})
}

func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.writeHome(w, r, "dashboard")
}

func (h *PageHandler) HandleMobileHome(w http.ResponseWriter, r *http.Request) {
	h.writeHome(w, r, "mobile_home")
}

func (h *PageHandler) writeHome(w http.ResponseWriter, r *http.Request, view string) {
	snap, _ := guard.SnapshotFromContext(r.Context())
	role := snap.Role()
	httputil.WriteJSON(w, http.StatusOK, PageView{
		View: view,
		Role: role.String(),
		Menu: navigation.MenuFor(role),
	})
}

func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromURL(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	snap, _ := guard.SnapshotFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, PageView{
		View:  string(page),
		Title: page.Label(),
		Role:  snap.Role().String(),
	})
}
