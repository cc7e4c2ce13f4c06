package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fleetdesk/internal/auth/models"
	"fleetdesk/pkg/platform/httputil"
	"fleetdesk/pkg/requestcontext"
)

// AuthService is the auth state container as seen by the HTTP layer.
type AuthService interface {
	Snapshot() models.Snapshot
	SignIn(ctx context.Context, identifier, secret string) models.SignInResult
	SignOut(ctx context.Context)
	Refresh(ctx context.Context) models.Snapshot
}

type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Register mounts the auth routes. signIn middlewares wrap only the sign-in
// route.
func (h *AuthHandler) Register(r chi.Router, signIn ...func(http.Handler) http.Handler) {
	r.With(signIn...).Post("/auth/sign-in", h.HandleSignIn)
	r.Post("/auth/sign-out", h.HandleSignOut)
	r.Post("/auth/refresh", h.HandleRefresh)
	r.Get("/auth/state", h.HandleState)
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *SignInRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

// HandleSignIn answers 200 on success and 401 with the user-facing message
// otherwise. Blank fields are reported by the container, not rejected here.
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SignInRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result := h.auth.SignIn(ctx, req.Email, req.Password)
	if !result.Success {
		httputil.WriteJSON(w, http.StatusUnauthorized, SignInResponse{Error: result.Error})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SignInResponse{Success: true})
}

// HandleSignOut always succeeds; remote invalidation runs in the background.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.auth.SignOut(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	snap := h.auth.Refresh(r.Context())
	writeState(w, snap)
}

func (h *AuthHandler) HandleState(w http.ResponseWriter, _ *http.Request) {
	writeState(w, h.auth.Snapshot())
}

func writeState(w http.ResponseWriter, snap models.Snapshot) {
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, toStateView(snap))
}
