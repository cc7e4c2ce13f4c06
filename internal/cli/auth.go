package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"fleetdesk/internal/auth/models"
	id "fleetdesk/pkg/domain"
)

// The shapes below follow the dashboard's JSON views.
type signInResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type stateView struct {
	IsLoading       bool   `json:"is_loading"`
	IsHydrated      bool   `json:"is_hydrated"`
	IsAuthenticated bool   `json:"is_authenticated"`
	Role            string `json:"role"`
	ExpiresAt       string `json:"expires_at"`
	User            *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// snapshot rebuilds the auth state the view describes. Tokens never leave
// the server, so the session only names its user.
func (v stateView) snapshot() models.Snapshot {
	snap := models.Snapshot{IsLoading: v.IsLoading, IsHydrated: v.IsHydrated}
	if !v.IsAuthenticated || v.User == nil {
		return snap
	}
	userID, err := id.ParseUserID(v.User.ID)
	if err != nil {
		return snap
	}
	snap.Session = &models.Session{UserID: userID}
	snap.User = &models.Identity{ID: userID, Email: v.User.Email}
	snap.UserRecord = &models.UserRecord{ID: userID, Email: v.User.Email, Role: v.Role}
	return snap
}

func newLoginCommand(opts *globalOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with e-mail and password",
		Long: `Sign in to the dashboard. The password is read from --password or,
when that is empty, from FLEETDESK_PASSWORD.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("FLEETDESK_PASSWORD")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			resp, err := opts.client().Do(ctx, http.MethodPost, "/auth/sign-in", map[string]string{
				"email":    email,
				"password": password,
			})
			if err != nil {
				return err
			}
			if opts.json {
				return writeRaw(cmd.OutOrStdout(), resp)
			}

			var result signInResponse
			if resp.Status == http.StatusOK || resp.Status == http.StatusUnauthorized {
				if err := resp.Decode(&result); err != nil {
					return err
				}
			} else if err := guarded(resp); err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "account password (env FLEETDESK_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			resp, err := opts.client().Do(ctx, http.MethodPost, "/auth/sign-out", nil)
			if err != nil {
				return err
			}
			if resp.Status != http.StatusNoContent {
				return guarded(resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showState(cmd, opts, http.MethodGet, "/auth/state")
		},
	}
}

func newRefreshCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-validate the current session and show the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showState(cmd, opts, http.MethodPost, "/auth/refresh")
		},
	}
}

func showState(cmd *cobra.Command, opts *globalOptions, method, path string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	resp, err := opts.client().Do(ctx, method, path, nil)
	if err != nil {
		return err
	}
	if err := guarded(resp); err != nil {
		return err
	}
	if opts.json {
		return writeRaw(cmd.OutOrStdout(), resp)
	}

	var view stateView
	if err := resp.Decode(&view); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case !view.IsHydrated:
		fmt.Fprintln(out, "Loading")
	case !view.IsAuthenticated || view.User == nil:
		fmt.Fprintln(out, "Not signed in")
	default:
		fmt.Fprintf(out, "User:    %s\n", view.User.Email)
		fmt.Fprintf(out, "ID:      %s\n", view.User.ID)
		fmt.Fprintf(out, "Role:    %s\n", view.Role)
		if view.ExpiresAt != "" {
			fmt.Fprintf(out, "Expires: %s\n", view.ExpiresAt)
		}
	}
	return nil
}

func writeRaw(w io.Writer, resp *Response) error {
	_, err := w.Write(resp.Body)
	return err
}
