package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fleetdesk/internal/auth/device"
	"fleetdesk/internal/auth/guard"
)

type pageView struct {
	View  string `json:"view"`
	Title string `json:"title"`
	Role  string `json:"role"`
	Menu  []struct {
		Page  string `json:"page"`
		Label string `json:"label"`
		Path  string `json:"path"`
	} `json:"menu"`
}

func newMenuCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "List the dashboard pages of the signed-in role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			return guardedPage(ctx, opts, func() error {
				resp, err := opts.client().Do(ctx, http.MethodGet, "/dashboard", nil)
				if err != nil {
					return err
				}
				if err := guarded(resp); err != nil {
					return err
				}
				if opts.json {
					return writeRaw(cmd.OutOrStdout(), resp)
				}

				var view pageView
				if err := resp.Decode(&view); err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "Role: %s\n\n", view.Role)
				fmt.Fprintln(tw, "PAGE\tLABEL\tPATH")
				for _, entry := range view.Menu {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Page, entry.Label, entry.Path)
				}
				return tw.Flush()
			})
		},
	}
}

func newOpenCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <page>",
		Short: "Check whether the signed-in role may open a dashboard page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			return guardedPage(ctx, opts, func() error {
				resp, err := opts.client().Do(ctx, http.MethodGet, "/dashboard/"+url.PathEscape(args[0]), nil)
				if err != nil {
					return err
				}
				if err := guarded(resp); err != nil {
					return err
				}
				if opts.json {
					return writeRaw(cmd.OutOrStdout(), resp)
				}

				var view pageView
				if err := resp.Decode(&view); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: allowed for %s\n", view.Title, view.Role)
				return nil
			})
		},
	}
}

// redirect records where a guard sent the terminal instead of the page.
type redirect struct {
	target string
}

func (r *redirect) Replace(target string) {
	r.target = target
}

// guardedPage applies the protected-route guard to the server's auth state
// before render asks for a page, so a signed-out or loading server is
// reported without requesting the page at all.
func guardedPage(ctx context.Context, opts *globalOptions, render func() error) error {
	resp, err := opts.client().Do(ctx, http.MethodGet, "/auth/state", nil)
	if err != nil {
		return err
	}
	if err := guarded(resp); err != nil {
		return err
	}
	var view stateView
	if err := resp.Decode(&view); err != nil {
		return err
	}

	nav := &redirect{}
	var renderErr error
	phase := guard.Render(guard.KindProtected, view.snapshot(), guard.DefaultRoutes(), device.SurfaceDashboard, nav,
		func() { renderErr = render() })
	switch phase {
	case guard.PhasePreHydration:
		return ErrLoading
	case guard.PhaseRedirecting:
		return fmt.Errorf("%w: redirected to %s", ErrNotSignedIn, nav.target)
	}
	return renderErr
}
