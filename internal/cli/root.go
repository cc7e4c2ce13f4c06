// Package cli implements fleetctl, a terminal client for the fleetdesk
// dashboard backend.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type globalOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

// NewRootCommand builds the fleetctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "Terminal client for the fleetdesk dashboard",
		Long: `fleetctl signs in to a fleetdesk dashboard server and shows what the
signed-in role can reach.

Examples:
  # Sign in and list the menu
  fleetctl login --email dispatch@fleet.example
  fleetctl menu

  # Check a page without opening it
  fleetctl open vehicles
`,
		SilenceUsage: true,
	}

	server := os.Getenv("FLEETDESK_URL")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "dashboard base URL (env FLEETDESK_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newRefreshCommand(opts),
		newMenuCommand(opts),
		newOpenCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

func (o *globalOptions) client() *Client {
	return NewClient(o.server, o.timeout)
}
