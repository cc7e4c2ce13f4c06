// Command fleetctl is a terminal client for the fleetdesk dashboard.
package main

import (
	"os"

	"fleetdesk/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
