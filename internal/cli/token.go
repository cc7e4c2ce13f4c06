package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "fleetdesk/internal/jwt_token"
	id "fleetdesk/pkg/domain"
)

// Matches the config default of DEV_SIGNING_KEY.
const devSigningKey = "dev-secret-key-change-in-production"

type tokenOutput struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	ExpiresAt string `json:"expires_at"`
}

func newTokenCommand(opts *globalOptions) *cobra.Command {
	var (
		userID     string
		email      string
		signingKey string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Mint an HS256 access token signed like the in-memory credential
provider. These tokens use the development signing key and are useless
against a production credential service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid := id.UserID(uuid.New())
			if userID != "" {
				parsed, err := id.ParseUserID(userID)
				if err != nil {
					return fmt.Errorf("--user-id: %w", err)
				}
				uid = parsed
			}

			svc := jwttoken.NewJWTService(signingKey, "fleetdesk-dev", ttl)
			token, expiresAt, err := svc.GenerateAccessToken(time.Now(), uid, strings.ToLower(strings.TrimSpace(email)))
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}

			out := tokenOutput{
				Token:     token,
				UserID:    uid.String(),
				Email:     email,
				ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
			}
			if opts.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "User ID:    %s\n", out.UserID)
			fmt.Fprintf(w, "Expires At: %s\n\n", out.ExpiresAt)
			fmt.Fprintln(w, out.Token)
			return nil
		},
	}

	key := os.Getenv("DEV_SIGNING_KEY")
	if key == "" {
		key = devSigningKey
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user ID (UUID); generated when empty")
	cmd.Flags().StringVar(&email, "email", "", "e-mail claim")
	cmd.Flags().StringVar(&signingKey, "signing-key", key, "HS256 signing key (env DEV_SIGNING_KEY)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
