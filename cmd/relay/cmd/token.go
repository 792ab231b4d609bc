package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/domain"
)

var tokenFlags struct {
	id       string
	username string
	email    string
}

// tokenCmd mints a session credential without going through Google, for
// local testing against a running server.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a session credential for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		creds, err := auth.NewCredentials(auth.CredentialConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
		})
		if err != nil {
			return err
		}

		username := tokenFlags.username
		if username == "" {
			username = tokenFlags.id
		}
		token, identity, err := creds.Issue(domain.Identity{
			ID:       tokenFlags.id,
			Username: username,
			Email:    tokenFlags.email,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Issued credential for %s (%s), valid for %s\n",
			identity.Username, identity.ID, auth.SessionTTL)
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.id, "id", "", "subject id to embed (required)")
	tokenCmd.Flags().StringVar(&tokenFlags.username, "username", "", "display name (defaults to the id)")
	tokenCmd.Flags().StringVar(&tokenFlags.email, "email", "", "email address")
	_ = tokenCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(tokenCmd)
}
