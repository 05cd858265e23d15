package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leleuj/authgate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "authgate",
	Short: "Authentication gate for web requests",
	Long: `Authgate protects HTTP routes and Connect RPC procedures behind
pluggable authentication clients (bearer tokens, OIDC, login forms), with
session-backed handshakes and role-based access control.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
