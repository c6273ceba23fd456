package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbgallet/calsync/internal/auth"
	"github.com/fbgallet/calsync/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize calsync against Google",
	Long: `Run the OAuth authorization flow and cache the resulting token.

Expects the OAuth client secrets (credentials.json, downloaded from the
Google Cloud console) in the config directory. The flow opens a browser
window; the granted token is cached as token.json next to the credentials
and refreshed automatically on later runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := auth.Client(cmd.Context()); err != nil {
			return err
		}
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		fmt.Printf("Authorized. Token cached in %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
