package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moguedu/accredit/pkg/auth"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage admin login sessions",
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired sessions once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd.Context(), func(ctx context.Context, svc auth.Service) error {
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				return fmt.Errorf("purging sessions: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired session(s)\n", n)

			return nil
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsPurgeCmd)
	rootCmd.AddCommand(sessionsCmd)
}
