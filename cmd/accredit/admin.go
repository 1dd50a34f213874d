package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moguedu/accredit/pkg/api/store"
	"github.com/moguedu/accredit/pkg/auth"
	"github.com/moguedu/accredit/pkg/config"
	"github.com/moguedu/accredit/pkg/credential"
)

var (
	adminUsername string
	adminPassword string
	adminFullName string
	adminRole     string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage back office accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd.Context(), func(ctx context.Context, svc auth.Service) error {
			admin, err := svc.CreateAdmin(ctx, config.AdminSeed{
				Username: adminUsername,
				Password: adminPassword,
				FullName: adminFullName,
				Role:     adminRole,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created admin %q (id %d)\n", admin.Username, admin.ID)

			return nil
		})
	},
}

var adminPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Reset an admin's password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd.Context(), func(ctx context.Context, svc auth.Service) error {
			if err := svc.SetPassword(ctx, adminUsername, adminPassword); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %q\n", adminUsername)

			return nil
		})
	},
}

var adminDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Deactivate an admin account and end its sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, false)
	},
}

var adminEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Reactivate an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, true)
	},
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminFullName, "full-name", "", "display name")
	adminCreateCmd.Flags().StringVar(&adminRole, "role", config.DefaultAdminRole, "account role")

	for _, c := range []*cobra.Command{adminCreateCmd, adminPasswdCmd} {
		c.Flags().StringVar(&adminPassword, "password", "", "password (at least 6 characters)")
		_ = c.MarkFlagRequired("password")
	}

	for _, c := range []*cobra.Command{adminCreateCmd, adminPasswdCmd, adminDisableCmd, adminEnableCmd} {
		c.Flags().StringVar(&adminUsername, "username", "", "admin username")
		_ = c.MarkFlagRequired("username")
		adminCmd.AddCommand(c)
	}

	rootCmd.AddCommand(adminCmd)
}

func setActive(cmd *cobra.Command, active bool) error {
	return withAuth(cmd.Context(), func(ctx context.Context, svc auth.Service) error {
		if err := svc.SetActive(ctx, adminUsername, active); err != nil {
			return err
		}

		state := "disabled"
		if active {
			state = "enabled"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "admin %q %s\n", adminUsername, state)

		return nil
	})
}

// withAuth opens the store for a one-shot operator command.
func withAuth(ctx context.Context, fn func(context.Context, auth.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	hasher := credential.NewHasher(credential.ParamsFromConfig(cfg.Auth.Argon2))
	svc := auth.NewService(log, st, hasher, auth.Options{
		SessionTTL: cfg.Auth.SessionTTL,
	})

	return fn(ctx, svc)
}
