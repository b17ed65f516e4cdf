package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fleet-dashboard/internal/backend"
	"fleet-dashboard/internal/session"
)

func newLoginCmd(app func() *app) *cobra.Command {
	var creds backend.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with the configured role. The password is kept sealed next to
the session so the token can be renewed by logging in again.

Examples:
  fleetctl login --username alice --password secret --customer acme
  fleetctl login --role manager --username ops --password secret --manager fleetco`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if creds.Username == "" || creds.Password == "" {
				return errors.New("--username and --password are required")
			}
			if err := a.manager.Login(cmd.Context(), a.role(), creds); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			printf(cmd, "Logged in as %s (%s)\n", creds.Username, a.role())
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Username, "username", "", "user name")
	cmd.Flags().StringVar(&creds.Password, "password", "", "password")
	cmd.Flags().StringVar(&creds.Customer, "customer", "", "customer account (client role)")
	cmd.Flags().StringVar(&creds.Manager, "manager", "", "manager account (manager role)")
	return cmd
}

func newWhoamiCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			rec, err := a.restore(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string]any{
				"username": rec.Username,
				"role":     string(rec.Role),
			}
			if rec.Customer != "" {
				out["customer"] = rec.Customer
			}
			if rec.Manager != "" {
				out["manager"] = rec.Manager
			}
			if exp, err := session.TokenExpiry(rec.Token); err == nil {
				out["expires"] = exp.Local().Format(time.RFC3339)
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(out)
		},
	}
}

func newRefreshCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Trade the stored token for a new one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.manager.Refresh(cmd.Context()); err != nil {
				if target := a.manager.Redirect(); target != "" {
					return fmt.Errorf("session ended (%w), log in again", err)
				}
				return fmt.Errorf("refresh failed: %w", err)
			}
			if exp, err := session.TokenExpiry(a.manager.Token()); err == nil {
				printf(cmd, "Token refreshed, valid until %s\n", exp.Local().Format(time.RFC3339))
				return nil
			}
			printf(cmd, "Token refreshed\n")
			return nil
		},
	}
}

func newLogoutCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session of the role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if _, err := a.restore(cmd.Context()); err != nil {
				if errors.Is(err, session.ErrNoSession) {
					printf(cmd, "Not logged in\n")
					return nil
				}
				return err
			}
			if err := a.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			printf(cmd, "Logged out\n")
			return nil
		},
	}
}
