package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harrylevesque/stationbook/internal/auth"
	"github.com/harrylevesque/stationbook/internal/crypto"
	"github.com/harrylevesque/stationbook/internal/models"
	"github.com/harrylevesque/stationbook/internal/storage"
	"github.com/harrylevesque/stationbook/internal/utils"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stationctl",
		Short:         "Administer a stationbook deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenKeyCmd(), newAccountCmd(), newSessionsCmd())
	return root
}

func newGenKeyCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Write a new hex master key",
		Long: `Generate a random 32-byte master key and write it hex encoded.

The server derives its session signing key from this file (or MASTER_KEY_HEX).
Replacing the key logs every visitor out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists, refusing to overwrite (use --force)", out)
			}
			if err := os.WriteFile(out, []byte(crypto.GenerateMasterKey()+"\n"), 0600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Master key written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "master.key", "output file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts and their roles",
	}
	cmd.AddCommand(newAccountCreateCmd(), newAccountSetRoleCmd())
	return cmd
}

func newAccountCreateCmd() *cobra.Command {
	var req auth.SignupRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account with a profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			account, err := auth.Register(cmd.Context(), store, req, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) as %s\n", account.Email, account.ID, req.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Role, "role", string(models.RoleUser), "role: user or owner")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAccountSetRoleCmd() *cobra.Command {
	var email, roleName string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role on an account's profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, ok := models.ParseRole(roleName)
			if !ok {
				return fmt.Errorf("role must be user or owner, got %q", roleName)
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			account, err := store.AccountByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(email)))
			if err != nil {
				return fmt.Errorf("find %s: %w", email, err)
			}
			if err := store.SetRole(cmd.Context(), account.ID, role, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", account.Email, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&roleName, "role", "", "role: user or owner")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain login sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.DeleteExpiredSessions(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
			return nil
		},
	})
	return cmd
}

func openStore() (*storage.Store, error) {
	cfg, err := utils.LoadConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.DatabasePath)
}
