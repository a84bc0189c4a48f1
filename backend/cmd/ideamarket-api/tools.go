package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/itchan-dev/ideamarket/backend/internal/setup"
	"github.com/itchan-dev/ideamarket/backend/internal/storage/pg"
	"github.com/itchan-dev/ideamarket/shared/domain"
	sharedpg "github.com/itchan-dev/ideamarket/shared/storage/pg"
)

const (
	envAdminPassword = "IDEAMARKET_ADMIN_PASSWORD"
	envNewPassword   = "IDEAMARKET_NEW_PASSWORD"
)

// withDeps runs fn against a fully wired dependency set on a small pool.
func withDeps(cmd *cobra.Command, load loader, fn func(deps *setup.Dependencies) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	deps, err := setup.SetupDependencies(cmd.Context(), cfg, sharedpg.LightweightConnectionConfig())
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(deps)
}

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			storage, err := pg.New(cmd.Context(), cfg.Pg(), sharedpg.LightweightConnectionConfig())
			if err != nil {
				return err
			}
			defer storage.Cleanup()
			return storage.Migrate(cmd.Context())
		},
	}
}

func sweepCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-blacklist",
		Short: "Delete expired blacklist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(deps *setup.Dependencies) error {
				removed, err := deps.Auth.SweepBlacklist(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", removed)
				return nil
			})
		},
	}
}

func revokeUserCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-user <user-id>",
		Short: "Revoke every token issued to a user so far",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userId, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userId <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return withDeps(cmd, load, func(deps *setup.Dependencies) error {
				if err := deps.Auth.RevokeUserTokens(cmd.Context(), userId); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked all tokens of user %d\n", userId)
				return nil
			})
		},
	}
}

func createAdminCmd(load loader) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Long:  "Create an admin account. The password is read from " + envAdminPassword + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(envAdminPassword)
			if password == "" {
				return fmt.Errorf("%s is not set", envAdminPassword)
			}
			return withDeps(cmd, load, func(deps *setup.Dependencies) error {
				user, err := deps.Auth.CreateAdmin(cmd.Context(), domain.Credentials{Email: email, Password: password})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", user.Email, user.Id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func resetPasswordCmd(load loader) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password for an account",
		Long: `Set a new password for an account and revoke its tokens.
This clears the reset requirement set by audit-passwords --apply.
The password is read from ` + envNewPassword + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(envNewPassword)
			if password == "" {
				return fmt.Errorf("%s is not set", envNewPassword)
			}
			return withDeps(cmd, load, func(deps *setup.Dependencies) error {
				user, err := deps.Auth.ResetPassword(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password of %s (id %d) reset\n", user.Email, user.Id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func auditPasswordsCmd(load loader) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "audit-passwords",
		Short: "List accounts with legacy password hashes",
		Long: `List accounts whose stored hash uses the legacy scheme.
With --apply those accounts are flagged and must reset their password
before they can log in again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, load, func(deps *setup.Dependencies) error {
				users, flagged, err := deps.Auth.AuditPasswords(cmd.Context(), !apply)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, u := range users {
					fmt.Fprintf(out, "%d\t%s\n", u.Id, u.Email)
				}
				if apply {
					fmt.Fprintf(out, "%d legacy accounts, %d newly flagged\n", len(users), flagged)
				} else {
					fmt.Fprintf(out, "%d legacy accounts (dry run, use --apply to flag them)\n", len(users))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "flag the accounts instead of only listing them")
	return cmd
}
