package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/quickfix/quickfix-api/internal/services/identity"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Roles offered at sign-up. Providers are pointed at listing registration.
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
)

// readyTimeout bounds the wait for the provider status of a signed-in user
const readyTimeout = 10 * time.Second

// credentials holds the email/password flags of the auth commands
type credentials struct {
	email    string
	password string
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&c.password, "password", "", "Account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
}

// resolve reads the password from in when no flag was given.
func (c *credentials) resolve(cmd *cobra.Command) error {
	if c.password != "" {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	c.password = strings.TrimRight(line, "\r\n")
	return nil
}

func newSignUpCmd(opts *options) *cobra.Command {
	var creds credentials
	var phone, role string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToLower(strings.TrimSpace(role))
			if role != RoleCustomer && role != RoleProvider {
				return fmt.Errorf("--role must be %s or %s", RoleCustomer, RoleProvider)
			}
			if err := creds.resolve(cmd); err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				id, err := app.Session.SignUp(ctx, creds.email, creds.password)
				if err != nil {
					return err
				}
				if _, err := app.Profiles.Ensure(ctx, id.UID, id.Email, strings.TrimSpace(phone)); err != nil {
					app.Logger.Warn("profile_ensure_failed", zap.Error(err))
				}

				out := cmd.OutOrStdout()
				if opts.json {
					return printJSON(out, map[string]any{"user": id, "role": role})
				}
				fmt.Fprintf(out, "Signed up as %s (%s)\n", id.Email, role)
				if role == RoleProvider {
					fmt.Fprintln(out, "Next: register your listing with `quickfix listings create`")
				}
				return nil
			})
		},
	}
	creds.bind(cmd)
	cmd.Flags().StringVar(&phone, "phone", "", "Contact phone stored on your profile")
	cmd.Flags().StringVar(&role, "role", RoleCustomer, "Account role: customer or provider")
	return cmd
}

func newLoginCmd(opts *options) *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolve(cmd); err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				id, err := app.Session.SignIn(ctx, creds.email, creds.password)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id.Email)
				return nil
			})
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				err := app.Session.SignOut(ctx)
				if errors.Is(err, identity.ErrNotSignedIn) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and whether they publish a listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				ctx, cancel := context.WithTimeout(ctx, readyTimeout)
				defer cancel()

				auth := app.AuthState(ctx)
				defer auth.Close()
				state, err := auth.Ready(ctx)
				if err != nil {
					return fmt.Errorf("load account status: %w", err)
				}

				out := cmd.OutOrStdout()
				if opts.json {
					return printJSON(out, state)
				}
				if state.User == nil {
					fmt.Fprintln(out, "Not signed in")
					return nil
				}
				fmt.Fprintf(out, "Email:    %s\n", state.User.Email)
				fmt.Fprintf(out, "UID:      %s\n", state.User.UID)
				fmt.Fprintf(out, "Provider: %s\n", yesNo(state.IsProvider))
				return nil
			})
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
