// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

// fbsession drives a Feedbactory account session from the command line.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/feedbactory/client/account"
	"github.com/feedbactory/client/common"
	"github.com/feedbactory/client/wire"
)

// Config holds the command line configuration.
type Config struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "fbsession",
		Short: "Feedbactory account session client",
		Long: `fbsession signs in to a Feedbactory server and manages the account
session. A session created with --persistent is saved to the state file on
exit and resumed by later invocations, so that account commands can be run
without signing in again.`,
		Example: `
  # Sign in and keep the session
  fbsession -c client.toml signin --email user@example.com --persistent

  # Turn off email alerts using the saved session
  fbsession -c client.toml update-alerts --enable=false

  # End the session
  fbsession -c client.toml signout`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&cfg.ConfigFile, "config", "c", "",
		"path to the client configuration file (TOML format)")
	cmd.MarkPersistentFlagRequired("config")

	cmd.AddCommand(
		newSignInCommand(&cfg),
		newSignUpCommand(&cfg),
		newActivateCommand(&cfg),
		newResumeCommand(&cfg),
		newSignOutCommand(&cfg),
		newStatusCommand(&cfg),
		newResendActivationCommand(&cfg),
		newResetPasswordEmailCommand(&cfg),
		newResetPasswordCommand(&cfg),
		newUpdateAlertsCommand(&cfg),
	)
	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

// run opens the app for the duration of fn.
func run(cmd *cobra.Command, cfg *Config, fn func(a *app) error) (err error) {
	a, err := newApp(cfg.ConfigFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func emailFlag(cmd *cobra.Command, email *string) {
	cmd.Flags().StringVarP(email, "email", "e", "", "account email address")
	cmd.MarkFlagRequired("email")
}

func checkEmail(email string) (string, error) {
	if !account.IsValidEmail(email) {
		return "", fmt.Errorf("invalid argument: %q is not a valid email address", email)
	}
	return account.NormaliseEmail(email), nil
}

func newSignInCommand(cfg *Config) *cobra.Command {
	var (
		email      string
		persistent bool
	)
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := checkEmail(email)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			return run(cmd, cfg, func(a *app) error {
				res, err := a.mgr.SignIn(email, account.PasswordHash(email, password), persistent)
				if err != nil {
					return err
				}
				if err := a.reportAuth("sign in", res); err != nil {
					return err
				}
				d, _ := a.mgr.SignedInAccount()
				a.printAccount(d)
				return nil
			})
		},
	}
	emailFlag(cmd, &email)
	cmd.Flags().BoolVarP(&persistent, "persistent", "p", false, "save the session for later invocations")
	return cmd
}

func newSignUpCommand(cfg *Config) *cobra.Command {
	var (
		email, gender, dob string
		alerts             bool
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Long: `Register a new account. The server emails an activation code, which
is passed to the activate command along with the chosen password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := checkEmail(email)
			if err != nil {
				return err
			}
			g, err := parseGender(gender)
			if err != nil {
				return err
			}
			born, err := time.Parse("2006-01-02", dob)
			if err != nil {
				return fmt.Errorf("invalid argument: date of birth: %v", err)
			}
			return run(cmd, cfg, func(a *app) error {
				res, err := a.mgr.SignUp(email, g, born, alerts)
				if err != nil {
					return err
				}
				return a.reportAuth("sign up", res)
			})
		},
	}
	emailFlag(cmd, &email)
	cmd.Flags().StringVar(&gender, "gender", "", "male or female")
	cmd.Flags().StringVar(&dob, "dob", "", "date of birth, YYYY-MM-DD")
	cmd.Flags().BoolVar(&alerts, "alerts", false, "receive email alerts")
	cmd.MarkFlagRequired("gender")
	cmd.MarkFlagRequired("dob")
	return cmd
}

func newActivateCommand(cfg *Config) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate an account and set its password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := checkEmail(email)
			if err != nil {
				return err
			}
			if !account.IsValidEmailCode(code) {
				return errors.New("invalid argument: activation code")
			}
			password, err := readNewPassword(cmd)
			if err != nil {
				return err
			}
			return run(cmd, cfg, func(a *app) error {
				res, err := a.mgr.ActivateAccount(email, code, account.PasswordHash(email, password))
				if err != nil {
					return err
				}
				return a.reportAuth("activate account", res)
			})
		},
	}
	emailFlag(cmd, &email)
	cmd.Flags().StringVar(&code, "code", "", "emailed activation code")
	cmd.MarkFlagRequired("code")
	return cmd
}

func newResumeCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, func(a *app) error {
				if !a.mgr.HasPersistentSession() {
					a.out.Outcome(false, "no saved session")
					return errOperationFailed
				}
				res, err := a.mgr.ResumePersistentSession()
				if err != nil {
					return err
				}
				if err := a.reportBasic("resume session", res); err != nil {
					return err
				}
				d, _ := a.mgr.SignedInAccount()
				a.printAccount(d)
				return nil
			})
		},
	}
}

func newSignOutCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, func(a *app) error {
				if !a.mgr.HasSession() {
					a.out.Outcome(false, "not signed in")
					return errOperationFailed
				}
				res, err := a.mgr.SignOut()
				if err != nil {
					return err
				}
				a.out.Outcome(true, "signed out (server: %v)", res.Status)
				return nil
			})
		},
	}
}

func newStatusCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, func(a *app) error {
				if !a.mgr.HasSession() {
					a.out.Outcome(false, "no session")
					return nil
				}
				a.out.Outcome(true, "session")
				a.out.Field("persistent", a.mgr.HasPersistentSession())
				a.out.Field("resolved", a.mgr.HasResolvedSession())
				if expiry, ok := a.mgr.Expiry(); ok {
					a.out.Field("expires", expiry.Format(time.RFC3339))
				}
				if counter, ok := a.mgr.ReplayCounter(); ok {
					a.out.Field("exchanges", counter)
				}
				if d, ok := a.mgr.SignedInAccount(); ok {
					a.printAccount(d)
				}
				return nil
			})
		},
	}
}

func newResendActivationCommand(cfg *Config) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resend-activation",
		Short: "Email the account activation code again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := checkEmail(email)
			if err != nil {
				return err
			}
			return run(cmd, cfg, func(a *app) error {
				res, err := a.mgr.ResendActivationCode(email)
				if err != nil {
					return err
				}
				return a.reportBasic("resend activation code", res)
			})
		},
	}
	emailFlag(cmd, &email)
	return cmd
}

func newResetPasswordEmailCommand(cfg *Config) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password-email",
		Short: "Email a password reset code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := checkEmail(email)
			if err != nil {
				return err
			}
			return run(cmd, cfg, func(a *app) error {
				res, err := a.mgr.SendPasswordResetEmail(email)
				if err != nil {
					return err
				}
				return a.reportBasic("send password reset email", res)
			})
		},
	}
	emailFlag(cmd, &email)
	return cmd
}

func newResetPasswordCommand(cfg *Config) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with an emailed reset code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := checkEmail(email)
			if err != nil {
				return err
			}
			if !account.IsValidEmailCode(code) {
				return errors.New("invalid argument: reset code")
			}
			password, err := readNewPassword(cmd)
			if err != nil {
				return err
			}
			return run(cmd, cfg, func(a *app) error {
				res, err := a.mgr.ResetPassword(email, code, account.PasswordHash(email, password))
				if err != nil {
					return err
				}
				return a.reportAuth("reset password", res)
			})
		},
	}
	emailFlag(cmd, &email)
	cmd.Flags().StringVar(&code, "code", "", "emailed reset code")
	cmd.MarkFlagRequired("code")
	return cmd
}

func newUpdateAlertsCommand(cfg *Config) *cobra.Command {
	var enable bool
	cmd := &cobra.Command{
		Use:   "update-alerts",
		Short: "Turn account email alerts on or off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, func(a *app) error {
				if err := a.ensureResolved(); err != nil {
					return err
				}
				res, err := a.mgr.UpdateSendEmailAlerts(enable)
				if err != nil {
					return err
				}
				return a.reportBasic("update email alerts", res)
			})
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", true, "send email alerts")
	return cmd
}

func parseGender(s string) (wire.Gender, error) {
	switch strings.ToLower(s) {
	case "male", "m":
		return wire.Male, nil
	case "female", "f":
		return wire.Female, nil
	}
	return 0, fmt.Errorf("invalid argument: gender %q", s)
}

// readPassword prompts on a terminal, otherwise reads one line.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readNewPassword(cmd *cobra.Command) (string, error) {
	password, err := readPassword(cmd, "New password: ")
	if err != nil {
		return "", err
	}
	if !account.IsValidPassword(password) {
		return "", errors.New("invalid argument: password must be at least 8 characters with letters and non-letters")
	}
	return password, nil
}
