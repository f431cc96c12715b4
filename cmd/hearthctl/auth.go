package main

import (
	"errors"
	"fmt"
	"strings"

	"hearth/cmd/internal/client/session"

	"github.com/spf13/cobra"
)

func newSignUpCommand(tty *stdio, rt *deps) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and its profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := tty.password("Password: ")
			if err != nil {
				return err
			}
			res, err := rt.ctl.SignUp(cmd.Context(), email, pw, name)
			if err != nil && !errors.Is(err, session.ErrSuperseded) {
				return err
			}
			fmt.Fprintf(tty.out, "Account created for %s (%s)\n", res.Principal.Email, res.Principal.ID)
			if res.ProfileWarning != nil {
				fmt.Fprintf(tty.errOut, "warning: %v\n", res.ProfileWarning)
			}
			if !res.Authenticated {
				fmt.Fprintln(tty.out, "Sign in with: hearthctl signin --email", res.Principal.Email)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name for the profile")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSignInCommand(tty *stdio, rt *deps) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := tty.password("Password: ")
			if err != nil {
				return err
			}
			p, err := rt.ctl.SignIn(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(tty.out, "Signed in as %s\n", p.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignOutCommand(tty *stdio, rt *deps) *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "signout",
		Short: "End this session, or every session with --global",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := rt.restore(cmd.Context()); !ok {
				fmt.Fprintln(tty.out, "Not signed in")
				return nil
			}
			scope := session.ScopeLocal
			if global {
				scope = session.ScopeGlobal
			}
			if err := rt.ctl.SignOut(cmd.Context(), scope); err != nil {
				return err
			}
			fmt.Fprintf(tty.out, "Signed out (%s)\n", scope)
			return nil
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "sign out on every device")
	return cmd
}

func newWhoAmICommand(tty *stdio, rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, ok := rt.restore(cmd.Context())
			if !ok {
				fmt.Fprintln(tty.out, "Not signed in")
				return nil
			}
			line := fmt.Sprintf("%s (%s)", p.Email, p.ID)
			if prof, err := rt.client.GetProfile(cmd.Context(), p.ID); err == nil && strings.TrimSpace(prof.Name) != "" {
				line = prof.Name + " <" + line + ">"
			} else if err != nil {
				rt.log.Debug("whoami.profile.fail", "err", err)
			}
			fmt.Fprintln(tty.out, line)
			return nil
		},
	}
}
