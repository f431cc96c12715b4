package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"hearth/cmd/internal/client/config"
	"hearth/cmd/internal/client/gateway"
	"hearth/cmd/internal/client/profile"
	"hearth/cmd/internal/client/session"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

// deps is built once per invocation by the root PersistentPreRunE.
type deps struct {
	cfg    config.Config
	log    *slog.Logger
	client *gateway.Client
	ctl    *session.Controller
}

// newRootCommand builds the command tree. Settings come from l (the process
// environment when nil) with the persistent flags taking precedence.
func newRootCommand(tty *stdio, l envconfig.Lookuper) *cobra.Command {
	var (
		server    string
		tokenFile string
		verbose   bool
		rt        deps
	)

	cmd := &cobra.Command{
		Use:           "hearthctl",
		Short:         "Sign in to a hearth server and talk to it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if l == nil {
				l = envconfig.OsLookuper()
			}
			flags := map[string]string{}
			if server != "" {
				flags["HEARTH_SERVER_URL"] = server
			}
			if tokenFile != "" {
				flags["HEARTH_TOKEN_FILE"] = tokenFile
			}
			cfg, err := config.Load(cmd.Context(), envconfig.MultiLookuper(envconfig.MapLookuper(flags), l))
			if err != nil {
				return err
			}
			if verbose {
				cfg.LogLevel = "debug"
			}
			built, err := newDeps(cfg, tty)
			if err != nil {
				return err
			}
			rt = *built
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.ctl != nil {
				rt.ctl.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&server, "server", "", "hearth server URL (default $HEARTH_SERVER_URL)")
	cmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "session token file (default $HEARTH_TOKEN_FILE)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log gateway activity to stderr")

	cmd.AddCommand(
		newSignUpCommand(tty, &rt),
		newSignInCommand(tty, &rt),
		newSignOutCommand(tty, &rt),
		newWhoAmICommand(tty, &rt),
		newWatchCommand(tty, &rt),
		newChatCommand(tty, &rt),
	)
	return cmd
}

func newDeps(cfg config.Config, tty *stdio) (*deps, error) {
	log := slog.New(slog.NewTextHandler(tty.errOut, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	client, err := gateway.New(cfg.ServerURL,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		gateway.WithTokenStore(gateway.FileTokenStore{Path: cfg.TokenFile}),
		gateway.WithRememberMe(cfg.RememberMe),
		gateway.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	ctl, err := session.NewController(client, profile.NewReconciler(client, log), session.NewStore(), session.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, log: log, client: client, ctl: ctl}, nil
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelWarn
	}
	return l
}

// restore loads the persisted session into the Store and returns the principal.
func (rt *deps) restore(ctx context.Context) (session.Principal, bool) {
	rt.ctl.Initialize(ctx)
	return rt.ctl.Store().CurrentPrincipal()
}

func (rt *deps) requireSignedIn(ctx context.Context) (session.Principal, error) {
	p, ok := rt.restore(ctx)
	if !ok {
		return session.Principal{}, fmt.Errorf("not signed in; run: hearthctl signin --email <address>")
	}
	return p, nil
}
