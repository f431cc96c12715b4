package main

import (
	"fmt"

	"hearth/cmd/internal/client/session"

	"github.com/spf13/cobra"
)

func newWatchCommand(tty *stdio, rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and report when this session ends elsewhere",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rt.requireSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			sub := rt.ctl.Store().Subscribe(func(s session.Snapshot) {
				if !s.Authenticated {
					fmt.Fprintln(tty.out, "Session ended: signed out from another device")
				}
			})
			defer sub.Release()

			fmt.Fprintf(tty.out, "Watching session of %s (Ctrl-C to stop)\n", p.Email)
			return rt.client.Watch(cmd.Context())
		},
	}
}
