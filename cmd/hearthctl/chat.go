package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCommand(tty *stdio, rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "chat MESSAGE...",
		Short: "Ask the household assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.requireSignedIn(cmd.Context()); err != nil {
				return err
			}
			msg := strings.TrimSpace(strings.Join(args, " "))
			if msg == "" {
				return errors.New("message is empty")
			}
			reply, err := rt.client.Chat(cmd.Context(), msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(tty.out, reply)
			return nil
		},
	}
}
