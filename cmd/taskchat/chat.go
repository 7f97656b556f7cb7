package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskchat/taskchat/internal/auth"
	"github.com/taskchat/taskchat/internal/repl"
	"github.com/taskchat/taskchat/internal/tui"
)

const expiredHint = "Your session has expired. Run `taskchat token set` to sign in again."

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the full-screen chat panel",
		Long: `Open the chat panel.

Keys:
  ctrl+t   task mode (pick a task)     ctrl+g   back to the app guide
  ctrl+r   refresh the task list       esc      close the panel / picker
  o        reopen a closed panel       ctrl+c   quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}
}

func runChat(cmd *cobra.Command, flags *globalFlags) error {
	ctx := cmd.Context()
	return withApp(ctx, flags, func(a *app) error {
		err := tui.Run(ctx, a.widget, tui.Options{
			Expired:   a.guard.Expired(),
			Logger:    a.log.Component("tui"),
			StartOpen: true,
		})
		return explainExpiry(cmd, err)
	})
}

func newReplCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat line by line (type /help for commands)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, flags, func(a *app) error {
				r := repl.New(a.widget, cmd.InOrStdin(), cmd.OutOrStdout(), a.guard.Expired())
				return explainExpiry(cmd, r.Run(ctx))
			})
		},
	}
}

func explainExpiry(cmd *cobra.Command, err error) error {
	if errors.Is(err, auth.ErrSessionExpired) {
		fmt.Fprintln(cmd.ErrOrStderr(), expiredHint)
	}
	return err
}
