package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskchat/taskchat/internal/auth"
	"github.com/taskchat/taskchat/internal/conversation"
)

func newAskCmd(flags *globalFlags) *cobra.Command {
	var taskID int

	cmd := &cobra.Command{
		Use:   "ask [--task ID] MESSAGE...",
		Short: "Send one message and print the reply",
		Long: `Send one message to the app guide, or with --task to the assistant of
that task, and print the reply. Selecting a task with --task remembers it
as the last-used task.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			return withApp(ctx, flags, func(a *app) error {
				w := a.widget
				if err := w.Open(); err != nil {
					return err
				}
				defer w.Close()

				if cmd.Flags().Changed("task") {
					if err := w.EnterTaskMode(ctx); err != nil {
						return explainExpiry(cmd, expiredOr(a, err))
					}
					if err := w.SelectTaskByID(ctx, taskID); err != nil {
						return err
					}
				}

				before := len(w.Messages())
				if err := w.Send(ctx, text); err != nil {
					return err
				}
				if a.guard.Invalidated() {
					return explainExpiry(cmd, auth.ErrSessionExpired)
				}
				for _, m := range w.Messages()[before:] {
					if m.Sender == conversation.SenderAgent {
						fmt.Fprintln(cmd.OutOrStdout(), m.Text)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&taskID, "task", 0, "talk to the assistant of this task")
	return cmd
}

// expiredOr maps err to auth.ErrSessionExpired when it invalidated the
// session.
func expiredOr(a *app, err error) error {
	if a.guard.Invalidated() {
		return auth.ErrSessionExpired
	}
	return err
}

