package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskchat/taskchat/internal/widget"
)

func newTasksCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List your tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, flags, func(a *app) error {
				tasks, err := a.dir.List(ctx)
				if err != nil {
					return explainExpiry(cmd, expiredOr(a, err))
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(out, widget.NoTasksNotice)
					return nil
				}

				last, hasLast, _ := a.selection.Load(ctx)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\t")
				for _, t := range tasks {
					mark := ""
					if hasLast && t.ID == last {
						mark = "(last used)"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.ID, t.Status, t.Title, mark)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
