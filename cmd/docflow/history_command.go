package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <file-id>",
		Short: "Show the stage trail for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			trail, err := client.FileHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(trail.Entries) == 0 {
				fmt.Fprintf(out, "No history for file %s\n", trail.FileID)
				return nil
			}

			rows := make([][]string, 0, len(trail.Entries))
			for _, entry := range trail.Entries {
				state := "done"
				if entry.Open {
					state = "open"
				}
				worker := entry.WorkerName
				if worker == "" {
					worker = entry.WorkerID
				}
				if worker == "" {
					worker = "(unassigned)"
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", entry.ID),
					entry.Stage,
					worker,
					entry.EnteredAt,
					fmt.Sprintf("%dm", entry.DurationMinutes),
					state,
					entry.Notes,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Stage", "Worker", "Entered", "Duration", "State", "Notes"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
