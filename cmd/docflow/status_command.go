package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon runtime status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Docflow Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "  Running:         %v (pid %d)\n", status.Running, status.PID)
			fmt.Fprintf(out, "  Database:        %s\n", status.DatabasePath)
			fmt.Fprintf(out, "  Lock file:       %s\n", status.LockFilePath)
			fmt.Fprintf(out, "  Connections:     %d (%d users)\n", status.Connections, status.ConnectedUsers)
			fmt.Fprintf(out, "  Delivered files: %d\n", status.Delivered)
			fmt.Fprintf(out, "  Total entries:   %d\n", status.TotalEntries)

			if len(status.OpenByStage) > 0 {
				stages := make([]string, 0, len(status.OpenByStage))
				for stage := range status.OpenByStage {
					stages = append(stages, stage)
				}
				sort.Strings(stages)
				rows := make([][]string, 0, len(stages))
				for _, stage := range stages {
					rows = append(rows, []string{stage, fmt.Sprintf("%d", status.OpenByStage[stage])})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "Open"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
			}
			return nil
		},
	}
}
