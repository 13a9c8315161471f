package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBreachesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "breaches",
		Short: "Report open entries that have breached their SLA",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.Breaches(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if len(report.Breaches) == 0 {
				fmt.Fprintln(out, "No SLA breaches")
				return nil
			}

			rows := make([][]string, 0, len(report.Breaches))
			for _, breach := range report.Breaches {
				worker := breach.WorkerName
				if worker == "" {
					worker = breach.WorkerID
				}
				rows = append(rows, []string{
					breach.FileID,
					breach.Stage,
					worker,
					colorizeSeverity(fmt.Sprintf("%dm / %dm", breach.DurationMinutes, breach.MaxMinutes), true, colorize),
					fmt.Sprintf("%dm", breach.MinutesOver),
					fmt.Sprintf("%d", breach.PenaltyPoints),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Stage", "Worker", "Duration", "Over", "Penalty"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "Total penalty: %d points across %d breaches (generated %s)\n",
				report.TotalPenalty, len(report.Breaches), report.GeneratedAt)
			return nil
		},
	}
}
