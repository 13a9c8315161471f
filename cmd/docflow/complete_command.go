package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docflow/internal/api"
)

func newCompleteCommand(ctx *commandContext) *cobra.Command {
	var workerID string
	var workerName string

	cmd := &cobra.Command{
		Use:   "complete <file-id>",
		Short: "Complete the file's current stage and open the next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workerID == "" {
				return fmt.Errorf("--worker is required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.CompleteStage(cmd.Context(), args[0], api.CompleteRequest{
				WorkerID:   workerID,
				WorkerName: workerName,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if result.Delivered {
				fmt.Fprintf(out, "File %s delivered (%s finished in %dm)\n",
					result.FileID, result.PreviousStage, result.DurationMinutes)
			} else {
				fmt.Fprintf(out, "File %s: %s finished in %dm, now in %s\n",
					result.FileID, result.PreviousStage, result.DurationMinutes, result.NextStage)
			}
			if result.Breach != nil {
				fmt.Fprintln(out, warnText(fmt.Sprintf(
					"SLA breached: %dm over the %dm limit, %d penalty points",
					result.Breach.MinutesOver, result.Breach.MaxMinutes, result.Breach.PenaltyPoints), colorize))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workerID, "worker", "", "Worker ID completing the stage")
	cmd.Flags().StringVar(&workerName, "worker-name", "", "Worker display name")
	return cmd
}
