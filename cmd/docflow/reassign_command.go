package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docflow/internal/api"
)

func newReassignCommand(ctx *commandContext) *cobra.Command {
	var stage string
	var workerID string
	var workerName string

	cmd := &cobra.Command{
		Use:   "reassign <file-id>",
		Short: "Reassign the file's current stage to a different worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage == "" || workerID == "" {
				return fmt.Errorf("--stage and --worker are required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.Reassign(cmd.Context(), args[0], api.ReassignRequest{
				Stage:      stage,
				WorkerID:   workerID,
				WorkerName: workerName,
			})
			if err != nil {
				return err
			}

			entry := result.Entry
			fmt.Fprintf(cmd.OutOrStdout(), "File %s reassigned: %s now with %s (entry %d)\n",
				entry.FileID, entry.Stage, entry.WorkerID, entry.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Stage being reassigned")
	cmd.Flags().StringVar(&workerID, "worker", "", "Worker ID taking over")
	cmd.Flags().StringVar(&workerName, "worker-name", "", "Worker display name")
	return cmd
}
