package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docflow/internal/api"
)

func newAssignCommand(ctx *commandContext) *cobra.Command {
	var workerID string
	var workerName string

	cmd := &cobra.Command{
		Use:   "assign <file-id>",
		Short: "Assign a worker to the file's open stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workerID == "" {
				return fmt.Errorf("--worker is required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.Assign(cmd.Context(), args[0], api.AssignRequest{
				WorkerID:   workerID,
				WorkerName: workerName,
			})
			if err != nil {
				return err
			}

			entry := result.Entry
			fmt.Fprintf(cmd.OutOrStdout(), "File %s: %s assigned to %s (entry %d)\n",
				entry.FileID, entry.Stage, entry.WorkerID, entry.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&workerID, "worker", "", "Worker ID taking the stage")
	cmd.Flags().StringVar(&workerName, "worker-name", "", "Worker display name")
	return cmd
}
