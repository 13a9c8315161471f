package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "notifications <recipient>",
		Short: "List stored notifications for a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.Notifications(cmd.Context(), args[0], unreadOnly)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list.Notifications) == 0 {
				fmt.Fprintf(out, "No notifications for %s\n", list.Recipient)
				return nil
			}

			rows := make([][]string, 0, len(list.Notifications))
			for _, n := range list.Notifications {
				read := "unread"
				if n.Read {
					read = "read"
				}
				rows = append(rows, []string{n.ID, n.Priority, n.Subject, n.CreatedAt, read})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Priority", "Subject", "Created", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only show unread notifications")

	cmd.AddCommand(&cobra.Command{
		Use:   "read <recipient> <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.MarkNotificationRead(cmd.Context(), args[1], args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification %s marked read\n", args[1])
			return nil
		},
	})
	return cmd
}
