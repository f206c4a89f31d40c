package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Rrens/agent-handoff/internal/domain"
)

func newRoomsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List waiting and assigned tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			rooms, err := client.ActiveRooms(cmd.Context())
			if err != nil {
				return fmt.Errorf("load active rooms: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TICKET\tSTATUS\tCUSTOMER\tCATEGORY\tAGENT")
			for _, r := range rooms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.TicketID, r.Status, r.UserName, dash(r.Category), dash(r.AgentID))
			}
			return tw.Flush()
		},
	}
}

func newOpenTicketCmd(a *app) *cobra.Command {
	var input domain.TicketCreate

	cmd := &cobra.Command{
		Use:   "open-ticket",
		Short: "Escalate a customer to the agents, as the bot layer does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := a.login(cmd.Context())
			if err != nil {
				return err
			}
			ticket, err := client.CreateTicket(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("create ticket: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ticket.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.UserName, "name", "", "customer name")
	cmd.Flags().StringVar(&input.UserEmail, "customer-email", "", "customer email")
	cmd.Flags().StringVar(&input.Category, "category", "", "ticket category")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
