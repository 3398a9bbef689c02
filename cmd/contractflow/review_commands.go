package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contractflow/internal/api"
	"contractflow/internal/client"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var cursor string
	var all bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List contracts waiting for review, oldest queued first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				page, err := collectPages(cmd, all, cursor, func(cursor string) (api.ContractListResponse, error) {
					return c.Pending(cmd.Context(), limit, cursor)
				})
				if err != nil {
					return err
				}
				return printContractPage(cmd, ctx, page, "No contracts pending review")
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume from a previous page's next cursor")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Follow cursors until every page is listed")
	return cmd
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Record a review decision",
	}
	reviewCmd.AddCommand(newDecisionCommand(ctx, "approve", "approved", "Approve a contract pending review"))
	reviewCmd.AddCommand(newDecisionCommand(ctx, "reject", "rejected", "Reject a contract pending review"))
	return reviewCmd
}

func newDecisionCommand(ctx *commandContext, use, verdict, short string) *cobra.Command {
	var reviewer, comment string

	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				contract, err := c.Review(cmd.Context(), args[0], verdict, reviewer, comment)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, contract)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Contract %s %s by %s\n", contract.ID, verdict, reviewer)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", "", "Reviewer name")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Optional comment")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}
