package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/kapchan/internal/services/users"
	"github.com/spf13/cobra"
)

func newApplicationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "applications",
		Aliases: []string{"apps"},
		Short:   "Review membership applications (requires an admin session)",
	}

	cmd.AddCommand(newApplicationsListCmd())
	cmd.AddCommand(newApplicationsReviewCmd("accept", "accepted", true))
	cmd.AddCommand(newApplicationsReviewCmd("deny", "denied", false))
	return cmd
}

func newApplicationsListCmd() *cobra.Command {
	var q users.ApplicationQuery

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List membership applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client) error {
				var apps []users.Application
				err := await(ctx, requestTimeout, func(done func(error)) {
					err := c.users.FetchApplications(q, func(a []users.Application, err error) {
						apps = a
						done(err)
					})
					if err != nil {
						done(err)
					}
				})
				if err != nil {
					return err
				}
				return printApplications(cmd.OutOrStdout(), apps)
			})
		},
	}

	cmd.Flags().IntVar(&q.Offset, "offset", 0, "skip this many applications")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "maximum applications to list")
	cmd.Flags().BoolVar(&q.OnlyOpen, "open", true, "only list applications that have not been reviewed")
	return cmd
}

func printApplications(w io.Writer, apps []users.Application) error {
	if len(apps) == 0 {
		fmt.Fprintln(w, "No applications.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tSTATUS\tCREATED\tMOTIVATION")
	for _, a := range apps {
		status := "open"
		if !a.Open() {
			status = "denied"
			if a.Accepted {
				status = "accepted"
			}
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			a.ID, a.UserID, status, a.CreatedAt.Format(time.DateTime), truncate(a.Motivation, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newApplicationsReviewCmd(verb, past string, accept bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: "Mark an application as " + past,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid application id %q", args[0])
			}
			review := users.Review{ApplicationID: uint32(id), Accept: accept}

			return withClient(cmd, func(ctx context.Context, c *client) error {
				err := await(ctx, requestTimeout, func(done func(error)) {
					if err := c.users.ReviewApplication(review, done); err != nil {
						done(err)
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Application %d %s.\n", review.ApplicationID, past)
				return nil
			})
		},
	}
}
