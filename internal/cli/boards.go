package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/soyeahso/kapchan/internal/services/boards"
	"github.com/soyeahso/kapchan/internal/session"
	"github.com/spf13/cobra"
)

func newBoardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List and create boards",
	}

	cmd.AddCommand(newBoardsListCmd())
	cmd.AddCommand(newBoardsCreateCmd())
	return cmd
}

func newBoardsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the boards visible to the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client) error {
				var list []boards.Board
				err := await(ctx, requestTimeout, func(done func(error)) {
					c.boards.FetchBoards(func(b []boards.Board, err error) {
						list = b
						done(err)
					})
				})
				if err != nil {
					return err
				}
				return printBoards(cmd.OutOrStdout(), list)
			})
		},
	}
}

func printBoards(w io.Writer, list []boards.Board) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No boards.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTITLE\tACCESS\tTHREADS\tSIZE\tFLAGS")
	for _, b := range list {
		flags := ""
		if b.Captcha {
			flags += "captcha "
		}
		if b.NSFW {
			flags += "nsfw"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			b.Path(), b.Title, b.AccessLevel, b.ActiveThreadsLimit, b.ThreadSizeLimit, flags)
	}
	return tw.Flush()
}

func newBoardsCreateCmd() *cobra.Command {
	var (
		b      boards.Board
		access string
	)

	cmd := &cobra.Command{
		Use:   "create <handle> <title>",
		Short: "Create a board (requires an admin session)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b.Handle, b.Title = args[0], args[1]
			level, err := session.ParseAccessLevel(access)
			if err != nil {
				return err
			}
			b.AccessLevel = level
			if err := b.Validate(); err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client) error {
				err := await(ctx, requestTimeout, func(done func(error)) {
					if err := c.boards.CreateBoard(b, done); err != nil {
						done(err)
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", b.Path())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&b.Description, "description", "", "board description")
	cmd.Flags().StringVar(&access, "access", "anonymous", "minimum access level to read the board")
	cmd.Flags().Uint32Var(&b.ActiveThreadsLimit, "threads", 100, "active thread limit")
	cmd.Flags().Uint32Var(&b.ThreadSizeLimit, "thread-size", 300, "posts per thread limit")
	cmd.Flags().BoolVar(&b.Captcha, "captcha", false, "require a captcha to post")
	cmd.Flags().BoolVar(&b.NSFW, "nsfw", false, "mark the board not safe for work")
	return cmd
}
