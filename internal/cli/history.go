package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/kapchan/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		prune int
	)

	cmd := &cobra.Command{
		Use:   "history [room]",
		Short: "Show chat messages recorded by earlier sessions",
		Long: "With no room, lists the rooms that have recorded messages. " +
			"Messages are only recorded when session.store is sqlite.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			db, err := store.Open(paths.Database(), log)
			if err != nil {
				return err
			}
			defer db.Close()
			chatLog := store.NewChatLog(db)
			out := cmd.OutOrStdout()

			if prune > 0 {
				n, err := chatLog.Prune(prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d message(s).\n", n)
				return nil
			}

			if len(args) == 0 {
				rooms, err := chatLog.Rooms()
				if err != nil {
					return err
				}
				if len(rooms) == 0 {
					fmt.Fprintln(out, "No recorded chat history.")
				}
				for _, r := range rooms {
					fmt.Fprintln(out, r)
				}
				return nil
			}

			msgs, err := chatLog.Recent(args[0], limit)
			if err != nil {
				return err
			}
			printLogged(out, msgs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of messages to show")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the newest N messages of every room")
	return cmd
}

func printLogged(w io.Writer, msgs []store.LoggedMessage) {
	for _, m := range msgs {
		fmt.Fprintf(w, "%s <%s> %s\n", m.ReceivedAt.Local().Format(time.DateTime), m.Username, m.Message)
	}
}
