package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/kapchan/internal/session"
	"github.com/spf13/cobra"
)

var errMemorySessions = errors.New("session.store is memory; nothing is stored between runs")

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or change the stored session token",
	}

	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionSetCmd())
	cmd.AddCommand(newSessionClearCmd())
	return cmd
}

// withSQLiteSessions runs fn against the persistent session store.
func withSQLiteSessions(fn func(s *session.SQLiteStore) error) error {
	sessions, db, err := openSessions(&cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	s, ok := sessions.(*session.SQLiteStore)
	if !ok {
		return errMemorySessions
	}
	return fn(s)
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Describe the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLiteSessions(func(s *session.SQLiteStore) error {
				info, err := s.Describe()
				if err != nil {
					return err
				}
				printSessionInfo(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}
}

func printSessionInfo(w io.Writer, info session.Info) {
	if !info.Present {
		fmt.Fprintln(w, "Session: none (anonymous)")
		return
	}
	status := "valid"
	if info.Expired {
		status = "expired"
	}
	fmt.Fprintf(w, "Session: %s\n", status)
	if info.Subject != "" {
		fmt.Fprintf(w, "Subject: %s\n", info.Subject)
		fmt.Fprintf(w, "Role:    %s\n", info.Role)
	} else {
		fmt.Fprintln(w, "Token:   opaque (no claims)")
	}
	if !info.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "Expires: %s\n", info.ExpiresAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "Updated: %s\n", info.UpdatedAt.Local().Format(time.DateTime))
}

func newSessionSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <token>",
		Short: "Store a session token obtained elsewhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLiteSessions(func(s *session.SQLiteStore) error {
				if err := s.Replace(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session token stored.")
				return nil
			})
		},
	}
}

func newSessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored session token without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLiteSessions(func(s *session.SQLiteStore) error {
				s.DiscardSessionArtifact()
				fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
				return nil
			})
		},
	}
}
