package cli

import (
	"fmt"

	"github.com/soyeahso/kapchan/internal/config"
	"github.com/soyeahso/kapchan/internal/session"
	"github.com/soyeahso/kapchan/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show kapchan status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kapchan %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Fprintf(out, "Config:    %s\n", paths.Config)
			fmt.Fprintf(out, "Data:      %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:      %s\n", paths.Logs)
			fmt.Fprintln(out)

			// Server
			fmt.Fprintf(out, "Server:    %s\n", cfg.Server.URL)
			if cfg.Server.Origin != "" {
				fmt.Fprintf(out, "Origin:    %s\n", cfg.Server.Origin)
			}
			fmt.Fprintf(out, "Reconnect: base=%s max=%s x%g\n",
				cfg.Reconnect.Base(), cfg.Reconnect.Max(), cfg.Reconnect.Multiplier)
			fmt.Fprintf(out, "Chat:      history=%d per room\n", cfg.Chat.HistorySize)

			// Session
			fmt.Fprintf(out, "Store:     %s\n", cfg.Session.Store)
			if cfg.Session.Store == "sqlite" {
				err := withSQLiteSessions(func(s *session.SQLiteStore) error {
					info, err := s.Describe()
					if err != nil {
						return err
					}
					printSessionInfo(out, info)
					return nil
				})
				if err != nil {
					fmt.Fprintf(out, "Session:   error reading: %v\n", err)
				}
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
