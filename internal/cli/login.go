package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/kapchan/internal/services/users"
	"github.com/spf13/cobra"
)

// readPassword returns flagValue when set, otherwise the first line of r.
func readPassword(flagValue string, fromStdin bool, r io.Reader) (string, error) {
	if !fromStdin {
		return flagValue, nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd() *cobra.Command {
	var (
		info          users.LoginInfo
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			info.Password, err = readPassword(info.Password, passwordStdin, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client) error {
				err := await(ctx, requestTimeout, func(done func(error)) {
					err := c.users.Login(info, func(_ string, err error) { done(err) })
					if err != nil {
						done(err)
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&info.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&info.Email, "email", "e", "", "email, instead of username")
	cmd.Flags().StringVarP(&info.Password, "password", "p", "", "password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client) error {
				err := await(ctx, requestTimeout, func(done func(error)) {
					if err := c.users.Logout(done); err != nil {
						done(err)
					}
				})
				if err != nil {
					// The local token is gone either way.
					log.Warn().Err(err).Msg("server did not confirm logout")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return nil
			})
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var (
		reg           users.Registration
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg.Username = args[0]
			var err error
			reg.Password, err = readPassword(reg.Password, passwordStdin, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client) error {
				err := await(ctx, requestTimeout, func(done func(error)) {
					if err := c.users.Signup(reg, done); err != nil {
						done(err)
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Log in with `kapchan login -u %s`.\n", reg.Username, reg.Username)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}
