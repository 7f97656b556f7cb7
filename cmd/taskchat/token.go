package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskchat/taskchat/internal/localstate"
	"github.com/taskchat/taskchat/internal/security"
)

func newTokenCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored access token",
	}
	cmd.AddCommand(newTokenSetCmd(flags), newTokenShowCmd(flags), newTokenClearCmd(flags))
	return cmd
}

func newTokenSetCmd(flags *globalFlags) *cobra.Command {
	var (
		refresh   string
		username  string
		firstName string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an access token (read from the terminal without echo)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fmt.Fprint(cmd.OutOrStdout(), "Access token: ")
			token := readSecretLine(cmd.InOrStdin(), cmd.OutOrStdout())
			if token == "" {
				return errors.New("empty token")
			}

			return withApp(ctx, flags, func(a *app) error {
				if err := a.vault.SetTokens(ctx, token, refresh); err != nil {
					return err
				}
				if username != "" || firstName != "" {
					p := localstate.Profile{Username: username, FirstName: firstName}
					if err := a.vault.SetProfile(ctx, p); err != nil {
						return err
					}
				}
				a.log.Info("token stored")
				fmt.Fprintf(cmd.OutOrStdout(), "Token saved (%s).\n", security.MaskSecret(token, 4))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&refresh, "refresh", "", "refresh token")
	cmd.Flags().StringVar(&username, "username", "", "username shown in greetings")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name shown in greetings")
	return cmd
}

func newTokenShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored token, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, flags, func(a *app) error {
				out := cmd.OutOrStdout()
				token, err := a.vault.Token(ctx)
				if err != nil {
					return err
				}
				if token == "" {
					fmt.Fprintln(out, "Not signed in.")
					return nil
				}
				fmt.Fprintf(out, "token:   %s\n", security.MaskSecret(token, 4))

				if rt, err := a.vault.RefreshToken(ctx); err == nil && rt != "" {
					fmt.Fprintf(out, "refresh: %s\n", security.MaskSecret(rt, 4))
				}
				if p, err := a.vault.Profile(ctx); err == nil && p != nil {
					fmt.Fprintf(out, "user:    %s\n", p.DisplayName())
				}
				return nil
			})
		},
	}
}

func newTokenClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token, refresh token and profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, flags, func(a *app) error {
				if err := a.vault.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

// readSecretLine reads one line without echo when in is a terminal, and a
// plain line otherwise.
func readSecretLine(in io.Reader, out io.Writer) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}

	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(line)
}
