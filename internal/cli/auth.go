// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/model"
)

// credentialFlags are shared by login and register.
type credentialFlags struct {
	email         string
	passwordStdin bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin")
}

// resolve prompts for whatever was not given on the command line.
func (f *credentialFlags) resolve(app *App) (email, password string, err error) {
	email = strings.TrimSpace(f.email)
	if email == "" {
		if err := RequiresTTY("ask for an email"); err != nil {
			return "", "", &UsageError{Field: "--email", Reason: "required"}
		}
		fmt.Fprint(app.out, "Email: ")
		if email, err = readLine(app.in); err != nil {
			return "", "", err
		}
	}

	if f.passwordStdin {
		password, err = readLine(app.in)
	} else {
		password, err = readPassword(app.out, "Password: ")
	}
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

func newLoginCommand(app *App) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session",
		Example: `  ragchat login --email ana@upao.edu.pe
  echo "$PASSWORD" | ragchat login --email ana@upao.edu.pe --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.connect()
			if err != nil {
				return err
			}
			email, password, err := flags.resolve(app)
			if err != nil {
				return err
			}

			u, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				if errors.Is(err, api.ErrUnauthorized) {
					return plainError{err}
				}
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "login", func() (any, error) {
				if !app.jsonMode {
					fmt.Fprintf(app.out, "%s Signed in as %s\n", SuccessStyle.Render("[OK]"), u.DisplayName())
				}
				return u, nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRegisterCommand(app *App) *cobra.Command {
	var (
		flags    credentialFlags
		fullName string
	)
	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Create an account and sign in",
		Example: `  ragchat register --email luis@upao.edu.pe --name "Luis Rojas"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.connect()
			if err != nil {
				return err
			}
			email, password, err := flags.resolve(app)
			if err != nil {
				return err
			}
			if err := api.ValidateRegistration(email, password, fullName); err != nil {
				return err
			}

			u, err := client.Register(cmd.Context(), email, password, fullName)
			if err != nil {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "register", func() (any, error) {
				if !app.jsonMode {
					fmt.Fprintf(app.out, "%s Account created for %s\n", SuccessStyle.Render("[OK]"), u.DisplayName())
				}
				return u, nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&fullName, "name", "n", "", "full name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.connect()
			if err != nil {
				return err
			}
			if !client.Session().IsAuthenticated() {
				fmt.Fprintln(app.out, DimStyle.Render("Not signed in."))
				return nil
			}
			if err := client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "%s Signed out\n", SuccessStyle.Render("[OK]"))
			return nil
		},
	}
}

func newWhoamiCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			u, err := client.Restore(cmd.Context())
			if err != nil {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "whoami", func() (any, error) {
				if !app.jsonMode {
					printUser(app, u)
				}
				return u, nil
			})
		},
	}
}

func printUser(app *App, u *model.User) {
	fmt.Fprintln(app.out, RenderField("Name", u.DisplayName()))
	fmt.Fprintln(app.out, RenderField("Email", u.Email))
	fmt.Fprintln(app.out, RenderField("Role", u.Role))
	if !u.CreatedAt.IsZero() {
		fmt.Fprintln(app.out, RenderField("Member since", u.CreatedAt.Local().Format("2006-01-02")))
	}
	fmt.Fprintln(app.out, RenderField("Service", app.client.BaseURL()))
}
