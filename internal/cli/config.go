// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/config"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(app.out, app.cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := app.writablePath()
				if err != nil {
					return err
				}
				fmt.Fprintln(app.out, path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List settable keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(app.out, strings.Join(config.Keys(), "\n"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := app.cfg.Get(args[0])
				if err != nil {
					return &UsageError{Field: "key", Value: args[0], Reason: err.Error()}
				}
				if args[0] == "session.passphrase" && v != "" {
					v = "[REDACTED]"
				}
				fmt.Fprintln(app.out, v)
				return nil
			},
		},
		newConfigSetCommand(app),
		newConfigInitCommand(app),
	)
	return cmd
}

func newConfigSetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Change one setting and save",
		Example: `  ragchat config set api.base_url https://chat.upao.edu.pe/api/v1`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.writablePath()
			if err != nil {
				return err
			}

			// Start from the file alone so env and flag overrides are not saved.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				load := config.LoadTOML
				if strings.HasSuffix(path, ".json") {
					load = config.LoadJSON
				}
				if err := load(cfg, path); err != nil {
					return err
				}
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return &UsageError{Field: "key", Value: args[0], Reason: err.Error()}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "%s %s saved to %s\n", SuccessStyle.Render("[OK]"), args[0], path)
			return nil
		},
	}
}

func newConfigInitCommand(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.writablePath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &UsageError{Field: "config", Value: path, Reason: "already exists (use --force to overwrite)"}
			}
			if err := save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// writablePath returns --config, or the default TOML path.
func (a *App) writablePath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.ConfigPathTOML()
}

func save(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}
