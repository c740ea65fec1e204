// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	app := &App{}
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if closeErr := app.Close(); closeErr != nil && app.logger != nil {
		app.logger.Debug("CLOSE_FAILED", "error", closeErr)
	}
	if err == nil {
		return ExitSuccess
	}

	if app.jsonMode {
		NewJSONErrorResponse(root.Name(), err).Print(out)
	} else {
		DisplayError(errOut, err)
		if hint(err) == "" && app.missingCredential.Load() {
			fmt.Fprintln(errOut, DimStyle.Render("The request was sent without a session. Run `ragchat login` first."))
		}
	}
	return ExitCode(err)
}

func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Terminal client for a document question-answering service",
		Long: `ragchat asks questions of a retrieval-augmented chat service and streams
the answers, citing the documents they came from.

Sign in once with "ragchat login"; the session is kept between runs and
renewed automatically when the service asks for it.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.in = cmd.InOrStdin()
			app.out = cmd.OutOrStdout()
			app.errOut = cmd.ErrOrStderr()
			return app.loadConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "config file (default ~/.ragchat/config.toml)")
	flags.StringVar(&app.apiURL, "api-url", "", "API root, e.g. http://localhost:5000/api/v1")
	flags.StringVar(&app.category, "category", "", "restrict retrieval to a category id")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&app.jsonMode, "json", false, "machine-readable output")

	root.AddCommand(
		newLoginCommand(app),
		newRegisterCommand(app),
		newLogoutCommand(app),
		newWhoamiCommand(app),
		newChatCommand(app),
		newAskCommand(app),
		newConversationsCommand(app),
		newFeedbackCommand(app),
		newCategoriesCommand(app),
		newSuggestCommand(app),
		newConfigCommand(app),
	)
	return root
}
