// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/export"
	"github.com/jeranaias/ragchat/internal/model"
)

func newConversationsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List, show, delete or export past conversations",
	}
	cmd.AddCommand(
		newConversationsListCommand(app),
		newConversationsShowCommand(app),
		newConversationsDeleteCommand(app),
		newConversationsExportCommand(app),
	)
	return cmd
}

func newConversationsListCommand(app *App) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "conversations list", func() (any, error) {
				result, err := client.Conversations(cmd.Context(), page)
				if err != nil {
					return nil, err
				}
				if app.jsonMode {
					return result, nil
				}

				if len(result.Items) == 0 {
					fmt.Fprintln(app.out, DimStyle.Render("No conversations yet. Start one with `ragchat chat`."))
					return result, nil
				}
				now := time.Now()
				for _, c := range result.Items {
					fmt.Fprintf(app.out, "%s  %s  %s\n",
						padRight(c.ConversationID, 12),
						DimStyle.Render(padRight(formatWhen(c.LastMessageAt.Time, now), 10)),
						truncate(c.Preview, 56))
				}
				p := result.Pagination
				fmt.Fprintln(app.out, DimStyle.Render(fmt.Sprintf("page %d of %d, %d conversations", p.Page, max(p.Pages, 1), p.Total)))
				if p.HasNext() {
					fmt.Fprintln(app.out, DimStyle.Render(fmt.Sprintf("next: ragchat conversations list --page %d", p.Page+1)))
				}
				return result, nil
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	return cmd
}

func newConversationsShowCommand(app *App) *cobra.Command {
	var showSources bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "conversations show", func() (any, error) {
				msgs, err := client.Conversation(cmd.Context(), args[0])
				if err != nil {
					return nil, err
				}
				if !app.jsonMode {
					printMessages(app, msgs, showSources)
				}
				return msgs, nil
			})
		},
	}
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "list cited documents under each answer")
	return cmd
}

func printMessages(app *App, msgs []model.ChatMessage, showSources bool) {
	render := NewRenderer(app.cfg.UI, IsStdoutTTY())
	for _, m := range msgs {
		header := m.Role.DisplayName()
		if !m.CreatedAt.IsZero() {
			header += "  " + m.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		if m.Role == model.RoleUser {
			fmt.Fprintln(app.out, PromptStyle.Render(header))
			fmt.Fprintln(app.out, m.Content)
		} else {
			fmt.Fprintln(app.out, TitleStyle.UnsetMarginBottom().Render(header))
			fmt.Fprintln(app.out, render.Render(m.Content))
			if m.ID != "" {
				fmt.Fprintln(app.out, DimStyle.Render("message "+m.ID))
			}
			if showSources {
				printSources(app.out, m.SourceDocuments)
			}
		}
		fmt.Fprintln(app.out)
	}
}

func newConversationsDeleteCommand(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			ok, err := RequireConfirmation(app.in, app.out, "delete conversation "+args[0], ConfirmationOptions{
				ConfirmFlag: yes,
				JSONMode:    app.jsonMode,
				Interactive: IsTTY(),
			})
			if err != nil || !ok {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "conversations delete", func() (any, error) {
				if err := client.DeleteConversation(cmd.Context(), args[0]); err != nil {
					return nil, err
				}
				if !app.jsonMode {
					fmt.Fprintf(app.out, "%s Deleted %s\n", SuccessStyle.Render("[OK]"), args[0])
				}
				return map[string]string{"deleted": args[0]}, nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newConversationsExportCommand(app *App) *cobra.Command {
	var (
		format string
		opts   = export.DefaultOptions()
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Save a conversation as markdown, json or html",
		Example: `  ragchat conversations export c-42
  ragchat conversations export c-42 --format html --out ~/Documents --open`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "conversations export", func() (any, error) {
				msgs, err := client.Conversation(cmd.Context(), args[0])
				if err != nil {
					return nil, err
				}
				path, err := exportMessages(args[0], app.cfg.API.DefaultCategory, msgs, format, opts)
				if err != nil {
					return nil, err
				}
				if !app.jsonMode {
					fmt.Fprintf(app.out, "%s Saved %s\n", SuccessStyle.Render("[OK]"), path)
				}
				return map[string]string{"path": path}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown, json or html")
	cmd.Flags().StringVarP(&opts.OutputDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVar(&opts.OpenAfterExport, "open", false, "open the file when done")
	cmd.Flags().BoolVar(&opts.IncludeSources, "sources", true, "include cited documents")
	cmd.Flags().StringVar(&opts.Theme, "theme", "light", "html theme: light or dark")
	return cmd
}

// exportMessages writes msgs in format and returns the file path.
func exportMessages(id, category string, msgs []model.ChatMessage, format string, opts *export.Options) (string, error) {
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return "", &UsageError{Field: "--format", Value: format, Reason: err.Error()}
	}
	t := export.NewTranscript(id, msgs)
	t.Category = category
	return export.ToFile(t, exporter, opts)
}
