// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/model"
)

func newFeedbackCommand(app *App) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "feedback <message-id> <up|down>",
		Short: "Rate an answer",
		Example: `  ragchat feedback m-9 up
  ragchat feedback m-9 down --comment "cites the 2023 calendar"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := parseRating(args[1])
			if err != nil {
				return err
			}
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			fb := model.FeedbackRequest{ChatHistoryID: args[0], Rating: rating, Comment: comment}
			if err := client.SendFeedback(cmd.Context(), fb); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "%s Feedback sent\n", SuccessStyle.Render("[OK]"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "optional comment")
	return cmd
}

func parseRating(s string) (int, error) {
	switch strings.ToLower(s) {
	case "up", "good", "+", "+1", "1":
		return model.RatingUp, nil
	case "down", "bad", "-", "-1":
		return model.RatingDown, nil
	}
	return 0, &UsageError{Field: "rating", Value: s, Reason: "want up or down"}
}

func newCategoriesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List document categories",
		Long: `List document categories. Pass an id with --category, or set
api.default_category, to restrict answers to one category.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "categories", func() (any, error) {
				cats, err := client.Categories(cmd.Context())
				if err != nil {
					return nil, err
				}
				if !app.jsonMode {
					printCategories(app.out, cats)
				}
				return cats, nil
			})
		},
	}
}

func printCategories(w io.Writer, cats []model.Category) {
	if len(cats) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No categories."))
		return
	}
	for _, c := range cats {
		if !c.IsActive {
			continue
		}
		fmt.Fprintf(w, "%s  %s  %s\n",
			padRight(c.ID, 10),
			padRight(c.Name, 28),
			DimStyle.Render(fmt.Sprintf("%d documents", c.DocumentCount)))
	}
}

func newSuggestCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [prefix]",
		Short: "Suggest questions, or complete a partial one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.requireSession()
			if err != nil {
				return err
			}
			return OutputJSON(app.out, app.jsonMode, "suggest", func() (any, error) {
				if len(args) == 0 {
					qs, err := client.SuggestedQuestions(cmd.Context())
					if err == nil && !app.jsonMode {
						for _, q := range qs {
							fmt.Fprintln(app.out, q)
						}
					}
					return qs, err
				}

				sugg, err := client.Autocomplete(cmd.Context(), args[0])
				if err == nil && !app.jsonMode {
					for _, s := range sugg {
						fmt.Fprintf(app.out, "%s  %s\n", s.Text, DimStyle.Render("("+s.Source+")"))
					}
				}
				return sugg, err
			})
		},
	}
}
