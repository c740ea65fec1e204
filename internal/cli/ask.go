// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/chat"
)

// askResult is the --json form of an answer.
type askResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Answer         string `json:"answer"`
	Sources        any    `json:"sources"`
	Complete       bool   `json:"complete"`
}

func newAskCommand(app *App) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer",
		Long: `Ask one question and print the answer with its sources.

The question is read from stdin when no argument is given. Answers are
rendered as markdown when stdout is a terminal and streamed raw otherwise.`,
		Example: `  ragchat ask "¿Cuándo inicia la matrícula?"
  ragchat ask --conversation c-42 "¿Y para posgrado?"
  echo "¿Dónde veo mis notas?" | ragchat ask --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := questionFrom(args, app.in)
			if err != nil {
				return err
			}
			client, err := app.requireSession()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			conv := chat.Resume(client, app.logger, conversationID, nil)
			conv.SetCategory(app.cfg.API.DefaultCategory)

			render := NewRenderer(app.cfg.UI, IsStdoutTTY())
			raw := !app.jsonMode && !render.Markdown()

			var onToken func(string)
			if raw {
				onToken = func(tok string) { fmt.Fprint(app.out, tok) }
			}

			reply, err := conv.Send(ctx, question, onToken)
			if reply == nil {
				return err
			}
			if errors.Is(err, api.ErrUnauthorized) {
				err = recheckSession(ctx, client, err)
			}

			if app.jsonMode {
				if err != nil {
					return err
				}
				return NewJSONResponse("ask", askResult{
					ConversationID: conv.ID(),
					MessageID:      conv.LastAnswerID(),
					Answer:         reply.Message.Content,
					Sources:        reply.Message.SourceDocuments,
					Complete:       reply.Complete,
				}).Print(app.out)
			}

			switch {
			case raw:
				fmt.Fprintln(app.out)
			case !reply.Notice && !reply.Failed:
				fmt.Fprint(app.out, render.Render(reply.Message.Content))
			}
			printSources(app.out, reply.Message.SourceDocuments)
			if id := conv.ID(); id != "" && err == nil {
				fmt.Fprintln(app.errOut, DimStyle.Render("conversation "+id+"  message "+conv.LastAnswerID()))
			}
			if reply.Failed {
				return plainError{errors.New(strings.TrimPrefix(reply.Message.Content, "Error: "))}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	return cmd
}

// questionFrom returns the argument, or stdin when there is none.
func questionFrom(args []string, in io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	q := strings.TrimSpace(string(data))
	if q == "" {
		return "", &UsageError{Field: "question", Reason: "give it as an argument or on stdin"}
	}
	return q, nil
}
