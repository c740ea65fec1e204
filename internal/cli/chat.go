// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/export"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides input history and line editing for the REPL.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}

	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// Read reads one line. Non-empty input is added to history.
func (r *lineReader) Read(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *lineReader) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

const chatHelp = `Commands during chat:
  /new               start a new conversation
  /category [id]     show or set the category filter ("none" clears it)
  /categories        list categories
  /sources           show the sources of the last answer
  /good, /bad        rate the last answer
  /export [format]   save the conversation (markdown, json, html)
  /help              show this help
  /quit              leave (Ctrl+D also works)

Ctrl+C cancels an answer that is still streaming.`

// replSession is the state of one interactive chat.
type replSession struct {
	app    *App
	client *api.Client
	conv   *chat.Conversation
	ended  *atomic.Bool
}

func newChatCommand(app *App) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long:  "Start an interactive chat. Answers stream as they are generated.\n\n" + chatHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := RequiresTTY("chat"); err != nil {
				return fmt.Errorf("%w; use `ragchat ask` for scripts", err)
			}
			client, err := app.requireSession()
			if err != nil {
				return err
			}

			s := &replSession{
				app:    app,
				client: client,
				conv:   chat.New(client, app.logger),
				ended:  trackSessionEnd(client.Session()),
			}
			s.conv.SetCategory(app.cfg.API.DefaultCategory)

			user, suggestions, err := s.start(cmd.Context())
			if err != nil {
				return err
			}
			if conversationID != "" {
				msgs, err := client.Conversation(cmd.Context(), conversationID)
				if err != nil {
					return err
				}
				s.conv = chat.Resume(client, app.logger, conversationID, msgs)
				s.conv.SetCategory(app.cfg.API.DefaultCategory)
			}

			s.printWelcome(user, suggestions)
			return s.loop(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	return cmd
}

// start validates the session and fetches suggested questions
// concurrently. Suggestions are optional.
func (s *replSession) start(ctx context.Context) (*model.User, []string, error) {
	var (
		user        *model.User
		suggestions []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.client.Restore(gctx)
		user = u
		return err
	})
	g.Go(func() error {
		qs, err := s.client.SuggestedQuestions(gctx)
		if err != nil {
			s.app.logger.Debug("SUGGESTIONS_UNAVAILABLE", "error", err)
			return nil
		}
		suggestions = qs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return user, suggestions, nil
}

func (s *replSession) printWelcome(u *model.User, suggestions []string) {
	out := s.app.out
	fmt.Fprintln(out, TitleStyle.Render("ragchat"))
	fmt.Fprintf(out, "Signed in as %s. Type /help for commands.\n", u.DisplayName())
	if cat := s.conv.Category(); cat != "" {
		fmt.Fprintln(out, DimStyle.Render("Category: "+cat))
	}
	if len(s.conv.Messages()) > 0 {
		fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("Resumed conversation %s (%d messages)", s.conv.ID(), len(s.conv.Messages()))))
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(out, DimStyle.Render("Try asking:"))
		for _, q := range suggestions {
			fmt.Fprintf(out, "  %s\n", truncate(q, GetTerminalWidth()-4))
		}
	}
	fmt.Fprintln(out, RenderSeparator(min(GetTerminalWidth(), 70)))
}

func (s *replSession) loop(ctx context.Context) error {
	input := newLineReader()
	defer input.Close()

	for {
		if err := s.checkSession(); err != nil {
			return err
		}
		line, err := input.Read(PromptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt or Ctrl+D.
			fmt.Fprintln(s.app.out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := s.command(ctx, line)
			if err != nil {
				DisplayError(s.app.errOut, err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			if api.IsAuthError(err) && !s.client.Session().IsAuthenticated() {
				return err
			}
			DisplayError(s.app.errOut, err)
		}
	}
}

// trackSessionEnd returns a flag that is set while store holds no
// session, whether it was signed out by another process or torn down after
// a failed renewal.
func trackSessionEnd(store *session.Store) *atomic.Bool {
	var ended atomic.Bool
	store.OnChange(func(sess session.Session) {
		ended.Store(!sess.Authenticated())
	})
	return &ended
}

func (s *replSession) checkSession() error {
	if s.ended.Load() {
		return fmt.Errorf("session ended: %w", api.ErrNotAuthenticated)
	}
	return nil
}

// turn asks one question. Ctrl+C cancels the stream without leaving the REPL.
func (s *replSession) turn(ctx context.Context, question string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	out := s.app.out
	reply, err := s.conv.Send(ctx, question, func(tok string) { fmt.Fprint(out, tok) })
	if reply == nil {
		return err
	}
	if !reply.Notice && !reply.Failed {
		fmt.Fprintln(out)
	}

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, WarningStyle.Render("[Cancelled]"))
		return nil
	case reply.Failed:
		return plainError{errors.New(strings.TrimPrefix(reply.Message.Content, "Error: "))}
	case errors.Is(err, api.ErrUnauthorized):
		return recheckSession(context.WithoutCancel(ctx), s.client, err)
	case err != nil:
		return err
	}

	if n := len(reply.Message.SourceDocuments); n > 0 {
		fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("%d sources, /sources to list them", n)))
	}
	fmt.Fprintln(out)
	return nil
}

// command runs a slash command and reports whether to leave.
func (s *replSession) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	out := s.app.out

	switch name {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h":
		fmt.Fprintln(out, chatHelp)

	case "/new":
		s.conv.Reset()
		fmt.Fprintln(out, DimStyle.Render("New conversation."))

	case "/category":
		if len(args) == 0 {
			cat := s.conv.Category()
			if cat == "" {
				cat = "none"
			}
			fmt.Fprintln(out, RenderField("Category", cat))
			return false, nil
		}
		cat := args[0]
		if strings.EqualFold(cat, "none") {
			cat = ""
		}
		s.conv.SetCategory(cat)
		fmt.Fprintln(out, DimStyle.Render("Category filter updated."))

	case "/categories":
		cats, err := s.client.Categories(ctx)
		if err != nil {
			return false, err
		}
		printCategories(out, cats)

	case "/sources":
		docs := s.conv.LastSources()
		if len(docs) == 0 {
			fmt.Fprintln(out, DimStyle.Render("The last answer cited no sources."))
			return false, nil
		}
		printSources(out, docs)

	case "/good", "/bad":
		id := s.conv.LastAnswerID()
		if id == "" {
			return false, &UsageError{Field: name, Reason: "no completed answer to rate yet"}
		}
		rating := model.RatingUp
		if name == "/bad" {
			rating = model.RatingDown
		}
		fb := model.FeedbackRequest{ChatHistoryID: id, Rating: rating, Comment: strings.Join(args, " ")}
		if err := s.client.SendFeedback(ctx, fb); err != nil {
			return false, err
		}
		fmt.Fprintln(out, SuccessStyle.Render("[OK]")+" Thanks for the feedback.")

	case "/export":
		format := "markdown"
		if len(args) > 0 {
			format = args[0]
		}
		if len(s.conv.Messages()) == 0 {
			return false, &UsageError{Field: name, Reason: "nothing to export yet"}
		}
		path, err := exportMessages(s.conv.ID(), s.conv.Category(), s.conv.Messages(), format, export.DefaultOptions())
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, SuccessStyle.Render("[OK]")+" Saved "+path)

	default:
		return false, &UsageError{Field: "command", Value: name, Reason: "unknown; type /help"}
	}
	return false, nil
}

// recheckSession follows a rejected answer stream with an ordinary request,
// which lets the session middleware renew the session or end it. The
// stream itself is never replayed.
func recheckSession(ctx context.Context, client *api.Client, streamErr error) error {
	if _, err := client.Me(ctx); err != nil {
		return err
	}
	return plainError{fmt.Errorf("%w: the session was renewed, ask again", streamErr)}
}
