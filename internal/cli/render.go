// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Renderer prints answers, through glamour when stdout is a terminal and
// markdown is enabled.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer builds a Renderer for the UI settings. It falls back to
// plain text when glamour cannot be initialized.
func NewRenderer(ui config.UIConfig, tty bool) *Renderer {
	if !ui.Markdown || !tty {
		return &Renderer{}
	}

	width := ui.WordWrap
	if width <= 0 {
		width = GetTerminalWidth() - 4
	}

	style := glamour.WithAutoStyle()
	if ui.Theme == "dark" || ui.Theme == "light" {
		style = glamour.WithStandardStyle(ui.Theme)
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{md: md}
}

// Markdown reports whether answers are rendered instead of streamed raw.
func (r *Renderer) Markdown() bool { return r.md != nil }

// Render returns content ready for display.
func (r *Renderer) Render(content string) string {
	if r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// SHARED OUTPUT
// =============================================================================

// printSources lists the documents cited by an answer.
func printSources(w io.Writer, docs []model.SourceDocument) {
	if len(docs) == 0 {
		return
	}
	fmt.Fprintln(w, DimStyle.Render("Sources:"))
	for i, d := range docs {
		line := d.Title
		if d.Page > 0 {
			line = fmt.Sprintf("%s, p. %d", d.Title, d.Page)
		}
		fmt.Fprintf(w, "  %s %s\n", DimStyle.Render(fmt.Sprintf("[%d]", i+1)), SourceStyle.Render(line))
		if d.Preview != "" {
			fmt.Fprintf(w, "      %s\n", DimStyle.Render(truncate(d.Preview, 72)))
		}
	}
}

// truncate shortens s to width terminal cells on one line.
func truncate(s string, width int) string {
	return util.TruncateWidth(util.OneLine(s), width)
}

// padRight pads s to width terminal cells.
func padRight(s string, width int) string {
	return util.PadRight(truncate(s, width), width)
}

// formatWhen renders a timestamp relative to now for recent values.
func formatWhen(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("2006-01-02")
	}
}
