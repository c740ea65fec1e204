// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
)

// ConfirmationOptions controls RequireConfirmation.
type ConfirmationOptions struct {
	// ConfirmFlag is set when --yes was passed.
	ConfirmFlag bool
	// JSONMode requires ConfirmFlag; there is no prompt in JSON mode.
	JSONMode bool
	// Interactive reports whether in is a terminal.
	Interactive bool
}

// RequireConfirmation asks before a destructive action.
//
// With --yes it proceeds without asking. In JSON mode or without a
// terminal it fails instead of prompting.
func RequireConfirmation(in io.Reader, out io.Writer, action string, opts ConfirmationOptions) (bool, error) {
	if opts.ConfirmFlag {
		return true, nil
	}
	if opts.JSONMode {
		return false, &UsageError{Field: "--yes", Reason: "required in JSON mode to " + action}
	}
	if !opts.Interactive {
		return false, &UsageError{Field: "--yes", Reason: "required without a terminal to " + action}
	}

	fmt.Fprintf(out, "%s %s? [y/N]: ", WarningStyle.Render("[CONFIRM]"), action)
	answer, err := readLine(in)
	if err != nil {
		return false, nil
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		fmt.Fprintln(out, DimStyle.Render("Cancelled."))
		return false, nil
	}
	return true, nil
}
