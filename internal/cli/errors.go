// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments.
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error.
	ExitConfigError = 3
	// ExitAuthError indicates a missing, expired or rejected session.
	ExitAuthError    = 4
	ExitNetworkError = 5
	// ExitNotFoundError indicates a conversation or message was not found.
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// UsageError reports a bad argument or flag value.
type UsageError struct {
	Field  string
	Value  string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var ttyErr *TTYRequiredError
	var cfgErr config.ValidateErrors
	var netErr net.Error

	switch {
	case errors.As(err, &usageErr), errors.As(err, &ttyErr),
		errors.Is(err, model.ErrEmptyMessage), errors.Is(err, model.ErrMessageTooLong),
		errors.Is(err, model.ErrInvalidRating), errors.Is(err, api.ErrInvalidRequest):
		return ExitUsageError
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case api.IsAuthError(err), errors.Is(err, api.ErrForbidden):
		return ExitAuthError
	case errors.Is(err, api.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}
	return ExitGeneralError
}

// plainError is shown without a follow-up hint.
type plainError struct{ error }

func (e plainError) Unwrap() error { return e.error }

// hint returns a follow-up suggestion for err, or "".
func hint(err error) string {
	var plain plainError
	switch {
	case errors.As(err, &plain):
		return ""
	case errors.Is(err, api.ErrNotAuthenticated):
		return "Run `ragchat login` first."
	case api.IsAuthError(err):
		return "Your session has ended. Run `ragchat login` to sign in again."
	case errors.Is(err, chat.ErrIncompleteTurn):
		return "The answer was cut off. Ask again to retry."
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "Check that the service is running and api.base_url is correct (`ragchat config get api.base_url`)."
	}
	return ""
}

// DisplayError prints err and its hint to w.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}

	msg := err.Error()
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Display()
	}

	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), msg)
	if h := hint(err); h != "" {
		fmt.Fprintln(w, DimStyle.Render(h))
	}
}
