// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

var (
	// ErrNotAuthenticated is returned before a request that needs a session
	// is sent without one.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrUnauthorized matches 401 responses that survived the refresh.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden matches 403 responses.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches 409 responses, such as a duplicate e-mail.
	ErrConflict = errors.New("conflict")

	// ErrRateLimited matches 429 responses.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest matches 400 and 422 responses.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrServer matches 5xx responses.
	ErrServer = errors.New("server error")
)

// Error is a non-success response from the service.
type Error struct {
	Status int
	// Code is the envelope's short "error" field.
	Code string
	// Message is the envelope's human-readable "message" field.
	Message string
	// RequestID is the X-Request-ID sent with the failed request.
	RequestID string
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("HTTP %d: %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Code)
	default:
		return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
	}
}

// Unwrap maps the status onto the package's sentinel errors so callers can
// use errors.Is.
func (e *Error) Unwrap() error {
	return statusSentinel(e.Status)
}

// Display returns the text meant for the user.
func (e *Error) Display() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return http.StatusText(e.Status)
}

func statusSentinel(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	case status >= 500:
		return ErrServer
	default:
		return nil
	}
}

// handleErrorResponse builds an *Error from a non-success response body.
func handleErrorResponse(status int, body []byte, requestID string) error {
	apiErr := &Error{Status: status, RequestID: requestID}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Error
		apiErr.Message = env.Message
		return apiErr
	}

	// Fallback for unparseable error bodies, e.g. proxy HTML pages
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if !strings.HasPrefix(text, "<") {
		apiErr.Message = text
	}
	return apiErr
}
