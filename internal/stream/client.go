// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// maxErrorBody bounds how much of a rejected response is kept.
const maxErrorBody = 8 << 10

// StatusError is returned when the stream request is answered with a
// non-2xx status. No events are produced in that case.
type StatusError struct {
	StatusCode int
	// Code is the envelope's short error label, e.g. "Token expirado".
	Code string
	// Message is the server's explanation, or the plain body text.
	Message string
}

func (e *StatusError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("stream rejected: HTTP %d: %s", e.StatusCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("stream rejected: HTTP %d: %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("stream rejected: HTTP %d", e.StatusCode)
	}
}

// NewHTTPClient returns a client for stream exchanges. It has no overall
// timeout; the request context bounds the exchange.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 2 * time.Minute,
		},
	}
}

// NewRequest builds the POST for endpoint with the bearer token attached.
// The stream exchange does not go through the refresh middleware, so the
// credential is set here.
func NewRequest(ctx context.Context, endpoint, token string, body model.ChatRequest) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Do sends req and returns a Stream over its body. A non-2xx response is
// returned as a *StatusError with the body consumed and closed.
func Do(client *http.Client, req *http.Request, opts ...Option) (*Stream, error) {
	if client == nil {
		client = NewHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &StatusError{StatusCode: resp.StatusCode}
		se.Code, se.Message = parseErrorBody(data)
		return nil, se
	}
	return NewStream(req.Context(), resp.Body, opts...), nil
}

// Open is NewRequest followed by Do.
func Open(ctx context.Context, client *http.Client, endpoint, token string, body model.ChatRequest, opts ...Option) (*Stream, error) {
	req, err := NewRequest(ctx, endpoint, token, body)
	if err != nil {
		return nil, err
	}
	return Do(client, req, opts...)
}

// parseErrorBody splits a JSON error envelope into its error code and
// message. Other bodies become the message, except HTML pages.
func parseErrorBody(data []byte) (code, message string) {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &env) == nil {
		return env.Error, env.Message
	}
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "<") {
		return "", ""
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return "", s
}
