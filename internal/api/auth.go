// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/transport"
)

// Account input rules enforced by the service.
const (
	MinPasswordLength = 6
	MinFullNameLength = 2
	MaxFullNameLength = 255
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type authData struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

// ValidateRegistration checks the inputs of Register before they are sent.
func ValidateRegistration(email, password, fullName string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRequest, MinPasswordLength)
	}
	n := utf8.RuneCountInString(strings.TrimSpace(fullName))
	if n < MinFullNameLength || n > MaxFullNameLength {
		return fmt.Errorf("%w: full name must be %d to %d characters", ErrInvalidRequest, MinFullNameLength, MaxFullNameLength)
	}
	return nil
}

// Login authenticates and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}
	return c.authenticate(ctx, transport.PathLogin, credentials{Email: strings.TrimSpace(email), Password: password})
}

// Register creates an account and stores the session.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateRegistration(email, password, fullName); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, transport.PathRegister, credentials{
		Email:    email,
		Password: password,
		FullName: strings.TrimSpace(fullName),
	})
}

func (c *Client) authenticate(ctx context.Context, path string, creds credentials) (*model.User, error) {
	var data authData
	if _, err := c.do(ctx, call{method: http.MethodPost, path: path, body: creds}, &data); err != nil {
		return nil, err
	}
	if data.AccessToken == "" {
		return nil, errors.New("login response carried no access token")
	}
	if err := c.session.Login(data.AccessToken, data.RefreshToken, data.User); err != nil {
		return nil, err
	}
	c.logger.Info("LOGIN", "user", data.User.DisplayName(), "token", logging.Fingerprint(data.AccessToken))
	return data.User, nil
}

// Me fetches the current user and records it in the session.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var data struct {
		User *model.User `json:"user"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me"}, &data); err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, errors.New("profile response carried no user")
	}
	if err := c.session.SetUser(data.User); err != nil {
		return nil, err
	}
	return data.User, nil
}

// Refresh exchanges the refresh token for a new access token and stores
// it. A rotated refresh token replaces the current one; otherwise the
// current one is kept. It implements transport.Refresher.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	refresh := c.session.Refresh()
	if refresh == "" {
		return "", ErrNotAuthenticated
	}

	var data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	_, err := c.do(ctx, call{method: http.MethodPost, path: transport.PathRefresh, token: refresh}, &data)
	if err != nil {
		return "", err
	}
	if data.AccessToken == "" {
		return "", errors.New("refresh response carried no access token")
	}

	// The in-memory session is updated even if persisting fails.
	if err := c.session.SetTokens(data.AccessToken, data.RefreshToken); err != nil {
		c.logger.Debug("REFRESH_NOT_PERSISTED", "error", err)
	}
	c.logger.Debug("TOKEN_REFRESHED",
		"token", logging.Fingerprint(data.AccessToken),
		"rotated", data.RefreshToken != "",
	)
	return data.AccessToken, nil
}

// Logout tells the service and clears the local session. The remote call
// is best effort; the local session is cleared regardless.
func (c *Client) Logout(ctx context.Context) error {
	if access := c.session.Access(); access != "" {
		_, err := c.do(ctx, call{method: http.MethodPost, path: transport.PathLogout, token: access}, nil)
		if err != nil {
			c.logger.Debug("LOGOUT_REQUEST_FAILED", "error", err)
		}
	}
	if err := c.session.Clear(); err != nil {
		return err
	}
	c.logger.Info("LOGOUT")
	return nil
}

// Restore validates a persisted session at start-up by fetching the
// profile. A session the service rejects is cleared; transport failures
// keep it so an offline start does not log the user out.
func (c *Client) Restore(ctx context.Context) (*model.User, error) {
	if !c.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	u, err := c.Me(ctx)
	if err == nil {
		return u, nil
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
		if clearErr := c.session.Clear(); clearErr != nil {
			c.logger.Warn("SESSION_CLEAR_FAILED", "error", clearErr)
		}
	}
	return nil, err
}
