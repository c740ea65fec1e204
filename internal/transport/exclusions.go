// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"net/url"
	"strings"
)

// Endpoints that manage the credential themselves.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathRefresh  = "/auth/refresh"
	PathLogout   = "/auth/logout"
)

// Exclusions is a set of URL fragments. A request matches when its URL
// contains any fragment.
type Exclusions []string

// DefaultExclusions never get the session credential attached and never
// trigger a refresh.
var DefaultExclusions = Exclusions{PathLogin, PathRegister, PathRefresh, PathLogout}

// anonymousEndpoints are expected to be called without a credential.
var anonymousEndpoints = Exclusions{PathLogin, PathRegister}

// Match reports whether u contains one of the fragments.
func (e Exclusions) Match(u *url.URL) bool {
	if u == nil {
		return false
	}
	s := u.String()
	for _, frag := range e {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}

// redactURL drops the query string so search terms and ids passed as
// parameters stay out of logs.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}
