// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/ragchat/internal/model"
)

// Durable keys under which credentials are kept. Only the Store reads or
// writes them.
const (
	KeyAccessToken  = "ragchat_access_token"
	KeyRefreshToken = "ragchat_refresh_token"
	KeyUser         = "ragchat_user"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is an immutable snapshot of the credentials held by a Store.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *model.User
}

// Authenticated reports whether an access token is present.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// =============================================================================
// STORE
// =============================================================================

// Store holds the current Session. Reads are lock-free loads of an atomic
// pointer; writers serialize on a mutex and write through to the Backend.
type Store struct {
	mu        sync.Mutex // serializes writers
	current   atomic.Pointer[Session]
	backend   Backend
	logger    *slog.Logger
	listeners []func(Session)
}

// Option configures a Store.
type Option func(*Store)

// WithBackend sets where credentials are persisted. Default is memory only.
func WithBackend(b Backend) Option {
	return func(s *Store) {
		s.backend = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a Store and loads any persisted session from its backend.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		backend: NewMemoryBackend(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	sess, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(sess)
	return s, nil
}

// Access returns the current access token, or "" when logged out.
func (s *Store) Access() string {
	return s.current.Load().AccessToken
}

// Refresh returns the current refresh token, or "".
func (s *Store) Refresh() string {
	return s.current.Load().RefreshToken
}

// User returns the logged-in user, if known.
func (s *Store) User() *model.User {
	return s.current.Load().User
}

// IsAuthenticated reports whether an access token is held.
func (s *Store) IsAuthenticated() bool {
	return s.current.Load().Authenticated()
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	return *s.current.Load()
}

// SetTokens stores a new credential pair. An empty refresh token keeps the
// one already held, so a refresh response without rotation is a plain
// SetTokens(newAccess, "").
func (s *Store) SetTokens(access, refresh string) error {
	return s.update(func(next *Session) {
		next.AccessToken = access
		if refresh != "" {
			next.RefreshToken = refresh
		}
	})
}

// SetUser records the logged-in user.
func (s *Store) SetUser(u *model.User) error {
	var cp *model.User
	if u != nil {
		v := *u
		cp = &v
	}
	return s.update(func(next *Session) {
		next.User = cp
	})
}

// Login stores tokens and user in one write.
func (s *Store) Login(access, refresh string, u *model.User) error {
	var cp *model.User
	if u != nil {
		v := *u
		cp = &v
	}
	return s.update(func(next *Session) {
		*next = Session{AccessToken: access, RefreshToken: refresh, User: cp}
	})
}

// Clear removes every credential.
func (s *Store) Clear() error {
	return s.update(func(next *Session) {
		*next = Session{}
	})
}

// ClearIfUnchanged clears the session unless its access token differs
// from snapshot, and reports whether anything was removed. Leftovers of a
// session without an access token are cleared too. The comparison and the
// clear happen under the writer lock.
func (s *Store) ClearIfUnchanged(snapshot string) (bool, error) {
	cleared := false
	err := s.updateIf(func(cur Session) bool {
		if cur.AccessToken != "" && cur.AccessToken != snapshot {
			return false
		}
		cleared = cur.AccessToken != "" || cur.RefreshToken != "" || cur.User != nil
		return cleared
	}, func(next *Session) {
		*next = Session{}
	})
	return cleared, err
}

// OnChange registers fn to be called after every change, including
// changes picked up by Reload. fn runs synchronously on the writer's
// goroutine, which may be a refresh in progress: it must not wait on a
// request sent through the session's transport.
func (s *Store) OnChange(fn func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads the backend and adopts its session if it differs from
// the one held. It reports whether anything changed.
func (s *Store) Reload() (bool, error) {
	s.mu.Lock()
	sess, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	cur := s.current.Load()
	if sameSession(cur, sess) {
		s.mu.Unlock()
		return false, nil
	}
	s.current.Store(sess)
	listeners := s.listeners
	s.mu.Unlock()

	s.logger.Info("SESSION_RELOADED", "authenticated", sess.Authenticated())
	for _, fn := range listeners {
		fn(*sess)
	}
	return true, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// update applies fn to a copy of the current session, publishes it and
// writes it through. The in-memory session is updated even if the write
// fails, so the running process keeps working.
func (s *Store) update(fn func(next *Session)) error {
	return s.updateIf(nil, fn)
}

// updateIf is update guarded by cond, evaluated under the writer lock.
func (s *Store) updateIf(cond func(cur Session) bool, fn func(next *Session)) error {
	s.mu.Lock()
	next := *s.current.Load()
	if cond != nil && !cond(next) {
		s.mu.Unlock()
		return nil
	}
	fn(&next)
	s.current.Store(&next)
	err := s.persist(&next)
	listeners := s.listeners
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("SESSION_PERSIST_FAILED", "error", err)
	}
	for _, fn := range listeners {
		fn(next)
	}
	return err
}

func (s *Store) persist(sess *Session) error {
	values := make(map[string]string, 3)
	if sess.AccessToken != "" {
		values[KeyAccessToken] = sess.AccessToken
	}
	if sess.RefreshToken != "" {
		values[KeyRefreshToken] = sess.RefreshToken
	}
	if sess.User != nil {
		data, err := json.Marshal(sess.User)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		values[KeyUser] = string(data)
	}
	if err := s.backend.Save(values); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) load() (*Session, error) {
	values, err := s.backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess := &Session{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
	}
	if raw := values[KeyUser]; raw != "" {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Warn("SESSION_USER_CORRUPT", "error", err)
		} else {
			sess.User = &u
		}
	}
	return sess, nil
}

func sameSession(a, b *Session) bool {
	if a.AccessToken != b.AccessToken || a.RefreshToken != b.RefreshToken {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || a.User.ID == b.User.ID
}
