// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
)

// fakeService is an in-memory stand-in for the chat service's HTTP API.
type fakeService struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	users    map[string]string // email -> password
	access   map[string]bool
	refresh  map[string]bool
	seq      int
	rotate   bool
	messages map[string][]model.ChatMessage

	refreshCalls atomic.Int32
	logoutAuth   atomic.Value
	lastHeaders  atomic.Value
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		t:        t,
		users:    map[string]string{"ana@upao.edu.pe": "secreto1"},
		access:   map[string]bool{},
		refresh:  map[string]bool{},
		messages: map[string][]model.ChatMessage{},
	}
	f.logoutAuth.Store("")
	f.lastHeaders.Store(http.Header{})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", f.login)
	mux.HandleFunc("POST /api/v1/auth/register", f.register)
	mux.HandleFunc("POST /api/v1/auth/refresh", f.refreshToken)
	mux.HandleFunc("POST /api/v1/auth/logout", f.logout)
	mux.HandleFunc("GET /api/v1/auth/me", f.authed(f.me))
	mux.HandleFunc("POST /api/v1/chat/message", f.authed(f.message))
	mux.HandleFunc("POST /api/v1/chat/stream", f.authed(f.stream))
	mux.HandleFunc("GET /api/v1/chat/conversations", f.authed(f.conversations))
	mux.HandleFunc("GET /api/v1/chat/conversations/{id}", f.authed(f.conversation))
	mux.HandleFunc("DELETE /api/v1/chat/conversations/{id}", f.authed(f.deleteConversation))
	mux.HandleFunc("POST /api/v1/chat/feedback", f.authed(f.feedback))
	mux.HandleFunc("GET /api/v1/chat/autocomplete", f.authed(f.autocomplete))
	mux.HandleFunc("GET /api/v1/chat/suggested-questions", f.authed(f.suggested))
	mux.HandleFunc("GET /api/v1/categories/", f.authed(f.categories))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) baseURL() string { return f.srv.URL + "/api/v1" }

// newClient returns a Client with an in-memory session.
func (f *fakeService) newClient(opts ...Option) *Client {
	f.t.Helper()
	store, err := session.NewStore(session.WithLogger(logging.Discard()))
	require.NoError(f.t, err)

	cfg := config.Default().API
	cfg.BaseURL = f.baseURL()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(cfg, store, opts...)
}

// issue creates a fresh token pair.
func (f *fakeService) issue() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	a, r := fmt.Sprintf("access-%d", f.seq), fmt.Sprintf("refresh-%d", f.seq)
	f.access[a] = true
	f.refresh[r] = true
	return a, r
}

// expireAccess invalidates every access token.
func (f *fakeService) expireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = map[string]bool{}
}

// revokeRefresh invalidates every refresh token.
func (f *fakeService) revokeRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = map[string]bool{}
}

func (f *fakeService) user(email string) model.User {
	return model.User{ID: "u-" + strings.Split(email, "@")[0], Email: email, FullName: "Ana Torres", Role: model.AccountUser, IsActive: true}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok", "data": data})
}

func fail(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": code, "message": msg})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *fakeService) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.lastHeaders.Store(r.Header.Clone())
		f.mu.Lock()
		valid := f.access[bearer(r)]
		f.mu.Unlock()
		if !valid {
			fail(w, http.StatusUnauthorized, "Token expirado", "El token ha expirado.")
			return
		}
		h(w, r)
	}
}

func (f *fakeService) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	json.NewDecoder(r.Body).Decode(&in)
	f.mu.Lock()
	pw, found := f.users[in.Email]
	f.mu.Unlock()
	if !found || pw != in.Password {
		fail(w, http.StatusUnauthorized, "Credenciales invalidas", "Correo electronico o contrasena incorrectos.")
		return
	}
	a, rt := f.issue()
	ok(w, map[string]any{"user": f.user(in.Email), "access_token": a, "refresh_token": rt})
}

func (f *fakeService) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	json.NewDecoder(r.Body).Decode(&in)
	f.mu.Lock()
	_, exists := f.users[in.Email]
	if !exists {
		f.users[in.Email] = in.Password
	}
	f.mu.Unlock()
	if exists {
		fail(w, http.StatusConflict, "Email duplicado", "Ya existe una cuenta con este correo electronico.")
		return
	}
	a, rt := f.issue()
	u := f.user(in.Email)
	u.FullName = in.FullName
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    map[string]any{"user": u, "access_token": a, "refresh_token": rt},
	})
}

func (f *fakeService) refreshToken(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	valid := f.refresh[bearer(r)]
	f.mu.Unlock()
	if !valid {
		fail(w, http.StatusUnauthorized, "Token invalido", "No se pudo renovar el token.")
		return
	}
	a, rt := f.issue()
	data := map[string]any{"access_token": a}
	if f.rotate {
		data["refresh_token"] = rt
	}
	ok(w, data)
}

func (f *fakeService) logout(w http.ResponseWriter, r *http.Request) {
	f.logoutAuth.Store(r.Header.Get("Authorization"))
	ok(w, nil)
}

func (f *fakeService) me(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"user": f.user("ana@upao.edu.pe")})
}

func (f *fakeService) message(w http.ResponseWriter, r *http.Request) {
	var in model.ChatRequest
	json.NewDecoder(r.Body).Decode(&in)
	conv := in.ConversationID
	if conv == "" {
		conv = "c-new"
	}
	ok(w, map[string]any{
		"conversation_id": conv,
		"message": map[string]any{
			"id": "m-1", "conversation_id": conv, "role": "assistant",
			"content": "Respuesta a: " + in.Message, "source_documents": nil,
			"created_at": "2025-03-01T10:00:00.123456",
		},
	})
}

func (f *fakeService) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, frame := range []string{
		`{"type":"token","content":"La matrícula "}`,
		`{"type":"token","content":"es en marzo."}`,
		`{"type":"sources","sources":[{"document_id":"d-1","title":"Calendario","page":2}]}`,
		`{"type":"done","conversation_id":"c-1","message_id":"m-9"}`,
	} {
		io.WriteString(w, "data: "+frame+"\n\n")
		w.(http.Flusher).Flush()
	}
}

func (f *fakeService) conversations(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("page")
	n, _ := strconv.Atoi(page)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": []map[string]any{
			{"conversation_id": "c-" + page, "last_message_at": "2025-03-01T10:00:00", "preview": "¿Cuándo es la matrícula?"},
		},
		"pagination": map[string]any{"total": 21, "page": n, "per_page": 20, "pages": 2},
	})
}

func (f *fakeService) conversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	msgs, found := f.messages[id]
	f.mu.Unlock()
	if !found {
		fail(w, http.StatusNotFound, "No encontrada", "Conversacion no encontrada.")
		return
	}
	ok(w, map[string]any{"messages": msgs})
}

func (f *fakeService) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	_, found := f.messages[id]
	delete(f.messages, id)
	f.mu.Unlock()
	if !found {
		fail(w, http.StatusNotFound, "No encontrada", "Conversacion no encontrada.")
		return
	}
	ok(w, nil)
}

func (f *fakeService) feedback(w http.ResponseWriter, r *http.Request) {
	var in model.FeedbackRequest
	json.NewDecoder(r.Body).Decode(&in)
	if in.ChatHistoryID != "m-1" {
		fail(w, http.StatusNotFound, "No encontrado", "Mensaje no encontrado.")
		return
	}
	ok(w, nil)
}

func (f *fakeService) autocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	ok(w, map[string]any{"suggestions": []model.Suggestion{
		{Text: q + " 2025", Source: "history"},
		{Text: q + " de pregrado", Source: "document"},
	}})
}

func (f *fakeService) suggested(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"questions": []string{"¿Cómo me matriculo?", "¿Dónde veo mis notas?"}})
}

func (f *fakeService) categories(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"categories": []model.Category{
		{ID: "cat-1", Name: "Reglamentos", Slug: "reglamentos", IsActive: true, DocumentCount: 12},
	}})
}
