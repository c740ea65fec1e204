// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// scripted answers every StreamMessage with body, or fails with err.
type scripted struct {
	body string
	err  error
	reqs []model.ChatRequest
}

func (s *scripted) StreamMessage(ctx context.Context, req model.ChatRequest) (*stream.Stream, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return stream.NewStream(ctx, io.NopCloser(strings.NewReader(s.body)), stream.WithLogger(logging.Discard())), nil
}

func frames(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("data: " + l + "\n\n")
	}
	return b.String()
}

func TestSend_CompleteTurn(t *testing.T) {
	client := &scripted{body: frames(
		`{"type":"token","content":"Las clases "}`,
		`{"type":"token","content":"inician el 1 de abril."}`,
		`{"type":"sources","sources":[{"document_id":"d-1","title":"Calendario académico","page":4}]}`,
		`{"type":"done","conversation_id":"c-1","message_id":"m-1"}`,
	)}
	conv := New(client, logging.Discard())
	conv.SetCategory("cat-1")

	var tokens []string
	reply, err := conv.Send(context.Background(), "¿Cuándo inician las clases?", func(tok string) {
		tokens = append(tokens, tok)
	})
	require.NoError(t, err)

	assert.True(t, reply.Complete)
	assert.False(t, reply.Failed)
	assert.Equal(t, "Las clases inician el 1 de abril.", reply.Message.Content)
	assert.Equal(t, "m-1", reply.Message.ID)
	assert.Equal(t, []string{"Las clases ", "inician el 1 de abril."}, tokens)
	assert.Equal(t, "c-1", conv.ID())
	assert.Equal(t, "c-1", reply.Message.ConversationID)

	require.Len(t, client.reqs, 1)
	assert.Equal(t, model.ChatRequest{Message: "¿Cuándo inician las clases?", CategoryID: "cat-1"}, client.reqs[0])

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Len(t, conv.LastSources(), 1)
	assert.Equal(t, "Calendario académico", conv.LastSources()[0].Title)
	assert.Equal(t, "m-1", conv.LastAnswerID())
}

func TestSend_FollowUpCarriesConversationID(t *testing.T) {
	client := &scripted{body: frames(`{"type":"done","conversation_id":"c-1","message_id":"m-1"}`)}
	conv := New(client, logging.Discard())

	_, err := conv.Send(context.Background(), "hola", nil)
	require.NoError(t, err)
	_, err = conv.Send(context.Background(), "y mañana?", nil)
	require.NoError(t, err)

	require.Len(t, client.reqs, 2)
	assert.Empty(t, client.reqs[0].ConversationID)
	assert.Equal(t, "c-1", client.reqs[1].ConversationID)

	conv.Reset()
	assert.Empty(t, conv.ID())
	assert.Empty(t, conv.Messages())
}

func TestSend_ErrorEvent(t *testing.T) {
	client := &scripted{body: frames(
		`{"type":"token","content":"parcial"}`,
		`{"type":"error","message":"LLM no disponible"}`,
	)}
	conv := New(client, logging.Discard())

	reply, err := conv.Send(context.Background(), "hola", nil)
	require.ErrorIs(t, err, ErrIncompleteTurn)
	assert.True(t, reply.Failed)
	assert.Equal(t, "Error: LLM no disponible", reply.Message.Content)
	assert.True(t, IsLocalID(reply.Message.ID))
	assert.Empty(t, conv.LastAnswerID())
}

func TestSend_TruncatedStream(t *testing.T) {
	client := &scripted{body: frames(
		`{"type":"token","content":"A"}`,
		`{"type":"token","content":"B"}`,
	)}
	conv := New(client, logging.Discard())

	reply, err := conv.Send(context.Background(), "hola", nil)
	require.ErrorIs(t, err, ErrIncompleteTurn)
	assert.False(t, reply.Complete)
	assert.Equal(t, "AB", reply.Message.Content, "partial content is kept")
	assert.False(t, reply.Notice)
	assert.Len(t, conv.Messages(), 2)
}

func TestSend_ConnectionFailure(t *testing.T) {
	client := &scripted{err: errors.New("dial tcp: connection refused")}
	conv := New(client, logging.Discard())

	reply, err := conv.Send(context.Background(), "hola", nil)
	require.ErrorIs(t, err, ErrIncompleteTurn)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, ConnectionErrorText, reply.Message.Content)
	assert.True(t, reply.Notice)
}

func TestSend_Cancelled(t *testing.T) {
	client := &scripted{err: context.Canceled}
	conv := New(client, logging.Discard())

	reply, err := conv.Send(context.Background(), "hola", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CancelledText, reply.Message.Content)
}

func TestSend_InvalidMessage(t *testing.T) {
	client := &scripted{}
	conv := New(client, logging.Discard())

	_, err := conv.Send(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, model.ErrEmptyMessage)
	assert.Empty(t, conv.Messages())
	assert.Empty(t, client.reqs)
}

func TestResume(t *testing.T) {
	history := []model.ChatMessage{
		{ID: "m-1", Role: model.RoleUser, Content: "hola"},
		{ID: "m-2", Role: model.RoleAssistant, Content: "¡Hola!", SourceDocuments: []model.SourceDocument{{Title: "FAQ"}}},
	}
	conv := Resume(&scripted{}, nil, "c-9", history)
	history[0].Content = "mutated"

	assert.Equal(t, "c-9", conv.ID())
	assert.Equal(t, "hola", conv.Messages()[0].Content)
	assert.Equal(t, "m-2", conv.LastAnswerID())
	assert.Equal(t, "FAQ", conv.LastSources()[0].Title)
}
