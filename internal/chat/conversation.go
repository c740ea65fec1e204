// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// ErrIncompleteTurn is returned when the answer stream ended without a
// done event. The partial reply is still returned.
var ErrIncompleteTurn = errors.New("answer ended before completion")

// Texts substituted for the assistant's reply when no content arrived.
const (
	ConnectionErrorText = "Could not reach the server. Please try again."
	CancelledText       = "Cancelled."
)

// localIDPrefix marks ids of messages the service has not assigned.
const localIDPrefix = "local-"

// Streamer opens an answer stream. *api.Client implements it.
type Streamer interface {
	StreamMessage(ctx context.Context, req model.ChatRequest) (*stream.Stream, error)
}

// Reply is the outcome of one turn.
type Reply struct {
	Message model.ChatMessage
	// Complete is set when the service confirmed the turn with done.
	Complete bool
	// Failed is set when the service reported an error event.
	Failed bool
	// Notice is set when Content is a substituted notice rather than
	// text from the service.
	Notice bool
}

// Conversation is the client side of one chat thread. It is not safe for
// concurrent use; one turn runs at a time.
type Conversation struct {
	client     Streamer
	id         string
	categoryID string
	messages   []model.ChatMessage
	logger     *slog.Logger
	now        func() time.Time
}

// New starts an empty conversation.
func New(client Streamer, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{client: client, logger: logger, now: time.Now}
}

// Resume continues an existing conversation with its stored messages.
func Resume(client Streamer, logger *slog.Logger, id string, messages []model.ChatMessage) *Conversation {
	c := New(client, logger)
	c.id = id
	c.messages = append(c.messages, messages...)
	return c
}

// ID returns the conversation id, or "" before the first completed turn.
func (c *Conversation) ID() string { return c.id }

// Category returns the category filter.
func (c *Conversation) Category() string { return c.categoryID }

// SetCategory restricts retrieval to one category. "" removes the filter.
func (c *Conversation) SetCategory(id string) { c.categoryID = id }

// Messages returns the messages of this conversation in order.
func (c *Conversation) Messages() []model.ChatMessage {
	out := make([]model.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Reset starts a new conversation, keeping the category filter.
func (c *Conversation) Reset() {
	c.id = ""
	c.messages = nil
}

// LastSources returns the sources cited by the latest assistant message.
func (c *Conversation) LastSources() []model.SourceDocument {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == model.RoleAssistant {
			return c.messages[i].SourceDocuments
		}
	}
	return nil
}

// LastAnswerID returns the service id of the latest assistant message, or
// "" if it has none.
func (c *Conversation) LastAnswerID() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == model.RoleAssistant {
			if IsLocalID(m.ID) {
				return ""
			}
			return m.ID
		}
	}
	return ""
}

// IsLocalID reports whether id was assigned on this side.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// Send asks text and drives the answer stream to its end. onToken, if set,
// receives each token as it arrives.
//
// The assistant message is appended in every case. On an error event its
// content becomes "Error: <message>". When the stream ends without done,
// the partial reply is returned with ErrIncompleteTurn; if no content
// arrived at all a fixed notice replaces it.
func (c *Conversation) Send(ctx context.Context, text string, onToken func(string)) (*Reply, error) {
	req := model.ChatRequest{Message: text, ConversationID: c.id, CategoryID: c.categoryID}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.messages = append(c.messages, model.ChatMessage{
		ID:             localIDPrefix + uuid.NewString(),
		ConversationID: c.id,
		Role:           model.RoleUser,
		Content:        text,
		CreatedAt:      model.Timestamp{Time: c.now()},
	})

	reply := &Reply{Message: model.ChatMessage{Role: model.RoleAssistant}}
	content, streamErr := c.consume(ctx, req, reply, onToken)

	if streamErr != nil && content == "" {
		reply.Notice = true
		content = ConnectionErrorText
		if errors.Is(streamErr, context.Canceled) {
			content = CancelledText
		}
	}

	msg := &reply.Message
	msg.Content = content
	msg.ConversationID = c.id
	msg.CreatedAt = model.Timestamp{Time: c.now()}
	if msg.ID == "" {
		msg.ID = localIDPrefix + uuid.NewString()
	}
	c.messages = append(c.messages, *msg)

	if streamErr != nil {
		c.logger.Debug("CHAT_TURN_FAILED", "error", streamErr, "partial", len(content))
		return reply, fmt.Errorf("%w: %w", ErrIncompleteTurn, streamErr)
	}
	if !reply.Complete {
		c.logger.Debug("CHAT_TURN_INCOMPLETE", "partial", len(content))
		return reply, ErrIncompleteTurn
	}
	return reply, nil
}

// consume reads the stream into reply and returns the accumulated content.
func (c *Conversation) consume(ctx context.Context, req model.ChatRequest, reply *Reply, onToken func(string)) (string, error) {
	s, err := c.client.StreamMessage(ctx, req)
	if err != nil {
		return "", err
	}
	defer s.Close()

	// Close aborts a read blocked on a cancelled context.
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var content string
	for ev, err := range s.All() {
		if err != nil {
			if ctx.Err() != nil {
				return content, ctx.Err()
			}
			return content, err
		}
		switch ev.Type {
		case stream.EventToken:
			content += ev.Content
			if onToken != nil {
				onToken(ev.Content)
			}
		case stream.EventSources:
			reply.Message.SourceDocuments = ev.Sources
		case stream.EventDone:
			if ev.ConversationID != "" {
				c.id = ev.ConversationID
			}
			reply.Message.ID = ev.MessageID
			reply.Complete = true
		case stream.EventError:
			content = "Error: " + ev.Message
			reply.Failed = true
		}
	}
	return content, nil
}
