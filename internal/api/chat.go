// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// MessageReply is the answer to a non-streaming question.
type MessageReply struct {
	Message        model.ChatMessage `json:"message"`
	ConversationID string            `json:"conversation_id"`
}

// ConversationPage is one page of the conversation list.
type ConversationPage struct {
	Items      []model.ConversationSummary `json:"items"`
	Pagination model.Pagination            `json:"pagination"`
}

// SendMessage asks a question and waits for the full answer.
func (c *Client) SendMessage(ctx context.Context, req model.ChatRequest) (*MessageReply, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var reply MessageReply
	if _, err := c.do(ctx, call{method: http.MethodPost, path: "/chat/message", body: req}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// StreamMessage asks a question and returns the answer as a Stream. The
// exchange carries the current access token and is not retried; a
// rejected request returns an *Error and produces no events.
func (c *Client) StreamMessage(ctx context.Context, req model.ChatRequest) (*stream.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hreq, err := stream.NewRequest(ctx, c.baseURL+"/chat/stream", c.session.Access(), req)
	if err != nil {
		return nil, err
	}
	requestID := c.setHeaders(hreq)
	hreq.Header.Set("Accept", "text/event-stream")

	s, err := stream.Do(c.streamHTTP, hreq, stream.WithLogger(c.logger), stream.WithMetrics(c.metrics))
	if err != nil {
		var se *stream.StatusError
		if errors.As(err, &se) {
			return nil, &Error{Status: se.StatusCode, Code: se.Code, Message: se.Message, RequestID: requestID}
		}
		return nil, err
	}
	return s, nil
}

// Conversations returns one page of the user's conversations, newest first.
// Pages start at 1.
func (c *Client) Conversations(ctx context.Context, page int) (*ConversationPage, error) {
	if page < 1 {
		page = 1
	}
	var items []model.ConversationSummary
	env, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/chat/conversations",
		query:  url.Values{"page": {strconv.Itoa(page)}},
	}, &items)
	if err != nil {
		return nil, err
	}
	out := &ConversationPage{Items: items}
	if env.Pagination != nil {
		out.Pagination = *env.Pagination
	}
	return out, nil
}

// Conversation returns the messages of one conversation in order.
func (c *Client) Conversation(ctx context.Context, id string) ([]model.ChatMessage, error) {
	path, err := conversationPath(id)
	if err != nil {
		return nil, err
	}
	var data struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: path}, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	path, err := conversationPath(id)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, call{method: http.MethodDelete, path: path}, nil)
	return err
}

// SendFeedback rates an assistant message.
func (c *Client) SendFeedback(ctx context.Context, fb model.FeedbackRequest) error {
	if err := fb.Validate(); err != nil {
		return err
	}
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/chat/feedback", body: fb}, nil)
	return err
}

// Autocomplete returns suggestions for a partial question. An empty query
// returns nothing without a request.
func (c *Client) Autocomplete(ctx context.Context, q string) ([]model.Suggestion, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	var data struct {
		Suggestions []model.Suggestion `json:"suggestions"`
	}
	_, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/chat/autocomplete",
		query:  url.Values{"q": {q}},
	}, &data)
	if err != nil {
		return nil, err
	}
	return data.Suggestions, nil
}

// SuggestedQuestions returns starter questions.
func (c *Client) SuggestedQuestions(ctx context.Context) ([]string, error) {
	var data struct {
		Questions []string `json:"questions"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/chat/suggested-questions"}, &data); err != nil {
		return nil, err
	}
	return data.Questions, nil
}

// Categories returns the active document categories.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var data struct {
		Categories []model.Category `json:"categories"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: "/categories/"}, &data); err != nil {
		return nil, err
	}
	return data.Categories, nil
}

func conversationPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: conversation id is required", ErrInvalidRequest)
	}
	return "/chat/conversations/" + url.PathEscape(id), nil
}
