// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// MaxMessageLength is the longest question the service accepts, in characters.
const MaxMessageLength = 2000

// SourceDocument is a retrieved passage cited by an answer.
type SourceDocument struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Page       int     `json:"page"`
	Preview    string  `json:"preview"`
	Score      float64 `json:"score"`
}

// ChatMessage is one stored message of a conversation.
type ChatMessage struct {
	ID              string           `json:"id"`
	ConversationID  string           `json:"conversation_id"`
	UserID          string           `json:"user_id,omitempty"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	SourceDocuments []SourceDocument `json:"source_documents"`
	CreatedAt       Timestamp        `json:"created_at"`
	Feedback        *int             `json:"feedback,omitempty"`
}

// ChatRequest is the body of a message or stream request.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	CategoryID     string `json:"category_id,omitempty"`
}

// Validation errors.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	ErrInvalidRating   = errors.New("rating must be 1 or -1")
	ErrMissingTargetID = errors.New("chat history id is required")
)

// Validate checks the request against the service's input rules.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	LastMessageAt  Timestamp `json:"last_message_at"`
	Preview        string    `json:"preview"`
}

// Pagination describes a page of a list response.
type Pagination struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

// HasNext reports whether a later page exists.
func (p Pagination) HasNext() bool {
	return p.Page < p.Pages
}

// =============================================================================
// FEEDBACK
// =============================================================================

// Ratings.
const (
	RatingUp   = 1
	RatingDown = -1
)

// FeedbackRequest rates one assistant message.
type FeedbackRequest struct {
	ChatHistoryID string `json:"chat_history_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment,omitempty"`
}

// Validate checks the rating and target.
func (f FeedbackRequest) Validate() error {
	if f.ChatHistoryID == "" {
		return ErrMissingTargetID
	}
	if f.Rating != RatingUp && f.Rating != RatingDown {
		return ErrInvalidRating
	}
	return nil
}

// =============================================================================
// DISCOVERY
// =============================================================================

// Suggestion is an autocomplete candidate.
type Suggestion struct {
	Text   string `json:"text"`
	Source string `json:"source"` // history | document
}

// Category groups documents for filtered retrieval.
type Category struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	Icon          string `json:"icon"`
	Color         string `json:"color"`
	IsActive      bool   `json:"is_active"`
	DocumentCount int    `json:"document_count"`
}
