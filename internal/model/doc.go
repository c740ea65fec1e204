// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures exchanged with the chat service.
//
// # Key Types
//
//   - User: Authenticated account
//   - ChatMessage: Stored message with cited SourceDocuments
//   - ChatRequest: Question sent to the message and stream endpoints
//   - ConversationSummary, Pagination: Conversation history listing
//   - FeedbackRequest: Thumbs up or down on an answer
//   - Category: Document grouping used to filter retrieval
//   - Timestamp: time.Time tolerant of the service's ISO 8601 variants
//
// # Usage
//
//	req := model.ChatRequest{Message: "¿Cuándo inicia la matrícula?"}
//	if err := req.Validate(); err != nil {
//	    return err
//	}
package model
