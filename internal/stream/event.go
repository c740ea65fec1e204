// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jeranaias/ragchat/internal/model"
)

// FramePrefix starts every line that carries a payload.
const FramePrefix = "data: "

// EventType discriminates stream events.
type EventType string

const (
	EventToken   EventType = "token"
	EventSources EventType = "sources"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one decoded frame. Which fields are set depends on Type:
// Content for token, Sources for sources, ConversationID and MessageID
// for done, Message for error.
type Event struct {
	Type           EventType              `json:"type"`
	Content        string                 `json:"content,omitempty"`
	Sources        []model.SourceDocument `json:"sources,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	MessageID      string                 `json:"message_id,omitempty"`
	Message        string                 `json:"message,omitempty"`
}

func (e Event) String() string {
	switch e.Type {
	case EventToken:
		return fmt.Sprintf("token(%q)", e.Content)
	case EventSources:
		return fmt.Sprintf("sources(%d)", len(e.Sources))
	case EventDone:
		return fmt.Sprintf("done(%s,%s)", e.ConversationID, e.MessageID)
	case EventError:
		return fmt.Sprintf("error(%q)", e.Message)
	default:
		return string(e.Type)
	}
}

// Token returns a token event.
func Token(content string) Event { return Event{Type: EventToken, Content: content} }

// Done returns a done event.
func Done(conversationID, messageID string) Event {
	return Event{Type: EventDone, ConversationID: conversationID, MessageID: messageID}
}

// ParseLine decodes one complete line. It reports false for lines without
// the frame prefix, payloads that are not valid JSON, and unknown types.
func ParseLine(line []byte) (Event, bool) {
	payload, ok := bytes.CutPrefix(line, []byte(FramePrefix))
	if !ok {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, false
	}
	switch ev.Type {
	case EventToken, EventSources, EventDone, EventError:
		return ev, true
	default:
		return Event{}, false
	}
}
