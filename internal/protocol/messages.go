// Package protocol defines the websocket payloads exchanged on the chat
// streaming endpoint.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrEmptyContent = errors.New("content must not be empty")

// ChatPayload is one inbound client turn. KnowledgeBase optionally
// overrides the agent's stored knowledge base for this turn only.
type ChatPayload struct {
	Content       string `json:"content"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
}

// MessageEvent is an outbound text fragment or full message.
type MessageEvent struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// ErrorEvent reports a failure to the client without leaking internals.
type ErrorEvent struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ParseChatPayload decodes and validates one inbound payload.
func ParseChatPayload(data []byte) (ChatPayload, error) {
	var p ChatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ChatPayload{}, err
	}
	if strings.TrimSpace(p.Content) == "" {
		return ChatPayload{}, ErrEmptyContent
	}
	return p, nil
}
