package websocket

import (
	"encoding/json"
	"strings"

	"github.com/nfrund/relay/internal/domain"
)

// Outbound event types.
const (
	TypeChatMessage    = "chatMessage"
	TypeError          = "error"
	TypeSessionExpired = "session_expired"
)

// Message is the envelope for every outbound frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ErrorPayload is sent only to the connection whose submission failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload.
func NewMessage(msgType string, payload any) Message {
	return Message{Type: msgType, Payload: payload}
}

// NewChatMessage wraps a broadcast chat message.
func NewChatMessage(msg domain.ChatMessage) Message {
	return NewMessage(TypeChatMessage, msg)
}

// NewError builds an error event from err.
func NewError(err error) Message {
	return newErrorCode(domain.ErrorCode(err))
}

func newErrorCode(code string) Message {
	return NewMessage(TypeError, ErrorPayload{Code: code, Message: errorText(code)})
}

func errorText(code string) string {
	switch code {
	case domain.CodeMalformedMessage:
		return "Message content is empty or invalid"
	case domain.CodePersistenceUnavailable:
		return "Message was delivered but could not be saved"
	case domain.CodeRateLimited:
		return "Too many messages, slow down"
	default:
		return "Message could not be sent"
	}
}

// inbound is a client frame. A type field is accepted and ignored.
type inbound struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

// decodeInbound extracts the content from a client frame. Frames may be a
// JSON object with a content field or a bare JSON string.
func decodeInbound(data []byte) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", domain.ErrMalformedInboundMessage
		}
		return s, nil
	}

	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return "", domain.ErrMalformedInboundMessage
	}
	return in.Content, nil
}
