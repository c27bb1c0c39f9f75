package ws

import (
	"encoding/json"

	"messenger_backend/pkg/apperrors"
)

// Client-initiated actions.
const (
	ActionConversationJoin  = "conversation:join"
	ActionConversationLeave = "conversation:leave"
	ActionMessageSend       = "message:send"
	ActionMessageSeen       = "message:seen"
	ActionMessageReact      = "message:react"
	ActionTypingStart       = "typing:start"
	ActionTypingStop        = "typing:stop"
)

// Command is the tagged envelope for client commands: one payload variant
// per action, validated at the transport boundary before anything reaches
// the orchestrator.
type Command struct {
	Action string          `json:"action"`
	AckID  string          `json:"ack_id,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Ack is the per-command acknowledgement. Typing commands are
// fire-and-forget and never acked.
type Ack struct {
	AckID string              `json:"ack_id"`
	OK    bool                `json:"ok"`
	Error *apperrors.AppError `json:"error,omitempty"`
	Data  any                 `json:"data,omitempty"`
}

type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Type           string  `json:"type,omitempty"`
	Body           *string `json:"body,omitempty"`
	IsEncrypted    bool    `json:"isEncrypted,omitempty"`
	MediaURL       *string `json:"mediaUrl,omitempty"`
	MediaName      *string `json:"mediaName,omitempty"`
	MediaMime      *string `json:"mediaMime,omitempty"`
	MediaSize      *int64  `json:"mediaSize,omitempty"`
	VoiceDuration  *int    `json:"voiceDuration,omitempty"`
	ClientID       *string `json:"clientId,omitempty"`
	ReplyToID      *string `json:"replyToMessageId,omitempty"`
}

type MarkSeenPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

type ReactPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type TypingCommandPayload struct {
	ConversationID string `json:"conversationId"`
}

// ParseCommand decodes and validates the command envelope.
func ParseCommand(raw []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, apperrors.ValidationError("Malformed command frame")
	}
	if cmd.Action == "" {
		return nil, apperrors.ValidationError("Command action is required")
	}
	return &cmd, nil
}

func decodeJoin(cmd *Command) (*JoinConversationPayload, error) {
	var p JoinConversationPayload
	if err := json.Unmarshal(cmd.Data, &p); err != nil || p.ConversationID == "" {
		return nil, apperrors.ValidationError("conversationId is required")
	}
	return &p, nil
}

func decodeSend(cmd *Command) (*SendMessagePayload, error) {
	var p SendMessagePayload
	if err := json.Unmarshal(cmd.Data, &p); err != nil {
		return nil, apperrors.ValidationError("Malformed message:send payload")
	}
	if p.ConversationID == "" {
		return nil, apperrors.ValidationError("conversationId is required")
	}
	return &p, nil
}

func decodeSeen(cmd *Command) (*MarkSeenPayload, error) {
	var p MarkSeenPayload
	if err := json.Unmarshal(cmd.Data, &p); err != nil || p.ConversationID == "" {
		return nil, apperrors.ValidationError("conversationId is required")
	}
	return &p, nil
}

func decodeReact(cmd *Command) (*ReactPayload, error) {
	var p ReactPayload
	if err := json.Unmarshal(cmd.Data, &p); err != nil || p.MessageID == "" || p.Emoji == "" {
		return nil, apperrors.ValidationError("messageId and emoji are required")
	}
	return &p, nil
}

func decodeTyping(cmd *Command) (*TypingCommandPayload, error) {
	var p TypingCommandPayload
	if err := json.Unmarshal(cmd.Data, &p); err != nil || p.ConversationID == "" {
		return nil, apperrors.ValidationError("conversationId is required")
	}
	return &p, nil
}
