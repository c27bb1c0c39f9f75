package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	modelChat "messenger_backend/internal/models/chat"
	repoChat "messenger_backend/internal/repositories/chat"
	"messenger_backend/pkg/apperrors"
)

// ChatService is the durable side of the messenger: idempotent message
// creation, conversation management and the delivery-state transitions.
// Every transition is a conditional update; callers emit events only for
// rows the storage layer actually changed.
type ChatService struct {
	Conversations *repoChat.ConversationRepository
	Messages      *repoChat.MessageRepository
	Guard         *AccessGuard
}

func NewChatService(
	conversations *repoChat.ConversationRepository,
	messages *repoChat.MessageRepository,
	guard *AccessGuard,
) *ChatService {
	return &ChatService{
		Conversations: conversations,
		Messages:      messages,
		Guard:         guard,
	}
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Type           string
	Body           *string
	IsEncrypted    bool
	MediaURL       *string
	MediaName      *string
	MediaMime      *string
	MediaSize      *int64
	VoiceDuration  *int
	ClientID       *string
	ReplyToID      *string
}

func validMessageType(t string) bool {
	switch t {
	case modelChat.MessageTypeText, modelChat.MessageTypeImage, modelChat.MessageTypeVideo,
		modelChat.MessageTypeFile, modelChat.MessageTypeVoice:
		return true
	}
	return false
}

// CreateMessage persists a message exactly once per client id. A retried
// send with the same (conversation, sender, client id) tuple returns the
// original row with created=false and must not be fanned out again.
func (s *ChatService) CreateMessage(input SendMessageInput) (*modelChat.Message, bool, error) {
	if err := s.Guard.AssertConversationAccess(input.ConversationID, input.SenderID); err != nil {
		return nil, false, err
	}

	recipientID, err := s.Conversations.OtherParticipantID(input.ConversationID, input.SenderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.NotFound("chat", "Conversation not found")
		}
		return nil, false, apperrors.DatabaseError(err)
	}

	if err := s.Guard.AssertCanMessage(input.SenderID, recipientID); err != nil {
		return nil, false, err
	}

	if input.ClientID != nil && *input.ClientID != "" {
		existing, err := s.Messages.FindByClientID(input.ConversationID, input.SenderID, *input.ClientID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.DatabaseError(err)
		}
	}

	msgType := input.Type
	if msgType == "" {
		msgType = modelChat.MessageTypeText
	}
	if !validMessageType(msgType) {
		return nil, false, apperrors.ValidationError("Unknown message type")
	}

	hasBody := input.Body != nil && *input.Body != ""
	hasMedia := input.MediaURL != nil && *input.MediaURL != ""
	if !hasBody && !hasMedia {
		return nil, false, apperrors.ValidationError("Message requires a body or media")
	}

	message := &modelChat.Message{
		ID:             uuid.New().String(),
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		RecipientID:    recipientID,
		Type:           msgType,
		Body:           input.Body,
		IsEncrypted:    input.IsEncrypted,
		MediaURL:       input.MediaURL,
		MediaName:      input.MediaName,
		MediaMime:      input.MediaMime,
		MediaSize:      input.MediaSize,
		VoiceDuration:  input.VoiceDuration,
		ClientID:       input.ClientID,
		ReplyToID:      input.ReplyToID,
		CreatedAt:      time.Now(),
	}

	if err := s.Messages.Create(message); err != nil {
		// Two retries racing past the lookup land here; the unique index
		// on (conversation, sender, client_id) keeps exactly one row.
		if errors.Is(err, gorm.ErrDuplicatedKey) && input.ClientID != nil {
			existing, lookupErr := s.Messages.FindByClientID(input.ConversationID, input.SenderID, *input.ClientID)
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, apperrors.DatabaseError(err)
	}

	if err := s.Conversations.BumpLastMessage(input.ConversationID, message.CreatedAt); err != nil {
		return nil, false, apperrors.DatabaseError(err)
	}

	return message, true, nil
}

// GetOrCreateDirect returns the direct conversation between the two users,
// creating it if absent. The unique key makes re-creation idempotent even
// under a concurrent create from both sides.
func (s *ChatService) GetOrCreateDirect(userA, userB string) (*modelChat.Conversation, error) {
	if userA == userB {
		return nil, apperrors.ValidationError("Cannot start a conversation with yourself")
	}
	if err := s.Guard.AssertCanMessage(userA, userB); err != nil {
		return nil, err
	}

	key := modelChat.DirectKey(userA, userB)

	conv, err := s.Conversations.FindByUniqueKey(key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.DatabaseError(err)
	}

	conv = &modelChat.Conversation{
		ID:        uuid.New().String(),
		UniqueKey: key,
		CreatedAt: time.Now(),
	}
	if err := s.Conversations.CreateDirect(conv, userA, userB); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := s.Conversations.FindByUniqueKey(key)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, apperrors.DatabaseError(err)
	}

	full, err := s.Conversations.FindByID(conv.ID)
	if err != nil {
		return conv, nil
	}
	return full, nil
}

func (s *ChatService) GetConversations(userID string) ([]modelChat.Conversation, error) {
	convs, err := s.Conversations.FindAllByUser(userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return convs, nil
}

func (s *ChatService) GetMessages(userID, conversationID string, limit int, before *time.Time) ([]modelChat.Message, error) {
	if err := s.Guard.AssertConversationAccess(conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	messages, err := s.Messages.ListByConversation(conversationID, limit, before)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return messages, nil
}

// DeleteConversationForUser hides the conversation for one participant.
func (s *ChatService) DeleteConversationForUser(conversationID, userID string) error {
	if err := s.Guard.AssertConversationAccess(conversationID, userID); err != nil {
		return err
	}
	if err := s.Conversations.SoftDeleteForUser(conversationID, userID); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// DeleteMessageForEveryone tombstones a message and detaches replies that
// reference it.
func (s *ChatService) DeleteMessageForEveryone(messageID, userID string) (*modelChat.Message, error) {
	updated, err := s.Messages.DeleteForEveryone(messageID, userID, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("chat", "Message not found or not deletable")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if err := s.Messages.ClearReplyReferences(messageID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return updated, nil
}

func (s *ChatService) UnreadCount(userID, conversationID string) (int64, error) {
	count, err := s.Messages.UnreadCount(userID, conversationID)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return count, nil
}
