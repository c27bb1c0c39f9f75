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

type ReactionService struct {
	Reactions *repoChat.ReactionRepository
	Messages  *repoChat.MessageRepository
	Guard     *AccessGuard
}

func NewReactionService(
	reactions *repoChat.ReactionRepository,
	messages *repoChat.MessageRepository,
	guard *AccessGuard,
) *ReactionService {
	return &ReactionService{
		Reactions: reactions,
		Messages:  messages,
		Guard:     guard,
	}
}

// React stores the user's emoji for a message, overwriting any previous
// one. Returns the reaction together with the message it targets so callers
// can fan the event out to the right conversation.
func (s *ReactionService) React(userID, messageID, emoji string) (*modelChat.MessageReaction, *modelChat.Message, error) {
	if emoji == "" {
		return nil, nil, apperrors.ValidationError("Emoji is required")
	}

	message, err := s.Messages.FindByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("chat", "Message not found")
		}
		return nil, nil, apperrors.DatabaseError(err)
	}
	if err := s.Guard.AssertConversationAccess(message.ConversationID, userID); err != nil {
		return nil, nil, err
	}

	reaction := &modelChat.MessageReaction{
		ID:        uuid.New().String(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}
	if err := s.Reactions.Upsert(reaction); err != nil {
		return nil, nil, apperrors.DatabaseError(err)
	}
	return reaction, message, nil
}

func (s *ReactionService) RemoveReaction(userID, messageID string) error {
	if err := s.Reactions.Remove(userID, messageID); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}
