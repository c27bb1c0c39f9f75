package chat

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"messenger_backend/internal/models/chat"
)

type ConversationRepository struct {
	DB *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

// FindByID returns a conversation with its participants.
func (r *ConversationRepository) FindByID(id string) (*chat.Conversation, error) {
	var conv chat.Conversation
	err := r.DB.Preload("Participants").First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) FindByUniqueKey(key string) (*chat.Conversation, error) {
	var conv chat.Conversation
	err := r.DB.Preload("Participants").First(&conv, "unique_key = ?", key).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateDirect inserts a conversation and both participant rows in one
// transaction. The unique_key index absorbs the create/create race: the
// loser gets a duplicate-key error and should re-read by key.
func (r *ConversationRepository) CreateDirect(conv *chat.Conversation, userA, userB string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		now := time.Now()
		participants := []chat.ConversationParticipant{
			{ConversationID: conv.ID, UserID: userA, JoinedAt: now},
			{ConversationID: conv.ID, UserID: userB, JoinedAt: now},
		}
		return tx.Create(&participants).Error
	})
}

// FindAllByUser returns the conversations the user participates in and has
// not soft-deleted, most recently active first.
func (r *ConversationRepository) FindAllByUser(userID string) ([]chat.Conversation, error) {
	var convs []chat.Conversation
	err := r.DB.
		Joins("JOIN chat.conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ? AND cp.deleted_at IS NULL", userID).
		Preload("Participants").
		Order("conversations.last_message_at DESC NULLS LAST").
		Find(&convs).Error
	return convs, err
}

// IsActiveParticipant reports whether the user belongs to the conversation
// and has not soft-deleted it.
func (r *ConversationRepository) IsActiveParticipant(conversationID, userID string) (bool, error) {
	var count int64
	err := r.DB.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ? AND deleted_at IS NULL", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ConversationRepository) GetParticipants(conversationID string) ([]chat.ConversationParticipant, error) {
	var participants []chat.ConversationParticipant
	err := r.DB.Where("conversation_id = ?", conversationID).Find(&participants).Error
	return participants, err
}

// OtherParticipantID returns the id of the participant that is not userID.
func (r *ConversationRepository) OtherParticipantID(conversationID, userID string) (string, error) {
	var participant chat.ConversationParticipant
	err := r.DB.
		Where("conversation_id = ? AND user_id <> ?", conversationID, userID).
		First(&participant).Error
	if err != nil {
		return "", err
	}
	return participant.UserID, nil
}

// BumpLastMessage moves last_message_at forward, never backward.
func (r *ConversationRepository) BumpLastMessage(conversationID string, t time.Time) error {
	return r.DB.Model(&chat.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", conversationID, t).
		Update("last_message_at", t).Error
}

// SoftDeleteForUser hides the conversation for one participant only.
func (r *ConversationRepository) SoftDeleteForUser(conversationID, userID string) error {
	now := time.Now()
	result := r.DB.Model(&chat.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ? AND deleted_at IS NULL", conversationID, userID).
		Update("deleted_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("participant not found or already deleted")
	}
	return nil
}
