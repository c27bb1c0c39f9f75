package chat

import (
	"time"

	"gorm.io/gorm"

	"messenger_backend/internal/models/chat"
)

type MessageRepository struct {
	DB *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

func (r *MessageRepository) Create(message *chat.Message) error {
	return r.DB.Create(message).Error
}

func (r *MessageRepository) FindByID(id string) (*chat.Message, error) {
	var message chat.Message
	err := r.DB.First(&message, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// FindByClientID looks up a message by its idempotency tuple.
func (r *MessageRepository) FindByClientID(conversationID, senderID, clientID string) (*chat.Message, error) {
	var message chat.Message
	err := r.DB.
		Where("conversation_id = ? AND sender_id = ? AND client_id = ?", conversationID, senderID, clientID).
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByConversation returns messages oldest-first, optionally only those
// created before the given cursor.
func (r *MessageRepository) ListByConversation(conversationID string, limit int, before *time.Time) ([]chat.Message, error) {
	q := r.DB.Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var messages []chat.Message
	err := q.Order("created_at ASC").Limit(limit).Preload("Reactions").Find(&messages).Error
	return messages, err
}

// MarkDelivered stamps delivered_at on the given messages where it is still
// unset and returns only the rows actually changed. Re-applying is a no-op.
func (r *MessageRepository) MarkDelivered(ids []string, now time.Time) ([]chat.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var updated []chat.Message
	err := r.DB.Raw(`
		UPDATE chat.messages
		SET delivered_at = ?
		WHERE id IN ? AND delivered_at IS NULL AND deleted_for_everyone_at IS NULL
		RETURNING *`, now, ids).
		Scan(&updated).Error
	return updated, err
}

// MarkDeliveredForRecipient is the cross-conversation catch-up pass run when
// a recipient comes online.
func (r *MessageRepository) MarkDeliveredForRecipient(recipientID string, now time.Time) ([]chat.Message, error) {
	var updated []chat.Message
	err := r.DB.Raw(`
		UPDATE chat.messages
		SET delivered_at = ?
		WHERE recipient_id = ? AND delivered_at IS NULL AND deleted_for_everyone_at IS NULL
		RETURNING *`, now, recipientID).
		Scan(&updated).Error
	return updated, err
}

// MarkDeliveredInConversation is the catch-up pass scoped to one
// conversation, used when a connected recipient joins a room.
func (r *MessageRepository) MarkDeliveredInConversation(recipientID, conversationID string, now time.Time) ([]chat.Message, error) {
	var updated []chat.Message
	err := r.DB.Raw(`
		UPDATE chat.messages
		SET delivered_at = ?
		WHERE recipient_id = ? AND conversation_id = ?
		  AND delivered_at IS NULL AND deleted_for_everyone_at IS NULL
		RETURNING *`, now, recipientID, conversationID).
		Scan(&updated).Error
	return updated, err
}

// MarkSeen stamps seen_at for messages addressed to the recipient in the
// conversation. A nil or empty ids slice means whole-conversation catch-up.
// delivered_at is backfilled on the direct Sent->Seen jump so the timestamp
// order invariant holds for every row.
func (r *MessageRepository) MarkSeen(recipientID, conversationID string, ids []string, now time.Time) ([]chat.Message, error) {
	var updated []chat.Message
	var err error
	if len(ids) > 0 {
		err = r.DB.Raw(`
			UPDATE chat.messages
			SET seen_at = ?, delivered_at = COALESCE(delivered_at, ?)
			WHERE recipient_id = ? AND conversation_id = ? AND id IN ?
			  AND seen_at IS NULL AND deleted_for_everyone_at IS NULL
			RETURNING *`, now, now, recipientID, conversationID, ids).
			Scan(&updated).Error
	} else {
		err = r.DB.Raw(`
			UPDATE chat.messages
			SET seen_at = ?, delivered_at = COALESCE(delivered_at, ?)
			WHERE recipient_id = ? AND conversation_id = ?
			  AND seen_at IS NULL AND deleted_for_everyone_at IS NULL
			RETURNING *`, now, now, recipientID, conversationID).
			Scan(&updated).Error
	}
	return updated, err
}

// DeleteForEveryone tombstones the message content while keeping the row
// for ordering and threading. Only the sender may do this.
func (r *MessageRepository) DeleteForEveryone(messageID, senderID string, now time.Time) (*chat.Message, error) {
	var updated []chat.Message
	err := r.DB.Raw(`
		UPDATE chat.messages
		SET deleted_for_everyone_at = ?, body = NULL,
		    media_url = NULL, media_name = NULL, media_mime = NULL, media_size = NULL
		WHERE id = ? AND sender_id = ? AND deleted_for_everyone_at IS NULL
		RETURNING *`, now, messageID, senderID).
		Scan(&updated).Error
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &updated[0], nil
}

// ClearReplyReferences detaches replies that point at a deleted message.
// References are cleared, not cascaded.
func (r *MessageRepository) ClearReplyReferences(messageID string) error {
	return r.DB.Model(&chat.Message{}).
		Where("reply_to_id = ?", messageID).
		Update("reply_to_id", nil).Error
}

// UnreadCount counts messages addressed to the user that are not yet seen.
func (r *MessageRepository) UnreadCount(recipientID, conversationID string) (int64, error) {
	var count int64
	err := r.DB.Model(&chat.Message{}).
		Where("recipient_id = ? AND conversation_id = ? AND seen_at IS NULL AND deleted_for_everyone_at IS NULL",
			recipientID, conversationID).
		Count(&count).Error
	return count, err
}
