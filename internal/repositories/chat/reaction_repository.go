package chat

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"messenger_backend/internal/models/chat"
)

type ReactionRepository struct {
	DB *gorm.DB
}

func NewReactionRepository(db *gorm.DB) *ReactionRepository {
	return &ReactionRepository{DB: db}
}

// Upsert stores the user's reaction to a message. Last write wins: an
// existing reaction by the same user is overwritten, not duplicated.
func (r *ReactionRepository) Upsert(reaction *chat.MessageReaction) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "created_at"}),
	}).Create(reaction).Error
}

func (r *ReactionRepository) Remove(userID, messageID string) error {
	return r.DB.
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Delete(&chat.MessageReaction{}).Error
}

func (r *ReactionRepository) GetByMessageID(messageID string) ([]chat.MessageReaction, error) {
	var reactions []chat.MessageReaction
	err := r.DB.Where("message_id = ?", messageID).Find(&reactions).Error
	return reactions, err
}
