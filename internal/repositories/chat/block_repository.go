package chat

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"messenger_backend/internal/models/chat"
)

type BlockRepository struct {
	DB *gorm.DB
}

func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{DB: db}
}

func (r *BlockRepository) Block(blockerID, blockedID string) error {
	block := &chat.UserBlock{BlockerID: blockerID, BlockedID: blockedID}
	return r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(block).Error
}

func (r *BlockRepository) Unblock(blockerID, blockedID string) error {
	return r.DB.
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&chat.UserBlock{}).Error
}

// IsBlockedEither reports whether a block exists in either direction
// between the two users.
func (r *BlockRepository) IsBlockedEither(userA, userB string) (bool, error) {
	var count int64
	err := r.DB.Model(&chat.UserBlock{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			userA, userB, userB, userA).
		Count(&count).Error
	return count > 0, err
}

// BlockedWith returns the subset of candidates that have a block in either
// direction with the viewer. One query regardless of candidate count.
func (r *BlockRepository) BlockedWith(viewerID string, candidateIDs []string) (map[string]bool, error) {
	blocked := make(map[string]bool)
	if len(candidateIDs) == 0 {
		return blocked, nil
	}

	var rows []chat.UserBlock
	err := r.DB.
		Where("(blocker_id = ? AND blocked_id IN ?) OR (blocked_id = ? AND blocker_id IN ?)",
			viewerID, candidateIDs, viewerID, candidateIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.BlockerID == viewerID {
			blocked[row.BlockedID] = true
		} else {
			blocked[row.BlockerID] = true
		}
	}
	return blocked, nil
}
