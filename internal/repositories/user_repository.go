package repositories

import (
	"time"

	"gorm.io/gorm"

	"messenger_backend/internal/models"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) FindByID(id string) (*models.User, error) {
	var user models.User
	err := r.DB.First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByIDs(ids []string) ([]models.User, error) {
	var users []models.User
	err := r.DB.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepository) Create(user *models.User) error {
	return r.DB.Create(user).Error
}

// SetOnline updates the durable presence projection. Called only on the
// 0->1 and 1->0 connection-count transitions, never per connection.
func (r *UserRepository) SetOnline(userID string, online bool, lastSeen time.Time) error {
	updates := map[string]interface{}{"is_online": online}
	if !online {
		updates["last_seen"] = lastSeen
	}
	return r.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

// ResetAllOnline clears the durable online flag for every user. Run at
// startup: the in-memory presence registry starts empty, so nobody is
// reachable yet.
func (r *UserRepository) ResetAllOnline() error {
	return r.DB.Model(&models.User{}).Where("is_online = ?", true).
		Update("is_online", false).Error
}
