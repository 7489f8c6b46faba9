package repository

import (
	"marking_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	return &user, err
}

// FindExistingIDs 返回 ids 中存在且未禁用的用户 ID
func (r *UserRepository) FindExistingIDs(ids []uint) ([]uint, error) {
	var found []uint
	if len(ids) == 0 {
		return found, nil
	}
	err := r.DB.Model(&model.User{}).
		Where("id IN ? AND disabled = ?", ids, false).
		Pluck("id", &found).Error
	return found, err
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).Update("last_seen", gorm.Expr("CURRENT_TIMESTAMP")).Error
}
