package repository

import (
	"errors"

	"marking_backend/internal/model"

	"gorm.io/gorm"
)

type GroupRepository struct {
	DB *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{DB: db}
}

// CreateWithMembers 学生在该作业下已有小组时返回唯一索引冲突错误
func (r *GroupRepository) CreateWithMembers(assignmentID uint, name string, userIDs []uint) (*model.Group, error) {
	group := &model.Group{AssignmentID: assignmentID, Name: name}
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		for _, uid := range userIDs {
			if err := tx.Create(&model.GroupMember{GroupID: group.ID, AssignmentID: assignmentID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return group, err
}

// FindTeammateIDs 返回该作业下与 userID 同组的其他成员（不含自己），未分组时为空
func (r *GroupRepository) FindTeammateIDs(assignmentID, userID uint) ([]uint, error) {
	var member model.GroupMember
	err := r.DB.Where("assignment_id = ? AND user_id = ?", assignmentID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []uint
	err = r.DB.Model(&model.GroupMember{}).
		Where("group_id = ? AND user_id <> ?", member.GroupID, userID).
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}
