package repository

import (
	"errors"

	"marking_backend/internal/model"

	"gorm.io/gorm"
)

type FeedbackRepository struct {
	DB *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{DB: db}
}

// Find markID 为 nil 时查总评语；未找到返回 nil, nil
func (r *FeedbackRepository) Find(gradeID uint, markID *uint) (*model.FeedbackComment, error) {
	query := r.DB.Where("grade_id = ?", gradeID)
	if markID == nil {
		query = query.Where("mark_id IS NULL")
	} else {
		query = query.Where("mark_id = ?", *markID)
	}

	var comment model.FeedbackComment
	err := query.First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *FeedbackRepository) Save(comment *model.FeedbackComment) error {
	return r.DB.Save(comment).Error
}

// ListByGrade 总评语排在最前
func (r *FeedbackRepository) ListByGrade(gradeID uint) ([]model.FeedbackComment, error) {
	var comments []model.FeedbackComment
	err := r.DB.Where("grade_id = ?", gradeID).
		Order("mark_id IS NOT NULL, mark_id asc").
		Find(&comments).Error
	return comments, err
}
