package repository

import (
	"errors"
	"time"

	"marking_backend/internal/model"

	"gorm.io/gorm"
)

type TaskProgressRepository struct {
	DB *gorm.DB
}

func NewTaskProgressRepository(db *gorm.DB) *TaskProgressRepository {
	return &TaskProgressRepository{DB: db}
}

func (r *TaskProgressRepository) Create(progress *model.TaskProgress) error {
	return r.DB.Create(progress).Error
}

// FindByID 未找到返回 nil, nil
func (r *TaskProgressRepository) FindByID(id string) (*model.TaskProgress, error) {
	var progress model.TaskProgress
	err := r.DB.First(&progress, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

func (r *TaskProgressRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.DB.Model(&model.TaskProgress{}).Where("id = ?", id).Updates(fields).Error
}

func (r *TaskProgressRepository) DeleteByTask(taskType, taskRef string) error {
	return r.DB.Unscoped().Where("task_type = ? AND task_ref = ?", taskType, taskRef).Delete(&model.TaskProgress{}).Error
}

// PurgeStale 删除 before 之前启动且之后未被轮询过的记录
func (r *TaskProgressRepository) PurgeStale(before time.Time) (int64, error) {
	result := r.DB.Unscoped().
		Where("started_at < ? AND (time_last_polled IS NULL OR time_last_polled < ?)", before, before).
		Delete(&model.TaskProgress{})
	return result.RowsAffected, result.Error
}
