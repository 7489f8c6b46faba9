package repository

import (
	"errors"

	"marking_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GradeRepository 总成绩、评分人打分和学生标记
type GradeRepository struct {
	DB *gorm.DB
}

func NewGradeRepository(db *gorm.DB) *GradeRepository {
	return &GradeRepository{DB: db}
}

// FindLatestGrade 未找到时返回 nil, nil
func (r *GradeRepository) FindLatestGrade(assignmentID, userID uint) (*model.Grade, error) {
	var grade model.Grade
	err := r.DB.Where("assignment_id = ? AND user_id = ?", assignmentID, userID).
		Order("attempt_number desc").
		First(&grade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grade, nil
}

func (r *GradeRepository) FindGradeByID(id uint) (*model.Grade, error) {
	var grade model.Grade
	err := r.DB.First(&grade, id).Error
	return &grade, err
}

// CreateGrade 并发创建时以已存在的记录为准
func (r *GradeRepository) CreateGrade(grade *model.Grade) error {
	if err := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(grade).Error; err != nil {
		return err
	}
	var stored model.Grade
	if err := r.DB.Where("assignment_id = ? AND user_id = ? AND attempt_number = ?",
		grade.AssignmentID, grade.UserID, grade.AttemptNumber).First(&stored).Error; err != nil {
		return err
	}
	*grade = stored
	return nil
}

func (r *GradeRepository) UpdateGradeValue(grade *model.Grade) error {
	return r.DB.Model(&model.Grade{}).Where("id = ?", grade.ID).
		Updates(map[string]interface{}{
			"grade":     grade.Grade,
			"graded_at": grade.GradedAt,
		}).Error
}

func (r *GradeRepository) ListLatestGradesByAssignment(assignmentID uint) ([]model.Grade, error) {
	var grades []model.Grade
	sub := r.DB.Table("grades g2").
		Select("MAX(g2.attempt_number)").
		Where("g2.assignment_id = grades.assignment_id AND g2.user_id = grades.user_id AND g2.deleted_at IS NULL")
	err := r.DB.Where("grades.assignment_id = ? AND grades.attempt_number = (?)", assignmentID, sub).
		Order("grades.user_id asc").
		Find(&grades).Error
	return grades, err
}

// FindMark 未找到时返回 nil, nil
func (r *GradeRepository) FindMark(gradeID, markerID uint) (*model.Mark, error) {
	var mark model.Mark
	err := r.DB.Where("grade_id = ? AND marker_id = ?", gradeID, markerID).First(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mark, nil
}

// CreateMark 依赖 (grade_id, marker_id) 唯一索引，重复插入时读回已有记录
func (r *GradeRepository) CreateMark(mark *model.Mark) error {
	if err := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(mark).Error; err != nil {
		return err
	}
	var stored model.Mark
	if err := r.DB.Where("grade_id = ? AND marker_id = ?", mark.GradeID, mark.MarkerID).First(&stored).Error; err != nil {
		return err
	}
	*mark = stored
	return nil
}

// UpdateMarkFields 单行更新，不同评分人的写入互不影响
func (r *GradeRepository) UpdateMarkFields(markID uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.Mark{}).Where("id = ?", markID).Updates(fields).Error
}

func (r *GradeRepository) ListMarks(gradeID uint) ([]model.Mark, error) {
	var marks []model.Mark
	err := r.DB.Where("grade_id = ?", gradeID).Order("id asc").Find(&marks).Error
	return marks, err
}

// FindFlags 未找到时返回 nil, nil
func (r *GradeRepository) FindFlags(assignmentID, userID uint) (*model.UserFlags, error) {
	var flags model.UserFlags
	err := r.DB.Where("assignment_id = ? AND user_id = ?", assignmentID, userID).First(&flags).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &flags, nil
}

func (r *GradeRepository) CreateFlags(flags *model.UserFlags) error {
	if err := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(flags).Error; err != nil {
		return err
	}
	var stored model.UserFlags
	if err := r.DB.Where("assignment_id = ? AND user_id = ?", flags.AssignmentID, flags.UserID).First(&stored).Error; err != nil {
		return err
	}
	*flags = stored
	return nil
}

func (r *GradeRepository) UpdateFlagsWorkflowState(flagsID uint, state string) error {
	return r.DB.Model(&model.UserFlags{}).Where("id = ?", flagsID).Update("workflow_state", state).Error
}
