package model

import (
	"time"

	"marking_backend/internal/grading"
)

// Grade 一次提交尝试的总成绩，只由汇总逻辑（或手动方式下的覆盖操作）写入
// swagger:model Grade
type Grade struct {
	BaseModel
	AssignmentID  uint       `gorm:"uniqueIndex:idx_grade_attempt;type:bigint unsigned;not null" json:"assignmentId"`
	UserID        uint       `gorm:"uniqueIndex:idx_grade_attempt;type:bigint unsigned;not null" json:"userId"`
	AttemptNumber int        `gorm:"uniqueIndex:idx_grade_attempt;not null" json:"attemptNumber"`
	Grade         float64    `gorm:"not null" json:"grade"`
	GradedAt      *time.Time `json:"gradedAt,omitempty"`

	// 当前操作的评分人，不落库
	Grader uint `gorm:"-" json:"grader,omitempty"`
}

func (Grade) TableName() string {
	return "grades"
}

func (g *Grade) IsGraded() bool {
	return g.Grade != grading.Unset
}

// Mark 单个评分人对某次成绩的打分
// swagger:model Mark
type Mark struct {
	BaseModel
	GradeID       uint     `gorm:"uniqueIndex:idx_mark_grade_marker;type:bigint unsigned;not null" json:"gradeId"`
	MarkerID      uint     `gorm:"uniqueIndex:idx_mark_grade_marker;type:bigint unsigned;not null" json:"markerId"`
	AssignmentID  uint     `gorm:"index;type:bigint unsigned" json:"assignmentId"`
	Value         *float64 `gorm:"column:mark" json:"mark"`
	WorkflowState *string  `gorm:"size:20" json:"workflowState"`
}

func (Mark) TableName() string {
	return "marks"
}
