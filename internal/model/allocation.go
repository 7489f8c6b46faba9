package model

import "time"

// AllocatedMarker 提交与评分人的分配关系，Sequence 决定分配顺序
type AllocatedMarker struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AssignmentID uint      `gorm:"uniqueIndex:idx_alloc_user_marker;type:bigint unsigned;not null" json:"assignmentId"`
	UserID       uint      `gorm:"uniqueIndex:idx_alloc_user_marker;type:bigint unsigned;not null" json:"userId"`
	MarkerID     uint      `gorm:"uniqueIndex:idx_alloc_user_marker;type:bigint unsigned;not null" json:"markerId"`
	Sequence     int       `gorm:"default:0" json:"sequence"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (AllocatedMarker) TableName() string {
	return "allocated_markers"
}

// UserFlags 每个学生在作业上的附加状态
// swagger:model UserFlags
type UserFlags struct {
	BaseModel
	AssignmentID  uint   `gorm:"uniqueIndex:idx_flags_user;type:bigint unsigned;not null" json:"assignmentId"`
	UserID        uint   `gorm:"uniqueIndex:idx_flags_user;type:bigint unsigned;not null" json:"userId"`
	WorkflowState string `gorm:"size:20" json:"workflowState"`
	Locked        bool   `gorm:"default:false" json:"locked"`
}

func (UserFlags) TableName() string {
	return "user_flags"
}
