package model

// FeedbackComment 评语。MarkID 为空表示总评语，否则为对应评分人的评语
type FeedbackComment struct {
	BaseModel
	GradeID       uint   `gorm:"index;type:bigint unsigned;not null" json:"gradeId"`
	MarkID        *uint  `gorm:"index;type:bigint unsigned" json:"markId,omitempty"`
	CommentText   string `gorm:"type:text" json:"commentText"`
	CommentFormat int    `gorm:"default:1" json:"commentFormat"`
}

func (FeedbackComment) TableName() string {
	return "feedback_comments"
}
