package model

// swagger:model Assignment
type Assignment struct {
	BaseModel
	Name              string  `gorm:"size:255;not null" json:"name"`
	Description       string  `gorm:"type:text" json:"description"`
	MaxGrade          float64 `gorm:"default:100" json:"maxGrade"`
	TeamSubmission    bool    `gorm:"default:false" json:"teamSubmission"`
	MarkingWorkflow   bool    `gorm:"default:false" json:"markingWorkflow"`
	MarkingAllocation bool    `gorm:"default:false" json:"markingAllocation"`
	MarkerCount       int     `gorm:"default:1" json:"markerCount"`                    // 每份提交最多分配的评分人数
	MultiMarkMethod   string  `gorm:"size:20;default:'manual'" json:"multiMarkMethod"` // manual, first, max, average
	MultiMarkRounding string  `gorm:"size:20" json:"multiMarkRounding"`                // none, down, up, natural
}

func (Assignment) TableName() string {
	return "assignments"
}
