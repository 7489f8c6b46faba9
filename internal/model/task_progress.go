package model

import "time"

// 后台任务类型
const (
	TaskTypeRegrade       = "regrade"
	TaskTypeBatchWorkflow = "batch_workflow"
)

// TaskProgress 后台任务进度，供前端轮询
type TaskProgress struct {
	UUIDBase
	TaskType         string     `gorm:"size:50;index:idx_progress_task;not null" json:"taskType"`
	TaskRef          string     `gorm:"size:64;index:idx_progress_task" json:"taskRef"`
	PercentCompleted *int       `json:"percentCompleted"`
	MaxIterations    *int       `json:"maxIterations"`
	CurrentIteration int        `gorm:"default:0" json:"currentIteration"`
	StartedAt        time.Time  `json:"startedAt"`
	TimeLastPolled   *time.Time `json:"timeLastPolled,omitempty"`
}

func (TaskProgress) TableName() string {
	return "task_progress"
}
