package service

import (
	"fmt"
	"math"
	"time"

	"marking_backend/internal/model"
	"marking_backend/internal/repository"
	"marking_backend/pkg/logger"

	"go.uber.org/zap"
)

// 进度低于该值时不估算剩余时间
const minPercentForEstimate = 5

const EstimateCalculating = "still calculating"

type TaskProgressService struct {
	Repo *repository.TaskProgressRepository
}

func NewTaskProgressService(repo *repository.TaskProgressRepository) *TaskProgressService {
	return &TaskProgressService{Repo: repo}
}

// PollResult 前端轮询结果，Progress 为 0-100
type PollResult struct {
	ID        string `json:"id"`
	Progress  int    `json:"progress"`
	Estimated string `json:"estimated"`
}

// StartPolling 同一任务之前的进度记录会被清掉
func (s *TaskProgressService) StartPolling(taskType, taskRef string) (*model.TaskProgress, error) {
	if err := s.Repo.DeleteByTask(taskType, taskRef); err != nil {
		return nil, fmt.Errorf("clear task progress: %w", err)
	}
	zero := 0
	progress := &model.TaskProgress{
		TaskType:         taskType,
		TaskRef:          taskRef,
		PercentCompleted: &zero,
		StartedAt:        nowFunc(),
	}
	if err := s.Repo.Create(progress); err != nil {
		return nil, fmt.Errorf("create task progress: %w", err)
	}
	return progress, nil
}

func (s *TaskProgressService) EndPolling(progress *model.TaskProgress) error {
	return s.Repo.DeleteByTask(progress.TaskType, progress.TaskRef)
}

func (s *TaskProgressService) SetProgress(progress *model.TaskProgress, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	progress.PercentCompleted = &percent
	return s.Repo.UpdateFields(progress.ID, map[string]interface{}{"percent_completed": percent})
}

func (s *TaskProgressService) SetIterations(progress *model.TaskProgress, iterations int) error {
	progress.MaxIterations = &iterations
	return s.Repo.UpdateFields(progress.ID, map[string]interface{}{"max_iterations": iterations})
}

// UpdateIteration 记录当前轮次，设置过总轮次时同时更新百分比
func (s *TaskProgressService) UpdateIteration(progress *model.TaskProgress, iteration int) error {
	progress.CurrentIteration = iteration
	fields := map[string]interface{}{"current_iteration": iteration}
	if progress.MaxIterations != nil && *progress.MaxIterations > 0 {
		percent := int(math.Round(float64(iteration) / float64(*progress.MaxIterations) * 100))
		progress.PercentCompleted = &percent
		fields["percent_completed"] = percent
	}
	return s.Repo.UpdateFields(progress.ID, fields)
}

// Poll 记录不存在视为任务已结束
func (s *TaskProgressService) Poll(id string) (*PollResult, error) {
	progress, err := s.Repo.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("load task progress: %w", err)
	}
	if progress == nil {
		return &PollResult{ID: id, Progress: 100}, nil
	}

	now := nowFunc()
	if err := s.Repo.UpdateFields(progress.ID, map[string]interface{}{"time_last_polled": now}); err != nil {
		return nil, fmt.Errorf("touch task progress: %w", err)
	}

	percent := 0
	if progress.PercentCompleted != nil {
		percent = *progress.PercentCompleted
	}
	return &PollResult{
		ID:        progress.ID,
		Progress:  percent,
		Estimated: estimateTimeLeft(percent, now.Sub(progress.StartedAt)),
	}, nil
}

// estimateTimeLeft 按目前的平均速度线性估算
func estimateTimeLeft(percent int, elapsed time.Duration) string {
	if percent < minPercentForEstimate {
		return EstimateCalculating
	}
	if percent >= 100 {
		return (0 * time.Second).String()
	}
	if elapsed <= 0 {
		return EstimateCalculating
	}
	rate := float64(percent) / elapsed.Seconds()
	seconds := math.Round(float64(100-percent) / rate)
	return (time.Duration(seconds) * time.Second).String()
}

// PurgeStale 清理长时间无人轮询的进度记录
func (s *TaskProgressService) PurgeStale(maxAge time.Duration) (int64, error) {
	n, err := s.Repo.PurgeStale(nowFunc().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("purge task progress: %w", err)
	}
	if n > 0 {
		logger.Log.Info("purged stale task progress", zap.Int64("rows", n))
	}
	return n, nil
}
