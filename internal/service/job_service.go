package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"marking_backend/internal/model"
	"marking_backend/internal/util"
	"marking_backend/pkg/logger"
	"marking_backend/pkg/monitoring"
	"marking_backend/pkg/tracing"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// JobService 后台重新计算任务，进度通过 TaskProgressService 轮询
type JobService struct {
	Marking  *MarkingService
	Progress *TaskProgressService

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func NewJobService(marking *MarkingService, progress *TaskProgressService) *JobService {
	return &JobService{
		Marking:  marking,
		Progress: progress,
		running:  make(map[string]bool),
	}
}

// RegradeAssignment 重新计算作业下所有学生的总成绩和总体状态，返回进度 ID
func (s *JobService) RegradeAssignment(assignmentID uint) (string, error) {
	if _, err := s.Marking.findAssignment(assignmentID); err != nil {
		return "", err
	}
	ref := strconv.FormatUint(uint64(assignmentID), 10)
	return s.start(model.TaskTypeRegrade, ref, func(report func(done, total int)) error {
		return s.Marking.RecalculateAssignment(assignmentID, report)
	})
}

type BatchWorkflowReq struct {
	UserIDs []uint `json:"userIds" binding:"required"`
	State   string `json:"state" binding:"required"`
}

// BatchSetWorkflowState 以 graderID 的身份批量设置评阅状态，返回进度 ID
func (s *JobService) BatchSetWorkflowState(assignmentID, graderID uint, req BatchWorkflowReq) (string, error) {
	if graderID == 0 {
		return "", util.ErrNoGrader
	}
	if _, err := s.Marking.findAssignment(assignmentID); err != nil {
		return "", err
	}
	if !s.Marking.Progression().Contains(req.State) {
		return "", fmt.Errorf("%w: %q", util.ErrUnknownWorkflowState, req.State)
	}
	ref := fmt.Sprintf("%d:%d", assignmentID, graderID)
	userIDs := append([]uint(nil), req.UserIDs...)
	return s.start(model.TaskTypeBatchWorkflow, ref, func(report func(done, total int)) error {
		return s.Marking.BatchSetWorkflowState(assignmentID, graderID, userIDs, req.State, report)
	})
}

func (s *JobService) start(taskType, ref string, run func(report func(done, total int)) error) (string, error) {
	key := taskType + "/" + ref
	s.mu.Lock()
	if s.running[key] {
		s.mu.Unlock()
		return "", util.ErrTaskAlreadyRunning
	}
	s.running[key] = true
	s.mu.Unlock()

	progress, err := s.Progress.StartPolling(taskType, ref)
	if err != nil {
		s.finish(key)
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(key)
		s.runJob(progress, run)
	}()
	return progress.ID, nil
}

func (s *JobService) runJob(progress *model.TaskProgress, run func(report func(done, total int)) error) {
	_, span := tracing.StartJob(context.Background(), progress.TaskType, progress.ID, progress.TaskRef)
	defer span.End()

	started := time.Now()
	report := func(done, total int) {
		if progress.MaxIterations == nil {
			if err := s.Progress.SetIterations(progress, total); err != nil {
				logger.Log.Warn("failed to set task iterations", zap.String("taskId", progress.ID), zap.Error(err))
			}
		}
		if err := s.Progress.UpdateIteration(progress, done); err != nil {
			logger.Log.Warn("failed to update task progress", zap.String("taskId", progress.ID), zap.Error(err))
		}
	}

	status := "success"
	if err := run(report); err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Log.Error("background job failed",
			zap.String("type", progress.TaskType),
			zap.String("ref", progress.TaskRef),
			zap.Error(err))
	} else {
		logger.Log.Info("background job finished",
			zap.String("type", progress.TaskType),
			zap.String("ref", progress.TaskRef),
			zap.Duration("elapsed", time.Since(started)))
	}
	monitoring.JobDuration.WithLabelValues(progress.TaskType, status).Observe(time.Since(started).Seconds())

	if err := s.Progress.EndPolling(progress); err != nil {
		logger.Log.Warn("failed to end task polling", zap.String("taskId", progress.ID), zap.Error(err))
	}
}

func (s *JobService) finish(key string) {
	s.mu.Lock()
	delete(s.running, key)
	s.mu.Unlock()
}

// Wait 等待已启动的任务全部结束
func (s *JobService) Wait() {
	s.wg.Wait()
}
