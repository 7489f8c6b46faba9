package service

import (
	"errors"
	"fmt"
	"strings"

	"marking_backend/internal/config"
	"marking_backend/internal/grading"
	"marking_backend/internal/model"
	"marking_backend/internal/repository"
	"marking_backend/internal/util"
	"marking_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Regrader 汇总方式变化后重新计算整份作业
type Regrader interface {
	RegradeAssignment(assignmentID uint) (string, error)
}

type AssignmentService struct {
	Repo     *repository.AssignmentRepository
	Defaults config.MarkingConfig
	Regrader Regrader
}

func NewAssignmentService(repo *repository.AssignmentRepository, defaults config.MarkingConfig) *AssignmentService {
	return &AssignmentService{Repo: repo, Defaults: defaults}
}

type AssignmentReq struct {
	Name              *string  `json:"name"`
	Description       *string  `json:"description"`
	MaxGrade          *float64 `json:"maxGrade"`
	TeamSubmission    *bool    `json:"teamSubmission"`
	MarkingWorkflow   *bool    `json:"markingWorkflow"`
	MarkingAllocation *bool    `json:"markingAllocation"`
	MarkerCount       *int     `json:"markerCount"`
	MultiMarkMethod   *string  `json:"multiMarkMethod"`
	MultiMarkRounding *string  `json:"multiMarkRounding"`
}

// AssignmentResult Regrade 非空时为后台重新计算任务的进度 ID
type AssignmentResult struct {
	Assignment *model.Assignment `json:"assignment"`
	RegradeID  string            `json:"regradeId,omitempty"`
}

func (s *AssignmentService) Create(req AssignmentReq) (*model.Assignment, error) {
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", util.ErrInvalidAssignment)
	}

	assignment := &model.Assignment{
		MaxGrade:          100,
		MarkerCount:       s.Defaults.DefaultMarkerCount,
		MultiMarkMethod:   s.Defaults.DefaultMethod,
		MultiMarkRounding: s.Defaults.DefaultRounding,
	}
	if assignment.MarkerCount < 1 {
		assignment.MarkerCount = 1
	}
	if assignment.MultiMarkMethod == "" {
		assignment.MultiMarkMethod = string(grading.MethodManual)
	}
	applyAssignmentReq(assignment, req)

	if err := validateAssignment(assignment); err != nil {
		return nil, err
	}
	if err := s.Repo.Create(assignment); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return assignment, nil
}

func (s *AssignmentService) Get(id uint) (*model.Assignment, error) {
	assignment, err := s.Repo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load assignment %d: %w", id, err)
	}
	return assignment, nil
}

// Update 汇总方式或取整方式变化时安排一次重新计算
func (s *AssignmentService) Update(id uint, req AssignmentReq) (*AssignmentResult, error) {
	assignment, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	oldMethod, oldRounding := assignment.MultiMarkMethod, assignment.MultiMarkRounding

	applyAssignmentReq(assignment, req)
	if strings.TrimSpace(assignment.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", util.ErrInvalidAssignment)
	}
	if err := validateAssignment(assignment); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(assignment); err != nil {
		return nil, fmt.Errorf("update assignment: %w", err)
	}

	result := &AssignmentResult{Assignment: assignment}
	if s.Regrader != nil && (assignment.MultiMarkMethod != oldMethod || assignment.MultiMarkRounding != oldRounding) {
		taskID, err := s.Regrader.RegradeAssignment(assignment.ID)
		if err != nil {
			logger.Log.Warn("failed to schedule regrade",
				zap.Uint("assignmentId", assignment.ID), zap.Error(err))
		} else {
			result.RegradeID = taskID
		}
	}
	return result, nil
}

func applyAssignmentReq(a *model.Assignment, req AssignmentReq) {
	if req.Name != nil {
		a.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.MaxGrade != nil {
		a.MaxGrade = *req.MaxGrade
	}
	if req.TeamSubmission != nil {
		a.TeamSubmission = *req.TeamSubmission
	}
	if req.MarkingWorkflow != nil {
		a.MarkingWorkflow = *req.MarkingWorkflow
	}
	if req.MarkingAllocation != nil {
		a.MarkingAllocation = *req.MarkingAllocation
	}
	if req.MarkerCount != nil {
		a.MarkerCount = *req.MarkerCount
	}
	if req.MultiMarkMethod != nil {
		a.MultiMarkMethod = *req.MultiMarkMethod
	}
	if req.MultiMarkRounding != nil {
		a.MultiMarkRounding = *req.MultiMarkRounding
	}
}

// validateAssignment 未知的汇总方式/取整方式原样返回 grading 包的错误
func validateAssignment(a *model.Assignment) error {
	if _, err := grading.NewAggregator(a.MultiMarkMethod, a.MultiMarkRounding); err != nil {
		return err
	}
	if a.MarkerCount < 1 {
		return fmt.Errorf("%w: markerCount must be at least 1", util.ErrInvalidAssignment)
	}
	if a.MaxGrade <= 0 {
		return fmt.Errorf("%w: maxGrade must be positive", util.ErrInvalidAssignment)
	}
	return nil
}
