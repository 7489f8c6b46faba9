package service

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"marking_backend/internal/grading"
	"marking_backend/internal/model"
	"marking_backend/internal/repository"
	"marking_backend/internal/util"
	"marking_backend/pkg/logger"
	"marking_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var nowFunc = time.Now

// MarkingService 评分人分配、单人打分以及总成绩/总体状态的汇总
type MarkingService struct {
	AssignmentRepo *repository.AssignmentRepository
	GradeRepo      *repository.GradeRepository
	AllocationRepo *repository.AllocationRepository
	GroupRepo      *repository.GroupRepository
	UserRepo       *repository.UserRepository
	Events         GradeEventPublisher

	progression atomic.Pointer[grading.Progression]
}

func NewMarkingService(
	assignmentRepo *repository.AssignmentRepository,
	gradeRepo *repository.GradeRepository,
	allocationRepo *repository.AllocationRepository,
	groupRepo *repository.GroupRepository,
	userRepo *repository.UserRepository,
	progression *grading.Progression,
	events GradeEventPublisher,
) *MarkingService {
	if events == nil {
		events = NopGradeEventPublisher{}
	}
	s := &MarkingService{
		AssignmentRepo: assignmentRepo,
		GradeRepo:      gradeRepo,
		AllocationRepo: allocationRepo,
		GroupRepo:      groupRepo,
		UserRepo:       userRepo,
		Events:         events,
	}
	s.progression.Store(progression)
	return s
}

// SetProgression 配置热更新时替换评阅流程顺序
func (s *MarkingService) SetProgression(p *grading.Progression) {
	s.progression.Store(p)
}

func (s *MarkingService) Progression() *grading.Progression {
	return s.progression.Load()
}

func (s *MarkingService) findAssignment(assignmentID uint) (*model.Assignment, error) {
	assignment, err := s.AssignmentRepo.FindByID(assignmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load assignment %d: %w", assignmentID, err)
	}
	return assignment, nil
}

// SetAllocatedMarkers 覆盖学生提交的评分人集合（保持传入顺序，重复的只保留第一次出现）。
// 被移除的评分人的打分记录保留，但不再参与汇总。重复调用相同集合不会产生变化。
func (s *MarkingService) SetAllocatedMarkers(assignmentID, userID uint, markerIDs []uint) error {
	assignment, err := s.findAssignment(assignmentID)
	if err != nil {
		return err
	}

	seen := make(map[uint]bool, len(markerIDs))
	ordered := make([]uint, 0, len(markerIDs))
	for _, id := range markerIDs {
		if id == 0 {
			return fmt.Errorf("%w: marker id must be positive", util.ErrInvalidMarkerAllocation)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, id)
	}

	if len(ordered) > assignment.MarkerCount {
		return fmt.Errorf("%w: %d markers for a limit of %d", util.ErrTooManyMarkers, len(ordered), assignment.MarkerCount)
	}

	existing, err := s.UserRepo.FindExistingIDs(ordered)
	if err != nil {
		return fmt.Errorf("check markers: %w", err)
	}
	if len(existing) != len(ordered) {
		known := make(map[uint]bool, len(existing))
		for _, id := range existing {
			known[id] = true
		}
		for _, id := range ordered {
			if !known[id] {
				return fmt.Errorf("%w: marker %d not found", util.ErrInvalidMarkerAllocation, id)
			}
		}
	}

	changed, err := s.AllocationRepo.ReplaceMarkers(assignmentID, userID, ordered)
	if err != nil {
		return fmt.Errorf("replace allocated markers: %w", err)
	}
	if changed {
		logger.Log.Info("allocated markers updated",
			append(logger.Submission(assignmentID, userID), zap.Uints("markers", ordered))...)
	}
	return nil
}

// GetAllocatedMarkers 按分配顺序返回，没有分配时返回空切片
func (s *MarkingService) GetAllocatedMarkers(assignmentID, userID uint) ([]uint, error) {
	ids, err := s.AllocationRepo.ListMarkerIDs(assignmentID, userID)
	if err != nil {
		return nil, fmt.Errorf("list allocated markers: %w", err)
	}
	if ids == nil {
		ids = []uint{}
	}
	return ids, nil
}

// GetUserGrade 返回学生最新一次尝试的成绩；不存在且 create 为 false 时返回 nil, nil
func (s *MarkingService) GetUserGrade(assignmentID, userID uint, create bool) (*model.Grade, error) {
	grade, err := s.GradeRepo.FindLatestGrade(assignmentID, userID)
	if err != nil {
		return nil, fmt.Errorf("load grade: %w", err)
	}
	if grade != nil || !create {
		return grade, nil
	}
	if _, err := s.findAssignment(assignmentID); err != nil {
		return nil, err
	}

	grade = &model.Grade{
		AssignmentID:  assignmentID,
		UserID:        userID,
		AttemptNumber: 0,
		Grade:         grading.Unset,
	}
	if err := s.GradeRepo.CreateGrade(grade); err != nil {
		return nil, fmt.Errorf("create grade: %w", err)
	}
	return grade, nil
}

func (s *MarkingService) GetGradeByID(gradeID uint) (*model.Grade, error) {
	grade, err := s.GradeRepo.FindGradeByID(gradeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrGradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load grade %d: %w", gradeID, err)
	}
	return grade, nil
}

// GetMark 查找 (grade, marker) 的打分。
// 不存在且 create 为 false 时返回 nil, nil，调用方据此区分"尚未打分"和"打了 0 分"。
func (s *MarkingService) GetMark(grade *model.Grade, markerID uint, create bool) (*model.Mark, error) {
	mark, err := s.GradeRepo.FindMark(grade.ID, markerID)
	if err != nil {
		return nil, fmt.Errorf("load mark: %w", err)
	}
	if mark != nil || !create {
		return mark, nil
	}

	mark = &model.Mark{
		GradeID:      grade.ID,
		MarkerID:     markerID,
		AssignmentID: grade.AssignmentID,
	}
	if err := s.GradeRepo.CreateMark(mark); err != nil {
		return nil, fmt.Errorf("create mark: %w", err)
	}
	return mark, nil
}

func (s *MarkingService) GetOrCreateMark(grade *model.Grade, markerID uint) (*model.Mark, error) {
	return s.GetMark(grade, markerID, true)
}

// UpdateMark 写入 grade.Grader 这位评分人的打分，value/workflowState 为 nil 时保持原值。
// 单项打分必须在 0..MaxGrade 之间。
// 写入后按当前分配和全部打分重新计算该成绩的总分；不会级联到同组其他成员。
func (s *MarkingService) UpdateMark(grade *model.Grade, value *float64, workflowState *string) error {
	if grade.Grader == 0 {
		return util.ErrNoGrader
	}
	if workflowState != nil && *workflowState != "" && !s.Progression().Contains(*workflowState) {
		return fmt.Errorf("%w: %q", util.ErrUnknownWorkflowState, *workflowState)
	}
	if value != nil {
		assignment, err := s.findAssignment(grade.AssignmentID)
		if err != nil {
			return err
		}
		if err := checkGradeValue(*value, assignment.MaxGrade); err != nil {
			return err
		}
	}

	mark, err := s.GetMark(grade, grade.Grader, true)
	if err != nil {
		return err
	}

	fields := make(map[string]interface{}, 2)
	if value != nil {
		fields["mark"] = *value
	}
	if workflowState != nil {
		fields["workflow_state"] = *workflowState
	}
	if len(fields) > 0 {
		if err := s.GradeRepo.UpdateMarkFields(mark.ID, fields); err != nil {
			return fmt.Errorf("update mark %d: %w", mark.ID, err)
		}
	}

	_, err = s.CalculateOverallGrade(grade)
	return err
}

// CalculateOverallGrade 重新读取分配关系和全部打分后计算总成绩并保存。
// 打分不完整不是错误，总成绩保持 -1；作业的汇总配置异常时只记录日志，成绩保持原值。
func (s *MarkingService) CalculateOverallGrade(grade *model.Grade) (float64, error) {
	assignment, err := s.findAssignment(grade.AssignmentID)
	if err != nil {
		return grade.Grade, err
	}

	stored, err := s.GetGradeByID(grade.ID)
	if err != nil {
		return grade.Grade, err
	}
	grade.Grade = stored.Grade
	grade.GradedAt = stored.GradedAt

	aggregator, err := grading.NewAggregator(assignment.MultiMarkMethod, assignment.MultiMarkRounding)
	if err != nil {
		logger.Log.Error("assignment has invalid multi-marking configuration",
			zap.Uint("assignmentId", assignment.ID), zap.Error(err))
		monitoring.GradeAggregations.WithLabelValues(assignment.MultiMarkMethod, "misconfigured").Inc()
		return grade.Grade, nil
	}
	if aggregator.Method() == grading.MethodManual {
		monitoring.GradeAggregations.WithLabelValues(string(grading.MethodManual), "manual").Inc()
		return grade.Grade, nil
	}

	entries, err := s.allocatedEntries(grade)
	if err != nil {
		return grade.Grade, err
	}

	value, ok := aggregator.Aggregate(entries)
	outcome := "graded"
	var gradedAt *time.Time
	if ok {
		now := nowFunc()
		gradedAt = &now
	} else {
		outcome = "incomplete"
		value = grading.Unset
	}
	monitoring.GradeAggregations.WithLabelValues(string(aggregator.Method()), outcome).Inc()

	if value == stored.Grade {
		return value, nil
	}

	grade.Grade = value
	grade.GradedAt = gradedAt
	if err := s.GradeRepo.UpdateGradeValue(grade); err != nil {
		return stored.Grade, fmt.Errorf("save overall grade: %w", err)
	}

	logger.Log.Debug("overall grade recalculated",
		zap.Uint("gradeId", grade.ID),
		zap.String("method", string(aggregator.Method())),
		zap.Float64("grade", value))
	s.Events.Publish(GradeEvent{
		Type:         EventGradeUpdated,
		AssignmentID: grade.AssignmentID,
		UserID:       grade.UserID,
		GradeID:      grade.ID,
		Grade:        value,
		At:           nowFunc(),
	})
	return value, nil
}

// allocatedEntries 按分配顺序取当前评分人的打分，未分配评分人的打分被忽略
func (s *MarkingService) allocatedEntries(grade *model.Grade) ([]grading.MarkEntry, error) {
	markerIDs, err := s.AllocationRepo.ListMarkerIDs(grade.AssignmentID, grade.UserID)
	if err != nil {
		return nil, fmt.Errorf("list allocated markers: %w", err)
	}
	marks, err := s.GradeRepo.ListMarks(grade.ID)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}

	byMarker := make(map[uint]*model.Mark, len(marks))
	for i := range marks {
		byMarker[marks[i].MarkerID] = &marks[i]
	}

	entries := make([]grading.MarkEntry, 0, len(markerIDs))
	for _, id := range markerIDs {
		entry := grading.MarkEntry{MarkerID: id}
		if m, ok := byMarker[id]; ok {
			entry.Value = m.Value
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetUserFlags 不存在且 create 为 false 时返回 nil, nil
func (s *MarkingService) GetUserFlags(assignmentID, userID uint, create bool) (*model.UserFlags, error) {
	flags, err := s.GradeRepo.FindFlags(assignmentID, userID)
	if err != nil {
		return nil, fmt.Errorf("load user flags: %w", err)
	}
	if flags != nil || !create {
		return flags, nil
	}
	flags = &model.UserFlags{AssignmentID: assignmentID, UserID: userID}
	if err := s.GradeRepo.CreateFlags(flags); err != nil {
		return nil, fmt.Errorf("create user flags: %w", err)
	}
	return flags, nil
}

// CalculateAndSaveOverallWorkflowState 取当前已分配评分人状态中最靠前的一个作为总体状态。
// 有评分人上报后，尚未上报的评分人按待评阅状态计入；没有任何分配时总体状态为空。
func (s *MarkingService) CalculateAndSaveOverallWorkflowState(grade *model.Grade) (string, error) {
	flags, err := s.GetUserFlags(grade.AssignmentID, grade.UserID, true)
	if err != nil {
		return "", err
	}

	markerIDs, err := s.AllocationRepo.ListMarkerIDs(grade.AssignmentID, grade.UserID)
	if err != nil {
		return flags.WorkflowState, fmt.Errorf("list allocated markers: %w", err)
	}
	state := ""
	if len(markerIDs) > 0 {
		marks, err := s.GradeRepo.ListMarks(grade.ID)
		if err != nil {
			return flags.WorkflowState, fmt.Errorf("list marks: %w", err)
		}
		stateByMarker := make(map[uint]*string, len(marks))
		for i := range marks {
			stateByMarker[marks[i].MarkerID] = marks[i].WorkflowState
		}
		states := make([]*string, 0, len(markerIDs))
		for _, id := range markerIDs {
			states = append(states, stateByMarker[id])
		}
		state = s.Progression().Lowest(states)
	}

	if state == flags.WorkflowState {
		return state, nil
	}
	if err := s.GradeRepo.UpdateFlagsWorkflowState(flags.ID, state); err != nil {
		return flags.WorkflowState, fmt.Errorf("save overall workflow state: %w", err)
	}

	logger.Log.Info("overall workflow state changed",
		append(logger.Submission(grade.AssignmentID, grade.UserID),
			zap.String("from", flags.WorkflowState),
			zap.String("to", state))...)
	s.Events.Publish(GradeEvent{
		Type:          EventWorkflowUpdated,
		AssignmentID:  grade.AssignmentID,
		UserID:        grade.UserID,
		GradeID:       grade.ID,
		Grade:         grade.Grade,
		WorkflowState: state,
		At:            nowFunc(),
	})
	return state, nil
}

// SaveGradeReq 一位评分人的一次评分操作
type SaveGradeReq struct {
	Mark          *float64 `json:"mark"`
	WorkflowState *string  `json:"workflowState"`
	ApplyToAll    bool     `json:"applyToAll"`
}

// SaveGrade 评分人对学生提交打分。
// 团队提交且 ApplyToAll 时同步到同组其他成员；开启分配时只同步到该评分人也被分配的成员。
func (s *MarkingService) SaveGrade(assignmentID, userID, graderID uint, req SaveGradeReq) (*model.Grade, error) {
	if graderID == 0 {
		return nil, util.ErrNoGrader
	}
	assignment, err := s.findAssignment(assignmentID)
	if err != nil {
		return nil, err
	}

	flags, err := s.GetUserFlags(assignmentID, userID, false)
	if err != nil {
		return nil, err
	}
	if flags != nil && flags.Locked {
		return nil, util.ErrGradeLocked
	}

	grade, err := s.saveMarkFor(assignment, userID, graderID, req)
	if err != nil {
		return nil, err
	}

	if !assignment.TeamSubmission || !req.ApplyToAll {
		return grade, nil
	}

	teammates, err := s.GroupRepo.FindTeammateIDs(assignmentID, userID)
	if err != nil {
		return grade, fmt.Errorf("load team members: %w", err)
	}
	for _, memberID := range teammates {
		if assignment.MarkingAllocation {
			allocated, err := s.AllocationRepo.IsAllocated(assignmentID, memberID, graderID)
			if err != nil {
				return grade, fmt.Errorf("check allocation: %w", err)
			}
			if !allocated {
				continue
			}
		}
		memberFlags, err := s.GetUserFlags(assignmentID, memberID, false)
		if err != nil {
			return grade, err
		}
		if memberFlags != nil && memberFlags.Locked {
			logger.Log.Info("skip locked team member", logger.Submission(assignmentID, memberID)...)
			continue
		}
		if _, err := s.saveMarkFor(assignment, memberID, graderID, req); err != nil {
			return grade, err
		}
	}
	return grade, nil
}

func (s *MarkingService) saveMarkFor(assignment *model.Assignment, userID, graderID uint, req SaveGradeReq) (*model.Grade, error) {
	grade, err := s.GetUserGrade(assignment.ID, userID, true)
	if err != nil {
		return nil, err
	}
	grade.Grader = graderID
	if err := s.UpdateMark(grade, req.Mark, req.WorkflowState); err != nil {
		return nil, err
	}
	if assignment.MarkingWorkflow || req.WorkflowState != nil {
		if _, err := s.CalculateAndSaveOverallWorkflowState(grade); err != nil {
			return nil, err
		}
	}
	return grade, nil
}

func checkGradeValue(value, maxGrade float64) error {
	if value < 0 || value > maxGrade {
		return fmt.Errorf("%w: %.2f outside 0..%.2f", util.ErrInvalidGradeValue, value, maxGrade)
	}
	return nil
}

// SetManualGrade 手动方式下由有权限的操作人直接设置总成绩，value 为 -1 表示清除
func (s *MarkingService) SetManualGrade(assignmentID, userID uint, value float64) (*model.Grade, error) {
	assignment, err := s.findAssignment(assignmentID)
	if err != nil {
		return nil, err
	}
	if grading.Method(assignment.MultiMarkMethod) != grading.MethodManual {
		return nil, util.ErrNotManualMethod
	}
	if value != grading.Unset {
		if err := checkGradeValue(value, assignment.MaxGrade); err != nil {
			return nil, err
		}
	}

	grade, err := s.GetUserGrade(assignmentID, userID, true)
	if err != nil {
		return nil, err
	}
	grade.Grade = value
	grade.GradedAt = nil
	if grade.IsGraded() {
		now := nowFunc()
		grade.GradedAt = &now
	}
	if err := s.GradeRepo.UpdateGradeValue(grade); err != nil {
		return nil, fmt.Errorf("save manual grade: %w", err)
	}
	s.Events.Publish(GradeEvent{
		Type:         EventGradeUpdated,
		AssignmentID: assignmentID,
		UserID:       userID,
		GradeID:      grade.ID,
		Grade:        value,
		At:           nowFunc(),
	})
	return grade, nil
}

// RecalculateAssignment 重新计算作业下所有成绩的总分与总体状态，progress 在每条完成后回调
func (s *MarkingService) RecalculateAssignment(assignmentID uint, progress func(done, total int)) error {
	if _, err := s.findAssignment(assignmentID); err != nil {
		return err
	}
	grades, err := s.GradeRepo.ListLatestGradesByAssignment(assignmentID)
	if err != nil {
		return fmt.Errorf("list grades: %w", err)
	}
	for i := range grades {
		if _, err := s.CalculateOverallGrade(&grades[i]); err != nil {
			return err
		}
		if _, err := s.CalculateAndSaveOverallWorkflowState(&grades[i]); err != nil {
			return err
		}
		if progress != nil {
			progress(i+1, len(grades))
		}
	}
	return nil
}

// BatchSetWorkflowState 批量设置某位评分人在多名学生上的评阅状态
func (s *MarkingService) BatchSetWorkflowState(assignmentID, graderID uint, userIDs []uint, state string, progress func(done, total int)) error {
	assignment, err := s.findAssignment(assignmentID)
	if err != nil {
		return err
	}
	if !s.Progression().Contains(state) {
		return fmt.Errorf("%w: %q", util.ErrUnknownWorkflowState, state)
	}
	for i, userID := range userIDs {
		if _, err := s.saveMarkFor(assignment, userID, graderID, SaveGradeReq{WorkflowState: &state}); err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		if progress != nil {
			progress(i+1, len(userIDs))
		}
	}
	return nil
}
