package service

import (
	"fmt"

	"marking_backend/internal/model"
	"marking_backend/internal/repository"
	"marking_backend/internal/util"
)

// FeedbackService 评语，每个评分人一条，另有一条总评语
type FeedbackService struct {
	Repo    *repository.FeedbackRepository
	Marking *MarkingService
}

func NewFeedbackService(repo *repository.FeedbackRepository, marking *MarkingService) *FeedbackService {
	return &FeedbackService{Repo: repo, Marking: marking}
}

// SaveComment markerID 为 nil 时保存总评语
func (s *FeedbackService) SaveComment(grade *model.Grade, markerID *uint, text string, format int) (*model.FeedbackComment, error) {
	var markID *uint
	if markerID != nil {
		mark, err := s.Marking.GetOrCreateMark(grade, *markerID)
		if err != nil {
			return nil, err
		}
		markID = &mark.ID
	}
	if format == 0 {
		format = util.FormatHTML
	}

	comment, err := s.Repo.Find(grade.ID, markID)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	if comment == nil {
		comment = &model.FeedbackComment{GradeID: grade.ID, MarkID: markID}
	}
	comment.CommentText = text
	comment.CommentFormat = format
	if err := s.Repo.Save(comment); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	return comment, nil
}

// GetComment 未找到返回 nil, nil
func (s *FeedbackService) GetComment(gradeID uint, markID *uint) (*model.FeedbackComment, error) {
	comment, err := s.Repo.Find(gradeID, markID)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	return comment, nil
}

// GetMarkerComment 按评分人查评语，评分人尚未打分时返回 nil, nil
func (s *FeedbackService) GetMarkerComment(grade *model.Grade, markerID uint) (*model.FeedbackComment, error) {
	mark, err := s.Marking.GetMark(grade, markerID, false)
	if err != nil || mark == nil {
		return nil, err
	}
	return s.GetComment(grade.ID, &mark.ID)
}

func (s *FeedbackService) GetAllComments(gradeID uint) ([]model.FeedbackComment, error) {
	comments, err := s.Repo.ListByGrade(gradeID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	if comments == nil {
		comments = []model.FeedbackComment{}
	}
	return comments, nil
}
