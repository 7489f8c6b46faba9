package controller

import (
	"marking_backend/internal/grading"
	"marking_backend/internal/service"
	"marking_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MarkingController struct {
	MarkingService  *service.MarkingService
	FeedbackService *service.FeedbackService
	JobService      *service.JobService
}

func NewMarkingController(marking *service.MarkingService, feedback *service.FeedbackService, jobs *service.JobService) *MarkingController {
	return &MarkingController{
		MarkingService:  marking,
		FeedbackService: feedback,
		JobService:      jobs,
	}
}

// submissionIDs 解析 :id 和 :userId
func submissionIDs(ctx *gin.Context) (assignmentID, userID uint, ok bool) {
	if assignmentID, ok = pathID(ctx, "id"); !ok {
		return
	}
	userID, ok = pathID(ctx, "userId")
	return
}

// @Summary 多评分人汇总方式列表
// @Tags 评阅
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /marking/methods [get]
func (c *MarkingController) ListMethods(ctx *gin.Context) {
	util.Success(ctx, grading.Methods())
}

// @Summary 获取学生提交的评分人
// @Tags 评阅
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/markers [get]
func (c *MarkingController) GetMarkers(ctx *gin.Context) {
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	markers, err := c.MarkingService.GetAllocatedMarkers(assignmentID, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"markers": markers})
}

type setMarkersReq struct {
	Markers []uint `json:"markers"`
}

// @Summary 设置学生提交的评分人
// @Tags 评阅
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Param body body setMarkersReq true "按顺序排列的评分人ID"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/markers [put]
func (c *MarkingController) SetMarkers(ctx *gin.Context) {
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	var req setMarkersReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.MarkingService.SetAllocatedMarkers(assignmentID, userID, req.Markers); err != nil {
		respondError(ctx, err)
		return
	}
	markers, err := c.MarkingService.GetAllocatedMarkers(assignmentID, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"markers": markers})
}

// @Summary 获取学生总成绩
// @Tags 评阅
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/grade [get]
func (c *MarkingController) GetGrade(ctx *gin.Context) {
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	grade, err := c.MarkingService.GetUserGrade(assignmentID, userID, false)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if grade == nil {
		util.NotFound(ctx)
		return
	}
	flags, err := c.MarkingService.GetUserFlags(assignmentID, userID, false)
	if err != nil {
		respondError(ctx, err)
		return
	}
	markers, err := c.MarkingService.GetAllocatedMarkers(assignmentID, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	workflowState := ""
	if flags != nil {
		workflowState = flags.WorkflowState
	}
	util.Success(ctx, gin.H{
		"grade":         grade,
		"graded":        grade.IsGraded(),
		"workflowState": workflowState,
		"markers":       markers,
	})
}

// @Summary 评分人保存打分
// @Description applyToAll 为 true 且是小组提交时同步到同组成员
// @Tags 评阅
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Param body body service.SaveGradeReq true "打分"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/grade [post]
func (c *MarkingController) SaveGrade(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	var req service.SaveGradeReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	grade, err := c.MarkingService.SaveGrade(assignmentID, userID, user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, grade)
}

type manualGradeReq struct {
	Grade *float64 `json:"grade" binding:"required"`
}

// @Summary 手动方式下直接设置总成绩
// @Tags 评阅
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Param body body manualGradeReq true "总成绩，-1 表示清除"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/grade/manual [put]
func (c *MarkingController) SetManualGrade(ctx *gin.Context) {
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	var req manualGradeReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	grade, err := c.MarkingService.SetManualGrade(assignmentID, userID, *req.Grade)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, grade)
}

// @Summary 获取某评分人的打分
// @Tags 评阅
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Param markerId path int true "评分人ID"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/marks/{markerId} [get]
func (c *MarkingController) GetMark(ctx *gin.Context) {
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	markerID, ok := pathID(ctx, "markerId")
	if !ok {
		return
	}
	grade, err := c.MarkingService.GetUserGrade(assignmentID, userID, false)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if grade == nil {
		util.NotFound(ctx)
		return
	}
	mark, err := c.MarkingService.GetMark(grade, markerID, false)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if mark == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, mark)
}

// @Summary 重新计算总成绩和总体评阅状态
// @Tags 评阅
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/workflow/recalculate [post]
func (c *MarkingController) Recalculate(ctx *gin.Context) {
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	grade, err := c.MarkingService.GetUserGrade(assignmentID, userID, false)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if grade == nil {
		util.NotFound(ctx)
		return
	}
	value, err := c.MarkingService.CalculateOverallGrade(grade)
	if err != nil {
		respondError(ctx, err)
		return
	}
	state, err := c.MarkingService.CalculateAndSaveOverallWorkflowState(grade)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"grade": value, "workflowState": state})
}

// @Summary 获取评语
// @Tags 评阅
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/feedback [get]
func (c *MarkingController) GetFeedback(ctx *gin.Context) {
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	grade, err := c.MarkingService.GetUserGrade(assignmentID, userID, false)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if grade == nil {
		util.Success(ctx, []interface{}{})
		return
	}
	comments, err := c.FeedbackService.GetAllComments(grade.ID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, comments)
}

type feedbackReq struct {
	Overall bool   `json:"overall"`
	Text    string `json:"text"`
	Format  int    `json:"format"`
}

// @Summary 保存评语
// @Description overall 为 true 时保存总评语，否则保存当前评分人的评语
// @Tags 评阅
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param userId path int true "学生ID"
// @Param body body feedbackReq true "评语"
// @Success 200 {object} util.Response
// @Router /assignments/{id}/users/{userId}/feedback [post]
func (c *MarkingController) SaveFeedback(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	assignmentID, userID, ok := submissionIDs(ctx)
	if !ok {
		return
	}
	var req feedbackReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	grade, err := c.MarkingService.GetUserGrade(assignmentID, userID, true)
	if err != nil {
		respondError(ctx, err)
		return
	}
	var markerID *uint
	if !req.Overall {
		markerID = &user.UserID
	}
	comment, err := c.FeedbackService.SaveComment(grade, markerID, req.Text, req.Format)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, comment)
}

// @Summary 批量设置评阅状态
// @Description 后台执行，返回进度ID供轮询
// @Tags 评阅
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param body body service.BatchWorkflowReq true "学生与目标状态"
// @Success 202 {object} util.Response
// @Router /assignments/{id}/workflow/batch [post]
func (c *MarkingController) BatchWorkflow(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	assignmentID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.BatchWorkflowReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	taskID, err := c.JobService.BatchSetWorkflowState(assignmentID, user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Accepted(ctx, gin.H{"taskId": taskID})
}
