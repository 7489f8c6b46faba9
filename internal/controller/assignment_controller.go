package controller

import (
	"marking_backend/internal/service"
	"marking_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssignmentController struct {
	AssignmentService *service.AssignmentService
	JobService        *service.JobService
}

func NewAssignmentController(assignments *service.AssignmentService, jobs *service.JobService) *AssignmentController {
	return &AssignmentController{AssignmentService: assignments, JobService: jobs}
}

// @Summary 创建作业
// @Description 未指定的评阅设置取配置中的默认值
// @Tags 作业
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.AssignmentReq true "作业设置"
// @Success 201 {object} util.Response
// @Router /assignments [post]
func (c *AssignmentController) Create(ctx *gin.Context) {
	var req service.AssignmentReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	assignment, err := c.AssignmentService.Create(req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, assignment)
}

// @Summary 获取作业
// @Tags 作业
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Success 200 {object} util.Response
// @Router /assignments/{id} [get]
func (c *AssignmentController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	assignment, err := c.AssignmentService.Get(id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, assignment)
}

// @Summary 更新作业
// @Description 汇总方式或取整方式变化时返回重新计算任务的进度ID
// @Tags 作业
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Param body body service.AssignmentReq true "需要修改的字段"
// @Success 200 {object} util.Response
// @Router /assignments/{id} [put]
func (c *AssignmentController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.AssignmentReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.AssignmentService.Update(id, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 重新计算作业下所有成绩
// @Tags 作业
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作业ID"
// @Success 202 {object} util.Response
// @Router /assignments/{id}/regrade [post]
func (c *AssignmentController) Regrade(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	taskID, err := c.JobService.RegradeAssignment(id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Accepted(ctx, gin.H{"taskId": taskID})
}
