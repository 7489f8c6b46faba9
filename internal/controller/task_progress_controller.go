package controller

import (
	"marking_backend/internal/service"
	"marking_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TaskProgressController struct {
	ProgressService *service.TaskProgressService
}

func NewTaskProgressController(progress *service.TaskProgressService) *TaskProgressController {
	return &TaskProgressController{ProgressService: progress}
}

// @Summary 轮询后台任务进度
// @Description 任务结束或不存在时返回 100
// @Tags 任务
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "进度ID"
// @Success 200 {object} util.Response
// @Router /tasks/progress/{id} [get]
func (c *TaskProgressController) Poll(ctx *gin.Context) {
	id := ctx.Param("id")
	if id == "" {
		util.BadRequest(ctx, "invalid id")
		return
	}
	result, err := c.ProgressService.Poll(id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
