package controller

import (
	"errors"
	"net/http"

	"marking_backend/internal/grading"
	"marking_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondError 把服务层错误映射成 HTTP 响应
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrAssignmentNotFound), errors.Is(err, util.ErrGradeNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrGradeLocked), errors.Is(err, util.ErrTaskAlreadyRunning):
		util.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, util.ErrNoGrader):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrInvalidMarkerAllocation),
		errors.Is(err, util.ErrTooManyMarkers),
		errors.Is(err, util.ErrUnknownWorkflowState),
		errors.Is(err, util.ErrNotManualMethod),
		errors.Is(err, util.ErrInvalidGradeValue),
		errors.Is(err, util.ErrInvalidAssignment),
		errors.Is(err, grading.ErrUnknownMethod),
		errors.Is(err, grading.ErrUnknownRounding):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// pathID 解析路径中的正整数 ID，失败时已写入 400 响应
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id := util.MustParseUint(ctx.Param(name))
	if id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}
