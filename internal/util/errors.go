package util

import "errors"

var (
	ErrAssignmentNotFound      = errors.New("assignment not found")
	ErrGradeNotFound           = errors.New("grade not found")
	ErrInvalidMarkerAllocation = errors.New("invalid marker allocation")
	ErrTooManyMarkers          = errors.New("too many markers allocated")
	ErrUnknownWorkflowState    = errors.New("unknown marking workflow state")
	ErrNotManualMethod         = errors.New("overall grade can only be set directly with the manual method")
	ErrGradeLocked             = errors.New("submission is locked for grading")
	ErrNoGrader                = errors.New("grade has no acting grader")
	ErrTaskAlreadyRunning      = errors.New("task already running")
	ErrInvalidGradeValue       = errors.New("grade value out of range")
	ErrInvalidAssignment       = errors.New("invalid assignment settings")
)
