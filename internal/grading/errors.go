package grading

import "errors"

// 配置类错误，仅在作业设置阶段返回
var (
	ErrUnknownMethod      = errors.New("unknown multi-marking method")
	ErrUnknownRounding    = errors.New("unknown multi-marking rounding mode")
	ErrInvalidProgression = errors.New("invalid marking workflow progression")
)
