package service

import (
	"context"
	"encoding/json"
	"time"

	"marking_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	EventGradeUpdated    = "grade.updated"
	EventWorkflowUpdated = "workflow.updated"
)

// GradeEvent 总成绩或总体评阅状态变化时发布，供评阅界面刷新
type GradeEvent struct {
	Type          string    `json:"type"`
	AssignmentID  uint      `json:"assignmentId"`
	UserID        uint      `json:"userId"`
	GradeID       uint      `json:"gradeId,omitempty"`
	Grade         float64   `json:"grade"`
	WorkflowState string    `json:"workflowState,omitempty"`
	At            time.Time `json:"at"`
}

type GradeEventPublisher interface {
	Publish(event GradeEvent)
}

// NopGradeEventPublisher 未配置 Redis 时使用
type NopGradeEventPublisher struct{}

func (NopGradeEventPublisher) Publish(GradeEvent) {}

type RedisGradeEventPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisGradeEventPublisher(rdb *redis.Client, channel string) *RedisGradeEventPublisher {
	return &RedisGradeEventPublisher{rdb: rdb, channel: channel}
}

// Publish 发布失败只记录日志，不影响评分结果
func (p *RedisGradeEventPublisher) Publish(event GradeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("marshal grade event failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		logger.Log.Warn("publish grade event failed",
			zap.String("type", event.Type),
			zap.Uint("assignmentId", event.AssignmentID),
			zap.Uint("userId", event.UserID),
			zap.Error(err))
	}
}
