package storage

import (
	"context"

	"apply-agent-go/internal/logger"
	"apply-agent-go/internal/session"
	"apply-agent-go/internal/storage/models"
)

// EventSink 会话事件的双路出口：MySQL落审计轨迹，RabbitMQ做实时广播。
// 广播失败不影响落库，落库失败只记日志
type EventSink struct {
	mysql  *MySQL
	rabbit *RabbitMQ
}

// NewEventSink rabbit可以为nil（广播降级为仅落库）
func NewEventSink(mysql *MySQL, rabbit *RabbitMQ) *EventSink {
	return &EventSink{mysql: mysql, rabbit: rabbit}
}

// PublishApplicationEvent 实现session.EventPublisher
func (s *EventSink) PublishApplicationEvent(ctx context.Context, evt session.ApplicationEvent) error {
	if s.mysql != nil {
		record := &models.ApplicationEvent{
			SessionID: evt.SessionID,
			ProfileID: evt.ProfileID,
			JobID:     evt.JobID,
			Kind:      evt.Kind,
			Detail:    evt.Detail,
			At:        evt.At,
		}
		if err := s.mysql.InsertApplicationEvent(ctx, record); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("kind", evt.Kind).Msg("[事件] 落库失败")
		}
	}
	if s.rabbit != nil {
		return s.rabbit.PublishApplicationEvent(ctx, evt)
	}
	return nil
}

var _ session.EventPublisher = (*EventSink)(nil)
