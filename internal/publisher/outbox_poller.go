package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Christophe-THEVENET/greengoodies/internal/repository"
)

// NotificationSource is the slice of the repository the poller needs.
type NotificationSource interface {
	UnpublishedNotifications(ctx context.Context, limit int) ([]*repository.Notification, error)
	MarkNotificationPublished(ctx context.Context, id int64) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller drains queued cart notifications to Kafka. Notifications are
// written transactionally next to the order state and published here, so a
// broker outage never loses one.
type OutboxPoller struct {
	tick   time.Duration
	source NotificationSource
	writer messageWriter
	log    *zap.Logger
}

func NewOutboxPoller(source NotificationSource, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "cart-notifications",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		tick:   time.Second,
		source: source,
		writer: w,
		log:    log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublished(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublished(ctx context.Context) {
	notifications, err := p.source.UnpublishedNotifications(ctx, 100)
	if err != nil {
		p.log.Error("failed to fetch notifications", zap.Error(err))
		return
	}

	for _, n := range notifications {
		if err := p.publish(ctx, n); err != nil {
			p.log.Error("failed to publish notification",
				zap.Int64("id", n.ID),
				zap.Error(err))
			continue
		}

		if err := p.source.MarkNotificationPublished(ctx, n.ID); err != nil {
			p.log.Error("failed to mark notification published",
				zap.Int64("id", n.ID),
				zap.Error(err))
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, n *repository.Notification) error {
	msg := kafka.Message{
		Key:   []byte(n.AggregateID), // per-aggregate ordering
		Value: n.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(n.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
