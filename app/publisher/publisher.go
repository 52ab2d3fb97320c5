package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

const defaultChannel = "rental-payments.events"

// RedisPublisher fans domain events out over a Redis pub/sub channel as JSON.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *entity.DomainEvent) error {
	if event == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// LogPublisher only logs events. It is used when no broker is configured.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event *entity.DomainEvent) error {
	if event == nil {
		return nil
	}
	p.logger.WithFields(logrus.Fields{
		"event":          event.Type,
		"correlation_id": event.CorrelationID,
		"amount_minor":   event.AmountMinor,
		"receipt_id":     event.ReceiptID,
	}).Info("domain event")
	return nil
}
