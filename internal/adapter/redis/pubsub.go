package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// EventsChannel carries every user's realtime events between instances.
const EventsChannel = keyPrefix + "events"

// EventBus publishes realtime events to Redis so every instance can deliver
// them to its own websocket clients.
type EventBus struct {
	rdb *goredis.Client
	log *logrus.Logger
}

var _ domain.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance.
func NewEventBus(client *Client, log *logrus.Logger) *EventBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventBus{rdb: client.rdb, log: log}
}

// Publish sends event to all instances.
func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, EventsChannel, data).Err()
}

// Run subscribes to the events channel and hands each event to deliver until
// ctx is cancelled.
func (b *EventBus) Run(ctx context.Context, deliver func(domain.Event)) error {
	sub := b.rdb.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", EventsChannel, err)
	}

	msgCh := sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.WithError(err).Warn("Dropping malformed realtime event")
				continue
			}
			deliver(event)
		case <-ctx.Done():
			return nil
		}
	}
}
