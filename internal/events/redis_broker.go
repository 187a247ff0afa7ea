package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/pinpincloud/internal/logging"
)

// RedisBroker distributes events across server instances with Redis pub/sub
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker publishes on channels named prefix + topic
func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) channel(topic Topic) string {
	return b.prefix + string(topic)
}

// Publish sends event to its topic channel
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(event.Topic), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

// Subscribe opens a pub/sub connection for topics. It returns once Redis has
// confirmed the subscription, so events published afterwards are delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, topics ...Topic) (Subscription, error) {
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = b.channel(topic)
	}

	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, DefaultBufferSize),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx)

	return sub, nil
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.ch)
	logger := logging.FromContext(ctx)
	messages := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.WithError(err).WithField("channel", msg.Channel).Warn("Discarding malformed event")
				continue
			}
			select {
			case s.ch <- event:
			default:
				logger.WithField("topic", event.Topic).Warn("Dropping event for slow subscriber")
			}
		}
	}
}

// Close is a no-op; the Redis client is owned by the caller
func (b *RedisBroker) Close() error {
	return nil
}
