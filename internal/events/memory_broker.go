package events

import (
	"context"
	"errors"
	"sync"

	"github.com/pinpincloud/internal/logging"
)

// ErrBrokerClosed is returned after Close
var ErrBrokerClosed = errors.New("event broker is closed")

// MemoryBroker fans events out within one process
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[Topic]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBroker creates an empty in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[Topic]map[*memorySubscription]struct{})}
}

type memorySubscription struct {
	broker *MemoryBroker
	topics []Topic
	ch     chan Event
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
	return nil
}

// Subscribe registers for topics until Close or ctx is done
func (b *MemoryBroker) Subscribe(ctx context.Context, topics ...Topic) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := &memorySubscription{broker: b, topics: topics, ch: make(chan Event, DefaultBufferSize)}
	for _, topic := range topics {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[*memorySubscription]struct{})
		}
		b.subs[topic][sub] = struct{}{}
	}

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return sub, nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range sub.topics {
		delete(b.subs[topic], sub)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
}

// Publish delivers event to every current subscriber of its topic
func (b *MemoryBroker) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}

	for sub := range b.subs[event.Topic] {
		select {
		case sub.ch <- event:
		default:
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"topic": event.Topic,
				"type":  event.Type,
			}).Warn("Dropping event for slow subscriber")
		}
	}
	return nil
}

// Close closes every open subscription
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	var all []*memorySubscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}
