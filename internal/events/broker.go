// Package events carries change notifications to live subscribers.
//
// Subscribers receive events on a channel until they call Close or the
// context passed to Subscribe is cancelled. Delivery is best effort: a
// subscriber that falls behind its buffer loses events rather than
// blocking publishers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Topic names a stream of events
type Topic string

// MaintenanceTopic carries maintenance record updates
const MaintenanceTopic Topic = "maintenance"

// FilesTopic carries file changes of one owner
func FilesTopic(ownerID string) Topic {
	return Topic("files:" + ownerID)
}

// Event types
const (
	TypeMaintenanceUpdated = "maintenance.updated"
	TypeFileCreated        = "file.created"
	TypeFileUpdated        = "file.updated"
	TypeFileDeleted        = "file.deleted"
)

// Event is one notification
type Event struct {
	Topic      Topic           `json:"topic"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewEvent marshals payload into an event
func NewEvent(topic Topic, eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return Event{
		Topic:      topic,
		Type:       eventType,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Subscription is an open stream of events
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Publisher sends events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Broker publishes events and opens subscriptions
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, topics ...Topic) (Subscription, error)
	Close() error
}

// DefaultBufferSize is the per-subscriber channel capacity
const DefaultBufferSize = 32
