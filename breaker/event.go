package breaker

import (
	"context"
	"time"
)

// EventType breaker event type
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventCallSuccess     EventType = "call_success"
	EventCallFailure     EventType = "call_failure"
	EventCallRejected    EventType = "call_rejected"
	EventFallbackSuccess EventType = "fallback_success"
	EventFallbackFailure EventType = "fallback_failure"
)

// Event is published by breakers on the registry's bus
type Event interface {
	Type() EventType
	Breaker() string
	Timestamp() time.Time
	Context() context.Context
}

// EventListener receives events
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to EventListener
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

// SubscriptionID identifies a subscription
type SubscriptionID string

// EventBus delivers events asynchronously; Publish never blocks
type EventBus interface {
	// Subscribe registers listener; with filters only those types are delivered
	Subscribe(listener EventListener, filters ...EventType) SubscriptionID
	Unsubscribe(id SubscriptionID)
	Publish(event Event)
	// Dropped counts events discarded because the buffer was full
	Dropped() int64
	Close()
}

// BaseEvent common event fields
type BaseEvent struct {
	eventType EventType
	breaker   string
	timestamp time.Time
	ctx       context.Context
}

func (e *BaseEvent) Type() EventType          { return e.eventType }
func (e *BaseEvent) Breaker() string          { return e.breaker }
func (e *BaseEvent) Timestamp() time.Time     { return e.timestamp }
func (e *BaseEvent) Context() context.Context { return e.ctx }

// NewBaseEvent creates a base event stamped now
func NewBaseEvent(eventType EventType, breaker string, ctx context.Context) BaseEvent {
	return BaseEvent{
		eventType: eventType,
		breaker:   breaker,
		timestamp: time.Now(),
		ctx:       ctx,
	}
}

// StateChangedEvent a state transition
type StateChangedEvent struct {
	BaseEvent
	FromState State
	ToState   State
	Reason    string
	Snapshot  Snapshot
}

// CallEvent the guarded operation finished
type CallEvent struct {
	BaseEvent
	Success   bool
	Monitored bool // the error counted as a failure
	Duration  time.Duration
	Error     error
}

// RejectedEvent a call was rejected while open
type RejectedEvent struct {
	BaseEvent
	FailureCount int
	OpenedAt     time.Time
}

// FallbackEvent the fallback ran
type FallbackEvent struct {
	BaseEvent
	Success  bool
	Duration time.Duration
	Error    error
}
