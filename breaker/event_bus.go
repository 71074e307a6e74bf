package breaker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// bus delivers events from a single goroutine, so a listener sees events in
// publish order. Listeners run in subscription order.
type bus struct {
	mu    sync.RWMutex
	order []SubscriptionID
	subs  map[SubscriptionID]subscription

	events    chan Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
}

type subscription struct {
	listener EventListener
	types    map[EventType]struct{} // empty accepts every type
}

func (s subscription) accepts(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// NewEventBus creates a bus buffering up to bufferSize events (default 100).
// Publishing into a full buffer drops the event.
func NewEventBus(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	b := &bus{
		subs:    make(map[SubscriptionID]subscription),
		events:  make(chan Event, bufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *bus) Subscribe(listener EventListener, types ...EventType) SubscriptionID {
	sub := subscription{listener: listener, types: make(map[EventType]struct{}, len(types))}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	id := SubscriptionID(uuid.NewString())
	b.mu.Lock()
	b.subs[id] = sub
	b.order = append(b.order, id)
	b.mu.Unlock()
	return id
}

func (b *bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, o := range b.order {
		if o == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *bus) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- event:
	default:
		b.dropped.Add(1)
	}
}

func (b *bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close delivers what is already buffered, then stops. Later publishes are ignored.
func (b *bus) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
		<-b.stopped
	})
}

func (b *bus) run() {
	defer close(b.stopped)
	for {
		select {
		case e := <-b.events:
			b.deliver(e)
		case <-b.done:
			for {
				select {
				case e := <-b.events:
					b.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (b *bus) deliver(e Event) {
	b.mu.RLock()
	targets := make([]EventListener, 0, len(b.order))
	for _, id := range b.order {
		if sub := b.subs[id]; sub.accepts(e.Type()) {
			targets = append(targets, sub.listener)
		}
	}
	b.mu.RUnlock()

	for _, l := range targets {
		notify(l, e)
	}
}

// notify isolates a panicking listener from the others
func notify(l EventListener, e Event) {
	defer func() { _ = recover() }()
	l.OnEvent(e)
}
