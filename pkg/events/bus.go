package events

import (
	"context"
	"sync"
)

type Handler func(ctx context.Context, e Event) error

type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus dispatches events to the handlers subscribed to their name.
//
// Publish is synchronous: handlers run on the publishing goroutine, in the
// order they subscribed, and the first handler error stops the dispatch and
// is returned to the publisher.
type Bus struct {
	mu       sync.Mutex
	nextID   SubscriptionID
	handlers map[EventName][]subscription
}

func NewBus() *Bus {
	return &Bus{
		handlers: map[EventName][]subscription{},
	}
}

// Subscribe registers h for events called name. The same handler may be
// registered more than once and is then called once per registration.
func (b *Bus) Subscribe(name EventName, h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, handler: h})
	return id
}

// SubscribeAll registers h for every known event name.
func (b *Bus) SubscribeAll(h Handler) []SubscriptionID {
	ret := make([]SubscriptionID, 0, len(AllEventNames))
	for _, name := range AllEventNames {
		ret = append(ret, b.Subscribe(name, h))
	}
	return ret
}

// Unsubscribe removes a registration. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, subs := range b.handlers {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			rest := make([]subscription, 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			if len(rest) == 0 {
				delete(b.handlers, name)
			} else {
				b.handlers[name] = rest
			}
			return
		}
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	subs := make([]subscription, len(b.handlers[e.Name()]))
	copy(subs, b.handlers[e.Name()])
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.handler(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// HandlerCount returns the number of registrations for name.
func (b *Bus) HandlerCount(name EventName) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[name])
}
