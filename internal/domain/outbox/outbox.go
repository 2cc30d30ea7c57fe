package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// Typed adapts a handler for one concrete event type. Events of any other type are ignored.
func Typed[T Event](h func(ctx context.Context, e T) error) Handler {
	return func(ctx context.Context, e Event) error {
		evt, ok := e.(T)
		if !ok {
			return nil
		}
		return h(ctx, evt)
	}
}
