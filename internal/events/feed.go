package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TableJobs is the only table the feed reports on.
const TableJobs = "jobs"

// EventHandler handles a delivered event.
type EventHandler func(context.Context, Event) error

// Feed fans committed changes out to every subscriber.
type Feed interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe opens a subscription that receives events matching mask. It
	// is closed when ctx is done or Close is called, whichever comes first.
	Subscribe(ctx context.Context, mask Mask) (Subscription, error)
	Close() error
}

// Subscription is one consumer's view of the feed. Events is closed once the
// subscription has been closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// stamp fills the identity fields a publisher may leave blank.
func stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Table == "" {
		event.Table = TableJobs
	}
	if event.Op == "" {
		event.Op = event.Type.Op()
	}
	return event
}

// Consume runs handler for every event on sub until the subscription ends or
// ctx is done. Handler errors are passed to onError and do not stop the loop.
func Consume(ctx context.Context, sub Subscription, handler EventHandler, onError func(Event, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := handler(ctx, event); err != nil && onError != nil {
				onError(event, err)
			}
		}
	}
}
