package events

import (
	"context"
	"errors"
	"sync"
)

// ErrFeedClosed is returned by operations on a closed feed.
var ErrFeedClosed = errors.New("feed closed")

// MemoryFeed is an in-process feed for single-node deployments.
type MemoryFeed struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	buffer int
	closed bool
}

// NewMemoryFeed creates a feed whose subscriptions buffer up to buffer events.
func NewMemoryFeed(buffer int) *MemoryFeed {
	if buffer <= 0 {
		buffer = 1
	}
	return &MemoryFeed{subs: make(map[*memorySubscription]struct{}), buffer: buffer}
}

// Publish delivers the event to every matching subscription without blocking.
// A subscription whose buffer is full misses the event; it already holds an
// undelivered one, so a refetching consumer stays current.
func (f *MemoryFeed) Publish(_ context.Context, event Event) error {
	event = stamp(event)

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedClosed
	}
	for sub := range f.subs {
		if sub.mask.Matches(event.Op) {
			sub.deliver(event)
		}
	}
	return nil
}

// Subscribe registers a new subscription.
func (f *MemoryFeed) Subscribe(ctx context.Context, mask Mask) (Subscription, error) {
	sub := &memorySubscription{feed: f, mask: mask, ch: make(chan Event, f.buffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.mu.Lock()
	sub.stop = stop
	sub.mu.Unlock()
	return sub, nil
}

// Close ends every open subscription.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	subs := make([]*memorySubscription, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (f *MemoryFeed) remove(sub *memorySubscription) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

type memorySubscription struct {
	feed *MemoryFeed
	mask Mask
	ch   chan Event
	stop func() bool
	once sync.Once

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) Events() <-chan Event {
	return s.ch
}

func (s *memorySubscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.feed.remove(s)
		s.mu.Lock()
		stop := s.stop
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
	return nil
}
