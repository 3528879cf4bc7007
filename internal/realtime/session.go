// Package realtime keeps a client's view current by reloading it whenever
// the change feed reports a write.
package realtime

import (
	"context"
	"sync"

	"github.com/spec-kit/job-tracker/internal/events"
)

// Loader fetches a complete view.
type Loader[T any] func(ctx context.Context) (T, error)

// Snapshot is one load result. Version increases by one per load.
type Snapshot[T any] struct {
	Value   T
	Err     error
	Version uint64
}

// Session is one client's live subscription to a view. Updates holds at most
// one pending snapshot; an unread snapshot is replaced by a newer one.
type Session[T any] struct {
	updates chan Snapshot[T]
	sub     events.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Open subscribes to feed, loads the initial view and starts reloading on
// every matching event. Events that arrive while a reload is running are
// folded into a single follow-up reload.
func Open[T any](ctx context.Context, feed events.Feed, mask events.Mask, load Loader[T]) (*Session[T], error) {
	sessionCtx, cancel := context.WithCancel(ctx)

	// Subscribe before the first load so a write landing in between still
	// triggers a reload.
	sub, err := feed.Subscribe(sessionCtx, mask)
	if err != nil {
		cancel()
		return nil, err
	}
	initial, err := load(sessionCtx)
	if err != nil {
		cancel()
		_ = sub.Close()
		return nil, err
	}

	s := &Session[T]{
		updates: make(chan Snapshot[T], 1),
		sub:     sub,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.updates <- Snapshot[T]{Value: initial, Version: 1}
	go s.run(sessionCtx, load)
	return s, nil
}

// Updates delivers snapshots. It is closed when the session ends.
func (s *Session[T]) Updates() <-chan Snapshot[T] {
	return s.updates
}

// Done is closed once the session has stopped, either through Close, the
// parent context or the feed ending the subscription.
func (s *Session[T]) Done() <-chan struct{} {
	return s.done
}

// Close stops the session and waits for its goroutine. No load starts after
// Close returns. It is safe to call more than once.
func (s *Session[T]) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		_ = s.sub.Close()
	})
}

func (s *Session[T]) run(ctx context.Context, load Loader[T]) {
	defer close(s.done)
	defer close(s.updates)

	incoming := s.sub.Events()
	version := uint64(1)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-incoming:
			if !ok {
				return
			}
			open := drain(incoming)

			value, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			version++
			s.push(Snapshot[T]{Value: value, Err: err, Version: version})
			if !open {
				return
			}
		}
	}
}

// drain discards queued events; one reload covers them all. It reports
// whether the channel is still open.
func drain(incoming <-chan events.Event) bool {
	for {
		select {
		case _, ok := <-incoming:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

func (s *Session[T]) push(snapshot Snapshot[T]) {
	for {
		select {
		case s.updates <- snapshot:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
