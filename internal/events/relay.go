package events

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// relaySubscription forwards decoded events from a broker delivery channel.
type relaySubscription struct {
	out     chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	release func() error

	mu   sync.Mutex
	stop func() bool
}

func newRelaySubscription(buffer int, release func() error) *relaySubscription {
	if buffer <= 0 {
		buffer = 1
	}
	return &relaySubscription{
		out:     make(chan Event, buffer),
		done:    make(chan struct{}),
		release: release,
	}
}

// start launches the forwarding goroutine and ties the subscription to ctx.
func startRelay[M any](ctx context.Context, s *relaySubscription, in <-chan M, body func(M) []byte, mask Mask, logger *zap.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.out)
		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal(body(msg), &event); err != nil {
					logger.Warn("dropping undecodable change event", zap.Error(err))
					continue
				}
				if !mask.Matches(event.Op) {
					continue
				}
				// A full buffer drops the event. Consumers reload the whole
				// view, so the event already queued brings them up to date.
				select {
				case s.out <- event:
				case <-s.done:
					return
				default:
					logger.Debug("subscriber busy, dropping change event", zap.String("type", string(event.Type)))
				}
			}
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
}

func (s *relaySubscription) Events() <-chan Event {
	return s.out
}

func (s *relaySubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.release()
		s.wg.Wait()
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
	return err
}
