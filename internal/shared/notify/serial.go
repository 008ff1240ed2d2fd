// Package notify delivers values to a single listener in the order they were pushed,
// outside the pusher's locks. A listener may push again from inside its callback; the
// new value is queued behind the current one instead of recursing.
package notify

import "sync"

type Serial[T any] struct {
	mu       sync.Mutex
	queue    []T
	draining bool
	closed   bool
	deliver  func(T)
}

func NewSerial[T any](deliver func(T)) *Serial[T] {
	return &Serial[T]{deliver: deliver}
}

// Push enqueues v. When no delivery is running the caller drains the queue itself,
// so a push from an idle goroutine is delivered before Push returns.
func (s *Serial[T]) Push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	s.drain()
}

func (s *Serial[T]) drain() {
	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 {
			s.queue = nil
			s.draining = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(next)
	}
}

// Close drops pending values; nothing is delivered after it returns except a
// callback already running on another goroutine.
func (s *Serial[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
}

func (s *Serial[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
