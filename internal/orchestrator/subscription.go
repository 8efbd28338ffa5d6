package orchestrator

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// hub fans updates out to every open subscription in publish order.
type hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) subscribe() *Subscription {
	s := &Subscription{hub: h, notify: make(chan struct{}, 1)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *hub) publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(u)
	}
}

// purge drops queued updates that belong to generation gen.
func (h *hub) purge(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.drop(gen)
	}
}

// Subscription is an unbounded ordered mailbox of updates. A slow reader never
// blocks the stream.
type Subscription struct {
	hub    *hub
	notify chan struct{}

	mu     sync.Mutex
	queue  []Update
	closed bool
}

func (s *Subscription) push(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) drop(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	for _, u := range s.queue {
		if u.Generation != gen {
			kept = append(kept, u)
		}
	}
	clear(s.queue[len(kept):])
	s.queue = kept
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued updates.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next blocks until an update is available, the subscription is closed, or ctx
// ends.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			u := s.queue[0]
			s.queue[0] = Update{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return u, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Update{}, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Update{}, ctx.Err()
		}
	}
}

// Updates iterates until the subscription is closed or ctx ends.
func (s *Subscription) Updates(ctx context.Context) iter.Seq[Update] {
	return func(yield func(Update) bool) {
		for {
			u, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(u) {
				return
			}
		}
	}
}

// Close detaches the subscription and discards anything still queued. It is
// safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.wake()
}
