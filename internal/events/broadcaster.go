package events

import (
	"sync"

	"github.com/google/uuid"
)

// Broadcaster fans out every published event to all current subscribers.
// Each subscriber receives each event exactly once and in publish order.
// Publish never blocks on slow subscribers: every subscription buffers
// undelivered events in its own queue.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uuid.UUID]*Subscription),
	}
}

// Subscribe registers a new consumer.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{
		ID:     uuid.New(),
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		parent: b,
	}

	b.mu.Lock()
	b.subs[s.ID] = s
	b.mu.Unlock()

	go s.pump()
	return s
}

// SubscribeFunc calls fn for every event until the returned function is called.
// fn runs on a dedicated goroutine, one event at a time.
func (b *Broadcaster) SubscribeFunc(fn func(Event)) (unsubscribe func()) {
	s := b.Subscribe()
	go func() {
		for e := range s.Events() {
			fn(e)
		}
	}()
	return s.Unsubscribe
}

// Unsubscribe removes the subscription with the given id. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		s.stop()
	}
}

// Publish enqueues e for every subscriber.
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		s.enqueue(e)
	}
}

// Len returns the number of active subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uuid.UUID]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

// Subscription is a single consumer of a Broadcaster.
type Subscription struct {
	ID uuid.UUID

	mu     sync.Mutex
	queue  []Event
	notify chan struct{}

	out      chan Event
	done     chan struct{}
	stopOnce sync.Once
	parent   *Broadcaster
}

// Events returns the delivery channel. It is closed after Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Unsubscribe stops delivery. Events not yet received are discarded.
func (s *Subscription) Unsubscribe() {
	s.parent.Unsubscribe(s.ID)
}

func (s *Subscription) enqueue(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default: // a wake-up is already pending
	}
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- e:
			case <-s.done:
				return
			}
		}
	}
}
