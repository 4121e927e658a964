package gateway

import (
	"sync"
	"sync/atomic"
)

// dispatcher runs listener callbacks one at a time, in the order they
// were queued. Queueing never blocks, so it is safe under the link's
// mutex.
type dispatcher struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			fn()
		}
	}
}

func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
}

// subscription is one registered listener. Deliveries already queued
// when it is cancelled are skipped.
type subscription[T any] struct {
	fn     func(T)
	active atomic.Bool
}

func (s *subscription[T]) deliver(v T) {
	if s.active.Load() {
		s.fn(v)
	}
}

type registry[T any] struct {
	mu   sync.Mutex
	subs []*subscription[T]
}

func (r *registry[T]) add(fn func(T)) (*subscription[T], func()) {
	s := &subscription[T]{fn: fn}
	s.active.Store(true)

	r.mu.Lock()
	r.subs = append(r.subs, s)
	r.mu.Unlock()

	return s, func() {
		s.active.Store(false)
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, cur := range r.subs {
			if cur == s {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

func (r *registry[T]) snapshot() []*subscription[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*subscription[T], len(r.subs))
	copy(out, r.subs)
	return out
}
