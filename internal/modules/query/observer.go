package query

import (
	"context"
	"errors"
	"sync"

	"bizdash/internal/shared/notify"
)

// ErrDisabled is returned by Fetch for a disabled descriptor.
var ErrDisabled = errors.New("query disabled")

type update[T any] struct {
	tick  uint64
	state State[T]
}

// Observer is a live view of one descriptor. Binding fields (desc, entry, closed
// on the client side) are guarded by the client's mutex; the delivered state and
// listeners by mu.
type Observer[T any] struct {
	client *Client

	// guarded by client.mu
	desc  Descriptor[T]
	entry *entry
	gone  bool

	mu        sync.Mutex
	hash      string
	lastTick  uint64
	state     State[T]
	closed    bool
	listeners map[int]func(State[T])
	nextID    int

	queue     *notify.Serial[update[T]]
	delivered uint64
}

// NewObserver mounts desc: it binds to the entry for desc.Key and fetches when the
// descriptor is enabled and the entry is absent, stale or failed.
func NewObserver[T any](client *Client, desc Descriptor[T]) *Observer[T] {
	o := &Observer[T]{
		client:    client,
		listeners: make(map[int]func(State[T])),
		state:     State[T]{Status: StatusIdle},
	}
	o.queue = notify.NewSerial(o.emit)

	client.mu.Lock()
	deliveries, self := o.bindLocked(desc)
	client.mu.Unlock()

	dispatch(deliveries)
	o.queue.Push(self)
	return o
}

// bindLocked points the observer at desc, releasing any previous entry, and
// returns the observer's new state for delivery once client.mu is released.
// Caller holds client.mu.
func (o *Observer[T]) bindLocked(desc Descriptor[T]) ([]delivery, update[T]) {
	c := o.client
	prev := o.entry
	o.desc = desc

	if !desc.active() {
		if prev != nil {
			c.detach(o, prev)
		}
		o.entry = nil
		c.tick++
		return nil, o.resetLocked("", snapshot{tick: c.tick, status: StatusIdle})
	}

	hash := desc.Key.String()
	if prev != nil && prev.hash != hash {
		c.detach(o, prev)
		prev = nil
	}
	e := prev
	if e == nil {
		e = c.attach(o, desc.Key, desc.StaleTime)
	} else {
		e.staleTime = c.staleTimeFor(desc.StaleTime)
	}
	o.entry = e

	deliveries := c.read(e, desc.fetcher(), true)
	c.tick++
	return withoutSubscriber(deliveries, o), o.resetLocked(hash, c.view(e))
}

// resetLocked installs snap as the observer's state. Anything older still queued
// for delivery is dropped by tick. Caller holds client.mu.
func (o *Observer[T]) resetLocked(hash string, snap snapshot) update[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hash = hash
	if snap.tick > o.lastTick {
		o.lastTick = snap.tick
	}
	o.state = stateFrom[T](snap)
	return update[T]{tick: o.lastTick, state: o.state}
}

func withoutSubscriber(deliveries []delivery, sub subscriber) []delivery {
	out := deliveries[:0]
	for _, d := range deliveries {
		if d.to != sub {
			out = append(out, d)
		}
	}
	return out
}

func (o *Observer[T]) receive(snap snapshot) {
	o.mu.Lock()
	if o.closed || snap.hash != o.hash || snap.tick <= o.lastTick {
		o.mu.Unlock()
		return
	}
	o.lastTick = snap.tick
	o.state = stateFrom[T](snap)
	st := o.state
	o.mu.Unlock()

	o.queue.Push(update[T]{tick: snap.tick, state: st})
}

// emit runs on the serial queue only.
func (o *Observer[T]) emit(u update[T]) {
	if u.tick <= o.delivered {
		return
	}
	o.delivered = u.tick

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	fns := make([]func(State[T]), 0, len(o.listeners))
	for id := 0; id < o.nextID; id++ {
		if fn, ok := o.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(u.state)
	}
}

// State returns the current state. It counts as a read: a stale or invalidated
// entry starts exactly one refetch, shared with every other reader.
func (o *Observer[T]) State() State[T] {
	c := o.client
	c.mu.Lock()
	if o.gone || o.entry == nil {
		c.mu.Unlock()
		return o.snapshotState()
	}
	e := o.entry
	deliveries := c.read(e, nil, false)
	snap := c.view(e)
	c.mu.Unlock()

	dispatch(deliveries)
	return stateFrom[T](snap)
}

func (o *Observer[T]) snapshotState() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Descriptor returns the descriptor the observer is bound to.
func (o *Observer[T]) Descriptor() Descriptor[T] {
	o.client.mu.Lock()
	defer o.client.mu.Unlock()
	return o.desc
}

// Subscribe registers fn for every state change, delivered in order and never
// after Close. fn may call back into the observer or the client.
func (o *Observer[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

// SetDescriptor rebinds the observer. Notifications for the previous key that have
// not been delivered yet are dropped.
func (o *Observer[T]) SetDescriptor(desc Descriptor[T]) {
	c := o.client
	c.mu.Lock()
	if o.gone {
		c.mu.Unlock()
		return
	}
	deliveries, self := o.bindLocked(desc)
	c.mu.Unlock()

	dispatch(deliveries)
	o.queue.Push(self)
}

// Refetch starts a new request for the bound key, superseding any in-flight one.
func (o *Observer[T]) Refetch() {
	c := o.client
	c.mu.Lock()
	if o.gone || o.entry == nil {
		c.mu.Unlock()
		return
	}
	e := o.entry
	if e.fetch == nil {
		e.fetch = o.desc.fetcher()
	}
	deliveries := c.start(e)
	c.mu.Unlock()

	dispatch(deliveries)
}

// Close unmounts the observer. Its request keeps running for other observers of
// the same key; when none remain the request is abandoned.
func (o *Observer[T]) Close() {
	c := o.client
	c.mu.Lock()
	if o.gone {
		c.mu.Unlock()
		return
	}
	o.gone = true
	if o.entry != nil {
		c.detach(o, o.entry)
		o.entry = nil
	}
	c.mu.Unlock()

	o.mu.Lock()
	o.closed = true
	o.listeners = map[int]func(State[T]){}
	o.mu.Unlock()
	o.queue.Close()
}

// Fetch reads desc through the cache and waits for a settled result. Fresh data is
// returned without a request; otherwise it joins or starts the fetch for the key.
func Fetch[T any](ctx context.Context, client *Client, desc Descriptor[T]) (T, error) {
	var zero T
	if !desc.active() {
		return zero, ErrDisabled
	}

	wake := make(chan struct{}, 1)
	o := NewObserver(client, desc)
	defer o.Close()
	unsubscribe := o.Subscribe(func(State[T]) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		state := o.State()
		if state.IsError() {
			return zero, state.Err
		}
		if state.IsSuccess() {
			return state.Data, nil
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wake:
		}
	}
}

// Warmer is implemented by every Descriptor.
type Warmer interface {
	Warm(ctx context.Context, c *Client) error
}
