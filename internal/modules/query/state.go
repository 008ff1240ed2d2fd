package query

import (
	"context"
	"time"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is what an observer sees of its cache entry. Data stays populated while a
// refetch runs or after a failed refetch; HasData tells a zero T apart from no data.
type State[T any] struct {
	Data      T
	HasData   bool
	Status    Status
	Err       error
	FetchedAt time.Time
	Stale     bool
}

func (s State[T]) IsLoading() bool { return s.Status == StatusLoading }
func (s State[T]) IsError() bool   { return s.Status == StatusError }
func (s State[T]) IsSuccess() bool { return s.Status == StatusSuccess }

// Settled reports a terminal status with no request outstanding.
func (s State[T]) Settled() bool {
	return s.Status == StatusSuccess || s.Status == StatusError
}

// Descriptor couples a key with the fetch that fills it. Descriptors with equal keys
// share one cache entry regardless of which fetch function they carry.
type Descriptor[T any] struct {
	Key       Key
	Fetch     func(ctx context.Context) (T, error)
	Enabled   bool
	StaleTime time.Duration
}

// Describe returns an enabled descriptor using the client's default stale time.
func Describe[T any](key Key, fetch func(ctx context.Context) (T, error)) Descriptor[T] {
	return Descriptor[T]{Key: key, Fetch: fetch, Enabled: true}
}

// When sets the enabled flag; a disabled descriptor never fetches and reports idle.
func (d Descriptor[T]) When(enabled bool) Descriptor[T] {
	d.Enabled = enabled
	return d
}

// StaleAfter overrides the client's stale time for this descriptor.
func (d Descriptor[T]) StaleAfter(stale time.Duration) Descriptor[T] {
	d.StaleTime = stale
	return d
}

func (d Descriptor[T]) active() bool {
	return d.Enabled && d.Fetch != nil
}

func (d Descriptor[T]) fetcher() fetchFunc {
	fetch := d.Fetch
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

// Warm implements Warmer so descriptors of different types can be prefetched together.
func (d Descriptor[T]) Warm(ctx context.Context, c *Client) error {
	if !d.active() {
		return nil
	}
	_, err := Fetch(ctx, c, d)
	return err
}

type fetchFunc func(ctx context.Context) (any, error)

// snapshot is an entry's state at one client tick.
type snapshot struct {
	tick      uint64
	hash      string
	data      any
	hasData   bool
	status    Status
	err       error
	fetchedAt time.Time
	stale     bool
}

func stateFrom[T any](snap snapshot) State[T] {
	state := State[T]{
		Status:    snap.status,
		Err:       snap.err,
		FetchedAt: snap.fetchedAt,
		Stale:     snap.stale,
	}
	if snap.hasData {
		if data, ok := snap.data.(T); ok {
			state.Data = data
			state.HasData = true
		}
	}
	if state.Status == "" {
		state.Status = StatusIdle
	}
	return state
}
