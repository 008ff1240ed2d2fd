package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultStaleTime      = 30 * time.Second
	defaultCacheTime      = 5 * time.Minute
	defaultMaxIdleEntries = 512
)

// Config tunes staleness, retention and retry for a Client.
type Config struct {
	// StaleTime is how long fetched data is served without a refetch.
	StaleTime time.Duration
	// CacheTime is how long an entry with no observers is kept before it is dropped.
	CacheTime time.Duration
	// MaxIdleEntries bounds the number of unobserved entries retained.
	MaxIdleEntries int
	Retry          RetryPolicy
	Now            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.StaleTime <= 0 {
		c.StaleTime = defaultStaleTime
	}
	if c.CacheTime <= 0 {
		c.CacheTime = defaultCacheTime
	}
	if c.MaxIdleEntries <= 0 {
		c.MaxIdleEntries = defaultMaxIdleEntries
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

// Recorder receives cache events; the metrics package implements it.
type Recorder interface {
	CacheHit()
	CacheMiss()
	FetchStarted()
	FetchRetried()
	FetchFinished(err error, elapsed time.Duration)
	FetchDiscarded()
	Evicted()
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()                          {}
func (nopRecorder) CacheMiss()                         {}
func (nopRecorder) FetchStarted()                      {}
func (nopRecorder) FetchRetried()                      {}
func (nopRecorder) FetchFinished(error, time.Duration) {}
func (nopRecorder) FetchDiscarded()                    {}
func (nopRecorder) Evicted()                           {}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// subscriber is an observer bound to an entry.
type subscriber interface {
	receive(snapshot)
}

type delivery struct {
	to   subscriber
	snap snapshot
}

// call is one in-flight request for an entry. Only the entry's current call may
// apply its result.
type call struct {
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

type entry struct {
	key  Key
	hash string

	data      any
	hasData   bool
	status    Status
	err       error
	fetchedAt time.Time
	staleTime time.Duration
	// invalidated marks the entry stale until the next fetch starts.
	invalidated bool

	fetch      fetchFunc
	call       *call
	seq        uint64
	prevStatus Status

	observers map[subscriber]struct{}
	parked    atomic.Bool
}

// Client is the shared query cache. All entry state is guarded by mu; network
// calls run on their own goroutines and notifications are delivered after mu is
// released, in client tick order.
type Client struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	idle    *expirable.LRU[string, *entry]
	tick    uint64

	ctx    context.Context
	cancel context.CancelFunc

	logger   *slog.Logger
	recorder Recorder
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		entries:  make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "query"))
	c.idle = expirable.NewLRU[string, *entry](cfg.MaxIdleEntries, c.onIdleEvicted, cfg.CacheTime)
	return c
}

// Shutdown cancels every in-flight request. The client stays usable for reads.
func (c *Client) Shutdown() {
	c.cancel()
}

func (c *Client) onIdleEvicted(hash string, e *entry) {
	if !e.parked.Load() {
		return
	}
	c.recorder.Evicted()
	c.logger.Debug("query entry evicted", slog.String("key", hash))
}

// lookup returns the active entry for key, reviving an idle one or creating it.
// Caller holds mu.
func (c *Client) lookup(key Key) *entry {
	hash := key.String()
	if e, ok := c.entries[hash]; ok {
		return e
	}
	if e, ok := c.idle.Peek(hash); ok {
		e.parked.Store(false)
		c.idle.Remove(hash)
		c.entries[hash] = e
		c.logger.Debug("query entry revived", slog.String("key", hash))
		return e
	}
	e := &entry{
		key:       append(Key(nil), key...),
		hash:      hash,
		status:    StatusIdle,
		observers: make(map[subscriber]struct{}),
	}
	c.entries[hash] = e
	return e
}

// park moves an unobserved, idle-network entry into the idle LRU. Caller holds mu.
func (c *Client) park(e *entry) {
	if len(e.observers) > 0 || e.call != nil {
		return
	}
	if current, ok := c.entries[e.hash]; !ok || current != e {
		return
	}
	delete(c.entries, e.hash)
	e.parked.Store(true)
	c.idle.Add(e.hash, e)
}

func (c *Client) staleTimeFor(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return c.cfg.StaleTime
}

// isStale reports whether e should be refetched on read. Caller holds mu.
func (c *Client) isStale(e *entry, now time.Time) bool {
	if e.invalidated {
		return true
	}
	if e.status != StatusSuccess && !(e.status == StatusLoading && e.hasData) {
		return false
	}
	if e.fetchedAt.IsZero() {
		return true
	}
	return now.Sub(e.fetchedAt) >= e.staleTime
}

// needsFetch decides whether a read of e starts a request. mount is true for
// observer mount, descriptor change and imperative fetches; errored entries only
// refetch on mount. Caller holds mu.
func (c *Client) needsFetch(e *entry, now time.Time, mount bool) bool {
	if e.call != nil {
		return e.invalidated
	}
	if e.invalidated {
		return true
	}
	switch e.status {
	case StatusIdle:
		return true
	case StatusError:
		return mount
	case StatusSuccess:
		return c.isStale(e, now)
	default:
		return false
	}
}

// read records a hit or miss and starts a fetch when needed. Caller holds mu.
func (c *Client) read(e *entry, fetch fetchFunc, mount bool) []delivery {
	if fetch != nil {
		e.fetch = fetch
	}
	now := c.cfg.Now()
	if !c.needsFetch(e, now, mount) {
		if e.status == StatusSuccess {
			c.recorder.CacheHit()
		}
		return nil
	}
	c.recorder.CacheMiss()
	return c.start(e)
}

// start issues a new request for e, superseding any in-flight one. Caller holds mu.
func (c *Client) start(e *entry) []delivery {
	if e.fetch == nil {
		return nil
	}
	if e.call != nil {
		e.call.cancel()
	} else {
		e.prevStatus = e.status
	}
	e.seq++
	ctx, cancel := context.WithCancel(c.ctx)
	cl := &call{seq: e.seq, cancel: cancel, done: make(chan struct{})}
	e.call = cl
	e.invalidated = false
	e.status = StatusLoading
	fetch := e.fetch

	c.recorder.FetchStarted()
	c.logger.Debug("query fetch start", slog.String("key", e.hash), slog.Uint64("seq", cl.seq))
	go c.run(ctx, e, cl, fetch)
	return c.fanout(e)
}

func (c *Client) run(ctx context.Context, e *entry, cl *call, fetch fetchFunc) {
	defer close(cl.done)
	defer cl.cancel()

	started := time.Now()
	value, err := c.cfg.Retry.run(ctx, fetch, func(attempt int, err error) {
		c.recorder.FetchRetried()
		c.logger.Debug("query fetch retry", slog.String("key", e.hash), slog.Int("attempt", attempt), slog.Any("error", err))
	})

	c.mu.Lock()
	if e.call != cl {
		c.mu.Unlock()
		c.recorder.FetchDiscarded()
		c.logger.Debug("query fetch discarded", slog.String("key", e.hash), slog.Uint64("seq", cl.seq))
		return
	}
	e.call = nil
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// client shutdown
		e.status = e.prevStatus
		deliveries := c.fanout(e)
		c.park(e)
		c.mu.Unlock()
		dispatch(deliveries)
		return
	}
	if err != nil {
		e.status = StatusError
		e.err = err
		c.logger.Warn("query fetch failed", slog.String("key", e.hash), slog.Any("error", err))
	} else {
		e.data = value
		e.hasData = true
		e.status = StatusSuccess
		e.err = nil
		e.fetchedAt = c.cfg.Now()
		c.logger.Debug("query fetch done", slog.String("key", e.hash), slog.Duration("elapsed", time.Since(started)))
	}
	c.recorder.FetchFinished(err, time.Since(started))
	deliveries := c.fanout(e)
	c.park(e)
	c.mu.Unlock()

	dispatch(deliveries)
}

// view builds the entry's state without advancing the tick. Caller holds mu.
func (c *Client) view(e *entry) snapshot {
	return snapshot{
		tick:      c.tick,
		hash:      e.hash,
		data:      e.data,
		hasData:   e.hasData,
		status:    e.status,
		err:       e.err,
		fetchedAt: e.fetchedAt,
		stale:     c.isStale(e, c.cfg.Now()),
	}
}

// fanout advances the tick and addresses the new snapshot to every observer of e.
// Caller holds mu.
func (c *Client) fanout(e *entry) []delivery {
	c.tick++
	snap := c.view(e)
	out := make([]delivery, 0, len(e.observers))
	for sub := range e.observers {
		out = append(out, delivery{to: sub, snap: snap})
	}
	return out
}

func dispatch(deliveries []delivery) {
	for _, d := range deliveries {
		d.to.receive(d.snap)
	}
}

// attach binds sub to the entry for key. Caller holds mu.
func (c *Client) attach(sub subscriber, key Key, staleTime time.Duration) *entry {
	e := c.lookup(key)
	e.observers[sub] = struct{}{}
	e.staleTime = c.staleTimeFor(staleTime)
	return e
}

// detach unbinds sub. When it was the last observer an in-flight request is
// abandoned and the entry returns to its pre-fetch status. Caller holds mu.
func (c *Client) detach(sub subscriber, e *entry) {
	if e == nil {
		return
	}
	delete(e.observers, sub)
	if len(e.observers) > 0 {
		return
	}
	if e.call != nil {
		e.call.cancel()
		e.call = nil
		e.status = e.prevStatus
		c.logger.Debug("query fetch abandoned", slog.String("key", e.hash))
	}
	c.park(e)
}

// Invalidate marks every entry whose key starts with prefix as stale. Active
// observers are notified and refetch on their next read. It returns the number of
// entries marked.
func (c *Client) Invalidate(prefix Key) int {
	c.mu.Lock()
	var (
		count      int
		deliveries []delivery
	)
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		count++
		if e.invalidated {
			continue
		}
		e.invalidated = true
		deliveries = append(deliveries, c.fanout(e)...)
	}
	for _, hash := range c.idle.Keys() {
		e, ok := c.idle.Peek(hash)
		if !ok || !e.key.HasPrefix(prefix) {
			continue
		}
		count++
		e.invalidated = true
	}
	c.mu.Unlock()

	c.logger.Debug("query invalidate", slog.String("prefix", prefix.String()), slog.Int("entries", count))
	dispatch(deliveries)
	return count
}

// Remove drops idle entries under prefix and resets active ones to idle without
// data, abandoning their requests. Observers of reset entries refetch on next read.
func (c *Client) Remove(prefix Key) int {
	c.mu.Lock()
	var (
		count      int
		deliveries []delivery
	)
	for _, hash := range c.idle.Keys() {
		e, ok := c.idle.Peek(hash)
		if !ok || !e.key.HasPrefix(prefix) {
			continue
		}
		e.parked.Store(false)
		c.idle.Remove(hash)
		count++
	}
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		count++
		if e.call != nil {
			e.call.cancel()
			e.call = nil
		}
		e.data = nil
		e.hasData = false
		e.err = nil
		e.fetchedAt = time.Time{}
		e.status = StatusIdle
		e.invalidated = true
		deliveries = append(deliveries, c.fanout(e)...)
		c.park(e)
	}
	c.mu.Unlock()

	dispatch(deliveries)
	return count
}

// Clear removes every entry.
func (c *Client) Clear() {
	c.Remove(Key{})
}

// Peek returns the current state of key without counting as a read.
func (c *Client) Peek(key Key) (State[any], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := key.String()
	e, ok := c.entries[hash]
	if !ok {
		e, ok = c.idle.Peek(hash)
	}
	if !ok {
		return State[any]{Status: StatusIdle}, false
	}
	return stateFrom[any](c.view(e)), true
}

// Stats is a point-in-time count of cache entries.
type Stats struct {
	Active   int
	Idle     int
	InFlight int
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{Active: len(c.entries), Idle: c.idle.Len()}
	for _, e := range c.entries {
		if e.call != nil {
			stats.InFlight++
		}
	}
	return stats
}
