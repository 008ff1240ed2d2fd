package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"bizdash/internal/modules/query"
)

var ErrMissingSession = errors.New("missing session id")

const defaultIdleTimeout = 15 * time.Minute

// SessionRegistry owns the live dashboard sessions, keyed by session id. Sessions
// without sockets and without requests for IdleTimeout are closed by Sweep.
type SessionRegistry struct {
	deps        SessionDeps
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

type RegistryOption func(*SessionRegistry)

// WithIdleTimeout sets how long an unused session is kept; non-positive values
// keep the default.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *SessionRegistry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

func NewSessionRegistry(deps SessionDeps, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		deps:        deps.withDefaults(),
		idleTimeout: defaultIdleTimeout,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns the session for id, creating it on first use. An existing session
// picks up token so reconnecting clients refresh their credentials.
func (r *SessionRegistry) Open(id, subject, token string) (*Session, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, ErrMissingSession
	}
	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok && !existing.Closed() {
		existing.Touch()
		r.mu.Unlock()
		existing.SetToken(token)
		return existing, false, nil
	}
	session := NewSession(id, subject, token, r.deps)
	r.sessions[id] = session
	total := len(r.sessions)
	r.mu.Unlock()

	r.deps.Logger.Debug("dashboard session registered", slog.String("sessionId", id), slog.Int("sessions", total))
	return session, true, nil
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	return session, ok
}

// Close closes and forgets the session; it reports whether one existed.
func (r *SessionRegistry) Close(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	delete(r.sessions, strings.TrimSpace(id))
	r.mu.Unlock()
	if ok {
		session.Close()
	}
	return ok
}

func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}

// Each calls fn for every open session in id order, outside the registry lock.
func (r *SessionRegistry) Each(fn func(*Session)) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sessions = append(sessions, r.sessions[id])
	}
	r.mu.Unlock()

	for _, session := range sessions {
		if !session.Closed() {
			fn(session)
		}
	}
}

// Sweep closes the sessions idle for at least the idle timeout and returns how
// many it closed.
func (r *SessionRegistry) Sweep() int {
	now := r.deps.Now()
	r.mu.Lock()
	var expired []*Session
	for id, session := range r.sessions {
		if session.Closed() {
			delete(r.sessions, id)
			continue
		}
		if idle, ok := session.idleFor(now); ok && idle >= r.idleTimeout {
			delete(r.sessions, id)
			expired = append(expired, session)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		session.Close()
		r.deps.Logger.Info("dashboard session expired", slog.String("sessionId", session.ID()))
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *SessionRegistry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.idleTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Client returns the query cache the sessions share.
func (r *SessionRegistry) Client() *query.Client { return r.deps.Client }

// Deps returns the dependencies sessions are built with.
func (r *SessionRegistry) Deps() SessionDeps { return r.deps }
