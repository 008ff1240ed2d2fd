package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bizdash/internal/modules/dashboard/application/port"
	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/modules/query"
	resdomain "bizdash/internal/modules/resources/domain"
	resinfra "bizdash/internal/modules/resources/infrastructure"
	"bizdash/internal/modules/selection"
)

var ErrSessionClosed = errors.New("session closed")

// SessionDeps are shared by every session of a registry.
type SessionDeps struct {
	Client      *query.Client
	Services    *resinfra.Services
	Broadcaster port.Broadcaster
	Metrics     port.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

func (d SessionDeps) withDefaults() SessionDeps {
	if d.Broadcaster == nil {
		d.Broadcaster = port.NopBroadcaster{}
	}
	if d.Metrics == nil {
		d.Metrics = port.NopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Session is one authenticated dashboard: a selection store and one live query per
// view. Selection changes rebind the affected views; every view state change is
// broadcast to the session's websocket clients.
type Session struct {
	id       string
	subject  string
	client   *query.Client
	services *resinfra.Services
	store    *selection.Store
	out      port.Broadcaster
	metrics  port.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	token    string
	closed   bool
	lastSeen time.Time
	sockets  int

	// bindMu serializes rebinds so a selection change and a paging change cannot
	// interleave their descriptors.
	bindMu      sync.Mutex
	bindings    map[domain.View]binding
	unsubscribe func()
}

// NewSession builds a session and mounts every view for the empty selection.
func NewSession(id, subject, token string, deps SessionDeps) *Session {
	deps = deps.withDefaults()
	logger := deps.Logger.With(slog.String("component", "dashboard-session"), slog.String("sessionId", id))
	s := &Session{
		id:       id,
		subject:  subject,
		client:   deps.Client,
		services: deps.Services,
		store:    selection.Default(selection.WithLogger(logger)),
		out:      deps.Broadcaster,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      deps.Now,
		token:    strings.TrimSpace(token),
		lastSeen: deps.Now(),
	}

	s.bindMu.Lock()
	s.bindings = bindViews(s, deps.Services, s.store.Snapshot())
	s.bindMu.Unlock()

	s.unsubscribe = s.store.Subscribe(s.onSelection)
	s.metrics.SessionOpened()
	logger.Info("dashboard session opened", slog.String("subject", subject))
	return s
}

func (s *Session) ID() string      { return s.id }
func (s *Session) Subject() string { return s.subject }

// Owner scopes the session's cache keys: the subject, or the session id for
// tokens without one. Sessions of the same owner share cache entries.
func (s *Session) Owner() string {
	if owner := strings.TrimSpace(s.subject); owner != "" {
		return owner
	}
	return s.id
}

// Touch records activity; idle sessions are expired by the registry.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

// Retain marks a live socket on the session; a retained session never expires.
func (s *Session) Retain() {
	s.mu.Lock()
	s.sockets++
	s.lastSeen = s.now()
	s.mu.Unlock()
}

// Release undoes Retain and returns the sockets still attached.
func (s *Session) Release() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sockets > 0 {
		s.sockets--
	}
	s.lastSeen = s.now()
	return s.sockets
}

// idleFor reports how long the session has been unused; retained sessions
// report false.
func (s *Session) idleFor(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sockets > 0 || s.closed {
		return 0, false
	}
	return now.Sub(s.lastSeen), true
}

// Token returns the bearer token forwarded upstream.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken replaces the forwarded token, e.g. after the client re-authenticated.
// Views that failed with an auth error are refetched.
func (s *Session) SetToken(token string) {
	token = strings.TrimSpace(token)
	s.mu.Lock()
	changed := token != "" && token != s.token
	if changed {
		s.token = token
	}
	s.mu.Unlock()
	if !changed {
		return
	}
	for _, b := range s.snapshotBindings() {
		if st := b.state(); st.Error != nil && st.Error.Reauthenticate {
			b.refetch()
		}
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Selection exposes the session's selection store.
func (s *Session) Selection() *selection.Store { return s.store }

// Select sets a selection slot (nil resets it).
func (s *Session) Select(scope selection.Scope, ref *selection.Ref) {
	s.store.Set(scope, ref)
}

func (s *Session) ResetSelection(scope selection.Scope) {
	s.store.Reset(scope)
}

func (s *Session) ResetAllSelection() {
	s.store.ResetAll()
}

func (s *Session) OpenDialog(mode string, ref *selection.Ref) {
	s.store.OpenDialog(mode, ref)
}

func (s *Session) CloseDialog() {
	s.store.CloseDialog()
}

// ViewState reads view; a stale or invalidated view starts a refetch.
func (s *Session) ViewState(view domain.View) (domain.ViewState, error) {
	b, err := s.binding(view)
	if err != nil {
		return domain.ViewState{}, err
	}
	return b.state(), nil
}

// ViewStates reads every view in domain.Views order.
func (s *Session) ViewStates() []domain.ViewState {
	views := domain.Views()
	out := make([]domain.ViewState, 0, len(views))
	for _, view := range views {
		if st, err := s.ViewState(view); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// SetPage changes paging, search, sort or filters of a paged view.
func (s *Session) SetPage(view domain.View, q resdomain.PagedQuery) error {
	b, err := s.binding(view)
	if err != nil {
		return err
	}
	if !b.spec().Paged {
		return domain.ErrNotPaged
	}
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	b.setQuery(s.store.Snapshot(), q)
	return nil
}

// Refetch forces a new request for view.
func (s *Session) Refetch(view domain.View) error {
	b, err := s.binding(view)
	if err != nil {
		return err
	}
	b.refetch()
	return nil
}

// Refresh reads every view so stale or invalidated ones refetch.
func (s *Session) Refresh() {
	for _, b := range s.snapshotBindings() {
		b.state()
	}
}

// Tracks reports whether an enabled view of the session reads a key under one of
// prefixes.
func (s *Session) Tracks(prefixes []query.Key) bool {
	if s.Closed() {
		return false
	}
	for _, b := range s.snapshotBindings() {
		if b.tracks(prefixes) {
			return true
		}
	}
	return false
}

// Warm loads every enabled view in parallel and waits for the results.
func (s *Session) Warm(ctx context.Context) error {
	bindings := s.snapshotBindings()
	warmers := make([]query.Warmer, 0, len(bindings))
	for _, b := range bindings {
		warmers = append(warmers, b.warmer())
	}
	return query.Prefetch(ctx, s.client, warmers...)
}

// Close unmounts every view and stops listening to the selection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.bindMu.Lock()
	for _, b := range s.bindings {
		b.close()
	}
	s.bindMu.Unlock()
	s.metrics.SessionClosed()
	s.logger.Info("dashboard session closed")
}

func (s *Session) binding(view domain.View) (binding, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	if _, err := domain.SpecFor(view); err != nil {
		return nil, err
	}
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	return s.bindings[view], nil
}

func (s *Session) snapshotBindings() []binding {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	out := make([]binding, 0, len(s.bindings))
	for _, view := range domain.Views() {
		if b, ok := s.bindings[view]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (s *Session) onSelection(change selection.Change) {
	if s.Closed() {
		return
	}
	s.bindMu.Lock()
	for _, view := range domain.Views() {
		b := s.bindings[view]
		if b.spec().Touched(change) {
			b.rebind(change.Snapshot)
		}
	}
	s.bindMu.Unlock()

	scopes := make([]string, 0, len(change.Scopes))
	for _, scope := range change.Scopes {
		scopes = append(scopes, string(scope))
	}
	s.logger.Debug("selection applied", slog.Uint64("version", change.Version), slog.Any("scopes", scopes))
	s.out.Broadcast(context.Background(), &domain.Message{
		Topic:    domain.TopicSelectionChanged,
		Entity:   domain.SelectionEntity,
		Action:   domain.ActionChanged,
		Metadata: domain.SessionMetadata(s.id, nil),
		Data: map[string]any{
			"version":   change.Version,
			"scopes":    scopes,
			"selection": change.Snapshot,
		},
		Timestamp: s.now().UTC(),
	})
}

func (s *Session) publish(state domain.ViewState) {
	if s.Closed() {
		return
	}
	s.out.Broadcast(context.Background(), &domain.Message{
		Topic:     domain.ViewTopic(state.View),
		Entity:    domain.ViewEntity,
		Action:    domain.ActionState,
		Metadata:  domain.SessionMetadata(s.id, map[string]string{"view": string(state.View)}),
		Data:      state,
		Timestamp: s.now().UTC(),
	})
}
