// Package selection holds the dashboard's "currently active" entities. Slots form a
// hierarchy: moving a parent to a different entity clears every descendant in the
// same write, so no reader ever sees a copypoint from another store.
package selection

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"bizdash/internal/shared/notify"
)

type Scope string

const (
	ScopeStore        Scope = "store"
	ScopeCopypoint    Scope = "copypoint"
	ScopeSale         Scope = "sale"
	ScopeConversation Scope = "conversation"
	ScopeAttachment   Scope = "attachment"
	ScopeDialogMode   Scope = "dialog.mode"
	ScopeDialogEntity Scope = "dialog.entity"
)

var ErrUnknownScope = errors.New("unknown selection scope")

var knownScopes = []Scope{
	ScopeStore,
	ScopeCopypoint,
	ScopeSale,
	ScopeConversation,
	ScopeAttachment,
	ScopeDialogMode,
	ScopeDialogEntity,
}

// ParseScope accepts a scope name in any case.
func ParseScope(raw string) (Scope, error) {
	candidate := Scope(strings.ToLower(strings.TrimSpace(raw)))
	for _, scope := range knownScopes {
		if scope == candidate {
			return scope, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, raw)
}

// Scopes lists the known scope names in hierarchy order.
func Scopes() []Scope {
	return append([]Scope(nil), knownScopes...)
}

// Ref references a selected entity by id with the few fields screens display.
type Ref struct {
	ID    string            `json:"id"`
	Name  string            `json:"name,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func (r Ref) clone() Ref {
	r.Attrs = maps.Clone(r.Attrs)
	return r
}

func (r Ref) equal(other Ref) bool {
	return r.ID == other.ID && r.Name == other.Name && maps.Equal(r.Attrs, other.Attrs)
}

// Snapshot is an immutable copy of every set slot.
type Snapshot map[Scope]Ref

// Get returns a copy of the slot, or nil when unset.
func (s Snapshot) Get(scope Scope) *Ref {
	ref, ok := s[scope]
	if !ok {
		return nil
	}
	copied := ref.clone()
	return &copied
}

// ID returns the slot's id, or "" when unset.
func (s Snapshot) ID(scope Scope) string {
	return s[scope].ID
}

// Change is delivered to subscribers once per committed write.
type Change struct {
	Version  uint64
	Scopes   []Scope
	Snapshot Snapshot
}

// Touches reports whether the change wrote scope.
func (c Change) Touches(scope Scope) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type subscription struct {
	scopes map[Scope]struct{}
	queue  *notify.Serial[Change]
}

func (s *subscription) wants(change Change) bool {
	if len(s.scopes) == 0 {
		return true
	}
	for _, scope := range change.Scopes {
		if _, ok := s.scopes[scope]; ok {
			return true
		}
	}
	return false
}

type Option func(*Store)

// WithHierarchy declares children of parent; a child may have several parents.
func WithHierarchy(parent Scope, children ...Scope) Option {
	return func(s *Store) {
		s.children[parent] = append(s.children[parent], children...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the single writer of its slots. Subscribers are notified after the
// write commits, outside the lock, in version order.
type Store struct {
	mu       sync.Mutex
	slots    map[Scope]Ref
	children map[Scope][]Scope
	version  uint64
	subs     map[int]*subscription
	nextID   int
	logger   *slog.Logger
}

func New(opts ...Option) *Store {
	s := &Store{
		slots:    make(map[Scope]Ref),
		children: make(map[Scope][]Scope),
		subs:     make(map[int]*subscription),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "selection"))
	return s
}

// Default builds the dashboard hierarchy: store > copypoint > {sale, conversation} > attachment.
func Default(opts ...Option) *Store {
	base := []Option{
		WithHierarchy(ScopeStore, ScopeCopypoint),
		WithHierarchy(ScopeCopypoint, ScopeSale, ScopeConversation),
		WithHierarchy(ScopeSale, ScopeAttachment),
		WithHierarchy(ScopeConversation, ScopeAttachment),
	}
	return New(append(base, opts...)...)
}

// Set replaces the slot (setCurrent). A nil ref resets it.
func (s *Store) Set(scope Scope, ref *Ref) {
	s.Update(func(tx *Tx) { tx.Set(scope, ref) })
}

// Get returns a copy of the slot (getCurrent), or nil when unset.
func (s *Store) Get(scope Scope) *Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.slots[scope]
	if !ok {
		return nil
	}
	copied := ref.clone()
	return &copied
}

func (s *Store) Reset(scope Scope) {
	s.Set(scope, nil)
}

// ResetAll clears every slot in one change.
func (s *Store) ResetAll() {
	s.Update(func(tx *Tx) {
		for _, scope := range tx.scopes() {
			tx.Reset(scope)
		}
	})
}

// OpenDialog writes the dialog mode and entity together.
func (s *Store) OpenDialog(mode string, ref *Ref) {
	s.Update(func(tx *Tx) {
		tx.Set(ScopeDialogMode, &Ref{ID: mode})
		tx.Set(ScopeDialogEntity, ref)
	})
}

func (s *Store) CloseDialog() {
	s.Update(func(tx *Tx) {
		tx.Reset(ScopeDialogMode)
		tx.Reset(ScopeDialogEntity)
	})
}

// Dialog returns the open dialog's mode and entity; mode is "" when closed.
func (s *Store) Dialog() (string, *Ref) {
	snap := s.Snapshot()
	return snap.ID(ScopeDialogMode), snap.Get(ScopeDialogEntity)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(s.slots))
	for scope, ref := range s.slots {
		snap[scope] = ref.clone()
	}
	return snap
}

// Update applies every write in fn atomically: subscribers see a single change
// listing all written scopes, or nothing if no value changed. fn runs under the
// store lock and must only use tx.
func (s *Store) Update(fn func(tx *Tx)) {
	change, targets, ok := s.apply(fn)
	if !ok {
		return
	}
	s.logger.Debug("selection changed", slog.Uint64("version", change.Version), slog.Any("scopes", change.Scopes))
	for _, sub := range targets {
		sub.queue.Push(change)
	}
}

// apply runs fn against a copy of the slots and commits it. A panicking fn
// leaves the store unchanged and unlocked.
func (s *Store) apply(fn func(tx *Tx)) (Change, []*subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{store: s, next: s.snapshotLocked()}
	fn(tx)

	changed := diff(s.slots, tx.next)
	if len(changed) == 0 {
		return Change{}, nil, false
	}
	s.slots = map[Scope]Ref(tx.next)
	s.version++
	change := Change{Version: s.version, Scopes: changed, Snapshot: s.snapshotLocked()}
	targets := make([]*subscription, 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if sub, ok := s.subs[id]; ok && sub.wants(change) {
			targets = append(targets, sub)
		}
	}
	return change, targets, true
}

// Subscribe calls fn after every change touching one of scopes (any scope when none
// are given). fn may write back into the store; that change is delivered after the
// current one returns.
func (s *Store) Subscribe(fn func(Change), scopes ...Scope) (unsubscribe func()) {
	sub := &subscription{queue: notify.NewSerial(fn)}
	if len(scopes) > 0 {
		sub.scopes = make(map[Scope]struct{}, len(scopes))
		for _, scope := range scopes {
			sub.scopes[scope] = struct{}{}
		}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			sub.queue.Close()
		})
	}
}

// descendants lists every scope below parent, depth first, without duplicates.
func (s *Store) descendants(parent Scope) []Scope {
	var (
		out  []Scope
		seen = map[Scope]bool{}
		walk func(Scope)
	)
	walk = func(scope Scope) {
		for _, child := range s.children[scope] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			walk(child)
		}
	}
	walk(parent)
	return out
}

func diff(before map[Scope]Ref, after Snapshot) []Scope {
	var changed []Scope
	for scope, ref := range after {
		prev, ok := before[scope]
		if !ok || !prev.equal(ref) {
			changed = append(changed, scope)
		}
	}
	for scope := range before {
		if _, ok := after[scope]; !ok {
			changed = append(changed, scope)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return scopeRank(changed[i]) < scopeRank(changed[j]) })
	return changed
}

func scopeRank(scope Scope) string {
	for i, known := range knownScopes {
		if known == scope {
			return fmt.Sprintf("0%02d", i)
		}
	}
	return "1" + string(scope)
}
