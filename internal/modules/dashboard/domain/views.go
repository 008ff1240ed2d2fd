package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bizdash/internal/modules/query"
	resdomain "bizdash/internal/modules/resources/domain"
	"bizdash/internal/modules/selection"
	"bizdash/internal/platform/gateway"
	"bizdash/internal/shared/normalization"
)

// View names one projection a dashboard screen renders.
type View string

const (
	ViewStores        View = "stores"
	ViewCopypoints    View = "copypoints"
	ViewSales         View = "sales"
	ViewSale          View = "sale"
	ViewPayments      View = "payments"
	ViewConversations View = "conversations"
	ViewMessages      View = "messages"
	ViewAttachments   View = "attachments"
	ViewIntegrations  View = "integrations"
)

var (
	ErrUnknownView = errors.New("unknown view")
	ErrNotPaged    = errors.New("view is not paged")
)

// ViewSpec describes how a view derives its query from the selection.
type ViewSpec struct {
	View View
	// Entity is the resource whose cache keys the view reads; keys start with it.
	Entity string
	// Parent is the selection slot the view is scoped by; empty for top-level views.
	Parent selection.Scope
	Paged  bool
}

var viewSpecs = []ViewSpec{
	{View: ViewStores, Entity: "stores", Paged: true},
	{View: ViewCopypoints, Entity: "copypoints", Parent: selection.ScopeStore, Paged: true},
	{View: ViewSales, Entity: "sales", Parent: selection.ScopeCopypoint, Paged: true},
	{View: ViewSale, Entity: "sales", Parent: selection.ScopeSale},
	{View: ViewPayments, Entity: "payments", Parent: selection.ScopeSale, Paged: true},
	{View: ViewConversations, Entity: "conversations", Parent: selection.ScopeCopypoint, Paged: true},
	{View: ViewMessages, Entity: "messages", Parent: selection.ScopeConversation, Paged: true},
	{View: ViewAttachments, Entity: "attachments", Parent: selection.ScopeConversation, Paged: true},
	{View: ViewIntegrations, Entity: "integrations", Parent: selection.ScopeStore, Paged: true},
}

// Views lists every view in a stable order.
func Views() []View {
	out := make([]View, 0, len(viewSpecs))
	for _, spec := range viewSpecs {
		out = append(out, spec.View)
	}
	return out
}

// SpecFor returns the spec of view.
func SpecFor(view View) (ViewSpec, error) {
	for _, spec := range viewSpecs {
		if spec.View == view {
			return spec, nil
		}
	}
	return ViewSpec{}, fmt.Errorf("%w: %q", ErrUnknownView, view)
}

// ParseView accepts canonical names and the entity aliases known to normalization.
func ParseView(raw string) (View, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == string(ViewSale) || trimmed == "sale-detail" {
		return ViewSale, nil
	}
	candidate := View(normalization.NormalizeEntity(trimmed))
	if _, err := SpecFor(candidate); err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownView, raw)
	}
	return candidate, nil
}

// Enabled reports whether the selection holds the slot the view depends on.
func (s ViewSpec) Enabled(snap selection.Snapshot) bool {
	return s.Parent == "" || snap.ID(s.Parent) != ""
}

// Touched reports whether change can alter the view's key.
func (s ViewSpec) Touched(change selection.Change) bool {
	return s.Parent != "" && change.Touches(s.Parent)
}

// Key builds the view's cache key for owner, e.g.
// ["sales","user","u-1","copypoint","5","page","0","size","20","status","paid"].
// The entity stays the first segment so change events invalidate every owner's
// entries with one prefix; owner keeps one user's data out of another's views.
func (s ViewSpec) Key(owner string, snap selection.Snapshot, q resdomain.PagedQuery) query.Key {
	key := query.NewKey(s.Entity, "user", strings.TrimSpace(owner))
	if s.View == ViewSale {
		return key.Append("id", snap.ID(selection.ScopeSale))
	}
	if s.Parent != "" {
		key = key.Append(string(s.Parent), snap.ID(s.Parent))
	}
	for _, part := range q.KeyParts() {
		key = key.Append(part)
	}
	return key
}

// ViewError is the classified error a renderer shows instead of raising.
type ViewError struct {
	Kind    gateway.Kind `json:"kind"`
	Message string       `json:"message"`
	Status  int          `json:"status,omitempty"`
	// Reauthenticate asks the client to refresh its credentials.
	Reauthenticate bool `json:"reauthenticate,omitempty"`
}

// NewViewError classifies err; nil yields nil.
func NewViewError(err error) *ViewError {
	if err == nil {
		return nil
	}
	kind := gateway.Classify(err)
	return &ViewError{
		Kind:           kind,
		Message:        err.Error(),
		Status:         gateway.StatusOf(err),
		Reauthenticate: kind == gateway.KindAuth,
	}
}

// ViewState is the JSON projection of a view's query state.
type ViewState struct {
	View      View                  `json:"view"`
	Status    query.Status          `json:"status"`
	Enabled   bool                  `json:"enabled"`
	Data      any                   `json:"data,omitempty"`
	Error     *ViewError            `json:"error,omitempty"`
	FetchedAt *time.Time            `json:"fetchedAt,omitempty"`
	Stale     bool                  `json:"stale"`
	Query     *resdomain.PagedQuery `json:"query,omitempty"`
}

// ProjectState converts a typed query state into a ViewState.
func ProjectState[T any](view View, enabled bool, state query.State[T]) ViewState {
	out := ViewState{
		View:    view,
		Status:  state.Status,
		Enabled: enabled,
		Error:   NewViewError(state.Err),
		Stale:   state.Stale,
	}
	if state.HasData {
		out.Data = state.Data
	}
	if !state.FetchedAt.IsZero() {
		at := state.FetchedAt.UTC()
		out.FetchedAt = &at
	}
	return out
}
