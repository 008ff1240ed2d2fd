package usecase

import (
	"context"
	"sync"

	"bizdash/internal/modules/dashboard/domain"
	"bizdash/internal/modules/query"
	resdomain "bizdash/internal/modules/resources/domain"
	resinfra "bizdash/internal/modules/resources/infrastructure"
	"bizdash/internal/modules/selection"
)

// fetcher loads a view's data for one selection snapshot and paging query.
type fetcher[T any] func(ctx context.Context, token string, snap selection.Snapshot, q resdomain.PagedQuery) (T, error)

// binding is a view's observer with its type erased.
type binding interface {
	spec() domain.ViewSpec
	// rebind points the observer at the descriptor for snap. A different parent id
	// sends the view back to its first page.
	rebind(snap selection.Snapshot)
	setQuery(snap selection.Snapshot, q resdomain.PagedQuery)
	state() domain.ViewState
	warmer() query.Warmer
	// tracks reports whether the view is enabled and reads a key under one of prefixes.
	tracks(prefixes []query.Key) bool
	refetch()
	close()
}

type viewBinding[T any] struct {
	session  *Session
	viewSpec domain.ViewSpec
	fetch    fetcher[T]
	observer *query.Observer[T]

	mu       sync.Mutex
	query    resdomain.PagedQuery
	parentID string
	unsub    func()
}

func bindView[T any](s *Session, view domain.View, snap selection.Snapshot, fetch fetcher[T]) *viewBinding[T] {
	spec, err := domain.SpecFor(view)
	if err != nil {
		panic(err)
	}
	b := &viewBinding[T]{
		session:  s,
		viewSpec: spec,
		fetch:    fetch,
		query:    resdomain.PagedQuery{}.Normalize(),
	}
	if spec.Parent != "" {
		b.parentID = snap.ID(spec.Parent)
	}
	b.observer = query.NewObserver(s.client, b.describe(snap, b.query))
	b.unsub = b.observer.Subscribe(func(st query.State[T]) {
		s.publish(b.project(st))
	})
	return b
}

func (b *viewBinding[T]) spec() domain.ViewSpec { return b.viewSpec }

func (b *viewBinding[T]) describe(snap selection.Snapshot, q resdomain.PagedQuery) query.Descriptor[T] {
	fetch := b.fetch
	session := b.session
	return query.Describe(b.viewSpec.Key(session.Owner(), snap, q), func(ctx context.Context) (T, error) {
		return fetch(ctx, session.Token(), snap, q)
	}).When(b.viewSpec.Enabled(snap))
}

func (b *viewBinding[T]) rebind(snap selection.Snapshot) {
	b.mu.Lock()
	if b.viewSpec.Parent != "" {
		if id := snap.ID(b.viewSpec.Parent); id != b.parentID {
			b.parentID = id
			b.query.Page = 0
		}
	}
	q := b.query
	b.mu.Unlock()

	b.observer.SetDescriptor(b.describe(snap, q))
}

func (b *viewBinding[T]) setQuery(snap selection.Snapshot, q resdomain.PagedQuery) {
	q = q.Normalize()
	b.mu.Lock()
	b.query = q
	b.mu.Unlock()

	b.observer.SetDescriptor(b.describe(snap, q))
}

func (b *viewBinding[T]) state() domain.ViewState {
	return b.project(b.observer.State())
}

func (b *viewBinding[T]) project(st query.State[T]) domain.ViewState {
	out := domain.ProjectState(b.viewSpec.View, b.observer.Descriptor().Enabled, st)
	if b.viewSpec.Paged {
		b.mu.Lock()
		q := b.query
		b.mu.Unlock()
		out.Query = &q
	}
	return out
}

func (b *viewBinding[T]) warmer() query.Warmer {
	return b.observer.Descriptor()
}

func (b *viewBinding[T]) tracks(prefixes []query.Key) bool {
	desc := b.observer.Descriptor()
	if !desc.Enabled {
		return false
	}
	for _, prefix := range prefixes {
		if desc.Key.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

func (b *viewBinding[T]) refetch() {
	b.observer.Refetch()
}

func (b *viewBinding[T]) close() {
	b.unsub()
	b.observer.Close()
}

// pageFetcher lists svc scoped by the view's parent slot.
func pageFetcher[T any](svc *resinfra.Service[T], parent selection.Scope) fetcher[*resdomain.Page[T]] {
	return func(ctx context.Context, token string, snap selection.Snapshot, q resdomain.PagedQuery) (*resdomain.Page[T], error) {
		scope := map[string]string{}
		if parent != "" {
			for _, key := range svc.Endpoint().Scope {
				scope[key] = snap.ID(parent)
			}
		}
		return svc.List(ctx, token, scope, q)
	}
}

// bindViews creates one binding per view.
func bindViews(s *Session, services *resinfra.Services, snap selection.Snapshot) map[domain.View]binding {
	saleDetail := func(ctx context.Context, token string, snap selection.Snapshot, _ resdomain.PagedQuery) (*resdomain.Sale, error) {
		return services.Sales.Get(ctx, token, snap.ID(selection.ScopeSale))
	}
	return map[domain.View]binding{
		domain.ViewStores:        bindView(s, domain.ViewStores, snap, pageFetcher(services.Stores, "")),
		domain.ViewCopypoints:    bindView(s, domain.ViewCopypoints, snap, pageFetcher(services.Copypoints, selection.ScopeStore)),
		domain.ViewSales:         bindView(s, domain.ViewSales, snap, pageFetcher(services.Sales.Service, selection.ScopeCopypoint)),
		domain.ViewSale:          bindView(s, domain.ViewSale, snap, saleDetail),
		domain.ViewPayments:      bindView(s, domain.ViewPayments, snap, pageFetcher(services.Payments, selection.ScopeSale)),
		domain.ViewConversations: bindView(s, domain.ViewConversations, snap, pageFetcher(services.Conversations, selection.ScopeCopypoint)),
		domain.ViewMessages:      bindView(s, domain.ViewMessages, snap, pageFetcher(services.Messages.Service, selection.ScopeConversation)),
		domain.ViewAttachments:   bindView(s, domain.ViewAttachments, snap, pageFetcher(services.Attachments, selection.ScopeConversation)),
		domain.ViewIntegrations:  bindView(s, domain.ViewIntegrations, snap, pageFetcher(services.Integrations, selection.ScopeStore)),
	}
}
