package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bizdash/internal/modules/resources/domain"
	"bizdash/internal/platform/gateway"
)

var (
	// ErrMissingParam is returned before any network call when an id or scope value is empty.
	ErrMissingParam = errors.New("missing path parameter")
	// ErrMissingToken is returned before any network call when no bearer token is supplied.
	ErrMissingToken = errors.New("missing auth token")
	// ErrEmptyResponse is wrapped in a *gateway.DecodeError when a 2xx response that
	// should carry an entity has no body.
	ErrEmptyResponse = errors.New("empty response body")
)

// Doer is the transport every service runs on; *gateway.Gateway implements it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// Service is the typed CRUD facade for one REST resource. It does not cache or retry.
type Service[T any] struct {
	endpoint Endpoint
	doer     Doer
	logger   *slog.Logger
}

func NewService[T any](endpoint Endpoint, doer Doer, logger *slog.Logger) *Service[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service[T]{
		endpoint: endpoint,
		doer:     doer,
		logger:   logger.With(slog.String("resource", endpoint.Name)),
	}
}

// Endpoint returns the endpoint the service is bound to.
func (s *Service[T]) Endpoint() Endpoint { return s.endpoint }

// List fetches one page of the collection within scope.
func (s *Service[T]) List(ctx context.Context, token string, scope map[string]string, query domain.PagedQuery) (*domain.Page[T], error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	values, err := s.endpoint.scopeValues(scope)
	if err != nil {
		return nil, err
	}
	path, err := s.endpoint.collectionPath()
	if err != nil {
		return nil, err
	}
	normalized := query.Normalize()
	for key, vals := range normalized.ToURLValues(s.endpoint.FilterAliases) {
		for _, v := range vals {
			values.Add(key, v)
		}
	}

	s.logger.Debug("resource list", slog.Int("page", normalized.Page), slog.Int("size", normalized.Size))
	var page domain.Page[T]
	if err := s.doer.Do(ctx, gateway.Request{Method: http.MethodGet, Path: path, Query: values, Token: token}, &page); err != nil {
		return nil, err
	}
	if err := page.Validate(normalized.Size); err != nil {
		s.logger.Warn("resource list shape mismatch", slog.Any("error", err))
		return nil, &gateway.DecodeError{Err: err}
	}
	return &page, nil
}

// Get fetches a single entity. A 404 surfaces as an error matching gateway.ErrNotFound.
func (s *Service[T]) Get(ctx context.Context, token, id string) (*T, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	path, err := s.endpoint.resourcePath(id)
	if err != nil {
		return nil, err
	}
	return s.single(ctx, gateway.Request{Method: http.MethodGet, Path: path, Token: token})
}

// Create posts body to the collection; scope keys travel as query parameters.
func (s *Service[T]) Create(ctx context.Context, token string, scope map[string]string, body any) (*T, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	values, err := s.endpoint.scopeValues(scope)
	if err != nil {
		return nil, err
	}
	path, err := s.endpoint.collectionPath()
	if err != nil {
		return nil, err
	}
	s.logger.Info("resource create")
	return s.single(ctx, gateway.Request{Method: http.MethodPost, Path: path, Query: values, Token: token, Body: body})
}

func (s *Service[T]) Update(ctx context.Context, token, id string, body any) (*T, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	path, err := s.endpoint.resourcePath(id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("resource update", slog.String("id", strings.TrimSpace(id)))
	return s.single(ctx, gateway.Request{Method: http.MethodPut, Path: path, Token: token, Body: body})
}

func (s *Service[T]) Delete(ctx context.Context, token, id string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	path, err := s.endpoint.resourcePath(id)
	if err != nil {
		return err
	}
	s.logger.Info("resource delete", slog.String("id", strings.TrimSpace(id)))
	return s.doer.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: path, Token: token}, nil)
}

func (s *Service[T]) single(ctx context.Context, req gateway.Request) (*T, error) {
	return doSingle[T](ctx, s.doer, req)
}

// doSingle decodes one entity; an empty or null body is a shape mismatch.
func doSingle[T any](ctx context.Context, doer Doer, req gateway.Request) (*T, error) {
	var out *T
	if err := doer.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &gateway.DecodeError{Err: ErrEmptyResponse}
	}
	return out, nil
}

func requireToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}
	return nil
}
