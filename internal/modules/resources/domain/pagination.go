package domain

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PagedQuery encapsulates paging, filtering, and sorting preferences shared by list calls.
// Pages are zero-based, matching the pageNumber the backend echoes back.
type PagedQuery struct {
	Page    int               `json:"page"`
	Size    int               `json:"size"`
	Search  string            `json:"search,omitempty"`
	Sort    string            `json:"sort,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Normalize returns a sanitized copy applying defaults and bounds.
func (q PagedQuery) Normalize() PagedQuery {
	normalized := q
	if normalized.Page < 0 {
		normalized.Page = 0
	}
	if normalized.Size <= 0 {
		normalized.Size = DefaultPageSize
	}
	if normalized.Size > MaxPageSize {
		normalized.Size = MaxPageSize
	}
	normalized.Search = strings.TrimSpace(normalized.Search)
	normalized.Sort = strings.TrimSpace(normalized.Sort)
	normalized.Filters = sanitizeFilters(normalized.Filters)
	return normalized
}

// KeyParts flattens the normalized query into stable cache key segments:
// page, size, then search/sort/filters only when set, filters in key order.
func (q PagedQuery) KeyParts() []string {
	normalized := q.Normalize()
	parts := []string{"page", strconv.Itoa(normalized.Page), "size", strconv.Itoa(normalized.Size)}
	if normalized.Search != "" {
		parts = append(parts, "q", strings.ToLower(normalized.Search))
	}
	if normalized.Sort != "" {
		parts = append(parts, "sort", normalized.Sort)
	}
	keys := make([]string, 0, len(normalized.Filters))
	for key := range normalized.Filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key, normalized.Filters[key])
	}
	return parts
}

// ToURLValues returns normalized query parameters ready for REST calls. aliases maps
// lower-cased filter names onto the backend's parameter names.
func (q PagedQuery) ToURLValues(aliases map[string]string) url.Values {
	normalized := q.Normalize()
	values := url.Values{}
	values.Set("page", strconv.Itoa(normalized.Page))
	values.Set("size", strconv.Itoa(normalized.Size))
	if normalized.Search != "" {
		values.Set("q", normalized.Search)
	}
	if normalized.Sort != "" {
		values.Set("sort", normalized.Sort)
	}
	for key, value := range normalized.Filters {
		if aliased, ok := aliases[key]; ok && strings.TrimSpace(aliased) != "" {
			key = strings.TrimSpace(aliased)
		}
		values.Set(key, value)
	}
	return values
}

// WithFilter returns a copy with one filter set; an empty value removes it.
func (q PagedQuery) WithFilter(key, value string) PagedQuery {
	next := q
	next.Filters = make(map[string]string, len(q.Filters)+1)
	for k, v := range q.Filters {
		next.Filters[k] = v
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if strings.TrimSpace(value) == "" {
		delete(next.Filters, key)
	} else {
		next.Filters[key] = strings.TrimSpace(value)
	}
	return next
}

func sanitizeFilters(filters map[string]string) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	sanitized := make(map[string]string, len(filters))
	for key, value := range filters {
		trimmedKey := strings.TrimSpace(key)
		trimmedValue := strings.TrimSpace(value)
		if trimmedKey == "" || trimmedValue == "" {
			continue
		}
		sanitized[strings.ToLower(trimmedKey)] = trimmedValue
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}

// Page is the backend's paged list envelope.
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	PageNumber    int `json:"pageNumber"`
}

// NewPage builds a page of size pageSize, deriving TotalPages from total.
func NewPage[T any](content []T, total, pageNumber, pageSize int) *Page[T] {
	if content == nil {
		content = []T{}
	}
	return &Page[T]{
		Content:       content,
		TotalElements: total,
		TotalPages:    TotalPages(total, pageSize),
		PageNumber:    pageNumber,
	}
}

// TotalPages is ceil(total/pageSize); zero when either side is non-positive.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

var errPageShape = errors.New("page shape mismatch")

// Validate checks the envelope invariants against the requested page size.
func (p *Page[T]) Validate(pageSize int) error {
	if p == nil || p.Content == nil {
		return fmt.Errorf("%w: missing content", errPageShape)
	}
	if p.TotalElements < 0 || p.TotalPages < 0 || p.PageNumber < 0 {
		return fmt.Errorf("%w: negative totals", errPageShape)
	}
	if pageSize > 0 && len(p.Content) > pageSize {
		return fmt.Errorf("%w: %d items exceed page size %d", errPageShape, len(p.Content), pageSize)
	}
	if len(p.Content) > p.TotalElements {
		return fmt.Errorf("%w: %d items exceed total %d", errPageShape, len(p.Content), p.TotalElements)
	}
	return nil
}

// HasNext reports whether a page follows this one.
func (p *Page[T]) HasNext() bool {
	return p != nil && p.PageNumber+1 < p.TotalPages
}
