package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagedQueryNormalize(t *testing.T) {
	q := PagedQuery{Page: -3, Size: 500, Search: "  ink ", Filters: map[string]string{" Status ": " PENDING ", "empty": " "}}
	got := q.Normalize()

	assert.Equal(t, 0, got.Page)
	assert.Equal(t, MaxPageSize, got.Size)
	assert.Equal(t, "ink", got.Search)
	assert.Equal(t, map[string]string{"status": "PENDING"}, got.Filters)

	assert.Equal(t, DefaultPageSize, PagedQuery{}.Normalize().Size)
	assert.Nil(t, PagedQuery{Filters: map[string]string{"a": ""}}.Normalize().Filters)
}

func TestPagedQueryKeyPartsAreStable(t *testing.T) {
	a := PagedQuery{Page: 1, Filters: map[string]string{"status": "PAID", "channel": "wa"}}
	b := PagedQuery{Page: 1, Size: DefaultPageSize, Filters: map[string]string{"channel": "wa", "STATUS": "PAID"}}

	assert.Equal(t, a.KeyParts(), b.KeyParts())
	assert.Equal(t, []string{"page", "1", "size", "20", "channel", "wa", "status", "PAID"}, a.KeyParts())
	assert.NotEqual(t, a.KeyParts(), PagedQuery{Page: 2}.KeyParts())
}

func TestPagedQueryToURLValuesAppliesAliases(t *testing.T) {
	q := PagedQuery{Page: 2, Size: 10, Search: "card", Sort: "createdAt,desc", Filters: map[string]string{"status": "PENDING"}}
	values := q.ToURLValues(map[string]string{"status": "saleStatus"})

	assert.Equal(t, "2", values.Get("page"))
	assert.Equal(t, "10", values.Get("size"))
	assert.Equal(t, "card", values.Get("q"))
	assert.Equal(t, "createdAt,desc", values.Get("sort"))
	assert.Equal(t, "PENDING", values.Get("saleStatus"))
	assert.Empty(t, values.Get("status"))
}

func TestPagedQueryWithFilterCopies(t *testing.T) {
	base := PagedQuery{Filters: map[string]string{"status": "PAID"}}
	next := base.WithFilter("Status", "PENDING")

	assert.Equal(t, "PAID", base.Filters["status"])
	assert.Equal(t, "PENDING", next.Filters["status"])
	assert.NotContains(t, next.WithFilter("status", "").Filters, "status")
}

func TestPageValidate(t *testing.T) {
	ok := NewPage([]int{1, 2, 3}, 23, 0, 10)
	require.NoError(t, ok.Validate(10))
	assert.Equal(t, 3, ok.TotalPages)
	assert.True(t, ok.HasNext())

	assert.Error(t, ok.Validate(2), "content longer than the requested page")
	assert.Error(t, (&Page[int]{}).Validate(10), "missing content")
	assert.Error(t, (&Page[int]{Content: []int{}, TotalElements: -1}).Validate(10))
	assert.Error(t, (&Page[int]{Content: []int{1, 2}, TotalElements: 1}).Validate(10))

	last := NewPage([]int{1}, 21, 2, 10)
	assert.False(t, last.HasNext())
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 20))
	assert.Equal(t, 1, TotalPages(20, 20))
	assert.Equal(t, 2, TotalPages(21, 20))
	assert.Equal(t, 0, TotalPages(5, 0))
}

func TestSaleBalance(t *testing.T) {
	assert.InDelta(t, 12.5, Sale{Total: 40, Paid: 27.5}.Balance(), 1e-9)
}
