// Package query builds safe, typed, paginated queries against a document
// collection and executes them through the storage capability.
package query

import "github.com/earn-network/payout-engine/internal/storage"

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Defaults applied when a query leaves its window unset.
const (
	DefaultSortField = "_id"
	DefaultPageSize  = 20
)

// Query is a declarative lookup: a document partial to match plus an optional
// sort/order/page window.
type Query struct {
	Filter     map[string]interface{}
	Sort       string
	Order      Order
	PageNumber int64
	PageSize   int64
}

// NewQuery creates a query matching the given document partial with default
// windowing.
func NewQuery(filter map[string]interface{}) Query {
	return Query{Filter: filter}
}

// sortField returns the effective sort field.
func (q Query) sortField() string {
	if q.Sort == "" {
		return DefaultSortField
	}
	return q.Sort
}

// ascending reports the effective sort direction. Ascending is the default.
func (q Query) ascending() bool {
	return q.Order != Desc
}

// limit returns the effective page size.
func (q Query) limit() int64 {
	if q.PageSize <= 0 {
		return DefaultPageSize
	}
	return q.PageSize
}

// pageNumber returns the effective 1-indexed page number.
func (q Query) pageNumber() int64 {
	if q.PageNumber <= 0 {
		return 1
	}
	return q.PageNumber
}

// skip converts the 1-indexed page number into a document offset.
func (q Query) skip() int64 {
	page := q.pageNumber() - 1
	return page * q.limit()
}

// page returns the storage window for this query.
func (q Query) page() storage.Page {
	return storage.Page{
		Skip:      q.skip(),
		Limit:     q.limit(),
		SortField: q.sortField(),
		Ascending: q.ascending(),
	}
}

// sanitizedFilter strips pagination fields and typecasts the rest.
func (q Query) sanitizedFilter() storage.Filter {
	return Sanitize(q.Filter)
}
