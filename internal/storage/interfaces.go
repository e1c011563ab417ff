package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindOne when no document matches.
var ErrNotFound = errors.New("document not found")

// FindOptions control ordering and windowing of a Find call.
type FindOptions struct {
	SortField string
	Ascending bool
	Skip      int64
	Limit     int64
	// Lean strips backend bookkeeping fields from the result; used by
	// existence probes that only care whether a match exists.
	Lean bool
}

// Page is the skip/limit/sort window applied inside a facet or union branch.
type Page struct {
	Skip      int64
	Limit     int64
	SortField string
	Ascending bool
}

// Facet produces page data and, optionally, a total count in one round trip.
type Facet struct {
	Page      Page
	WithTotal bool
}

// UnionBranch appends documents from another collection to a pipeline. Each
// branch is independently matched and paginated; its documents are tagged
// with GroupKey under the collectionName field.
type UnionBranch struct {
	Collection string
	GroupKey   string
	Match      Filter
	Page       Page
}

// Pipeline is the declarative aggregation shape the engine emits:
// match -> union branches -> facet. Raw carries caller-built stages for the
// aggregate passthrough; when Raw is set the typed fields are ignored.
type Pipeline struct {
	Match  Filter
	Unions []UnionBranch
	Facet  *Facet
	Raw    []Document
}

// AggregateResult carries facet output. Total is only meaningful when the
// pipeline requested a count facet.
type AggregateResult struct {
	Data     []Document
	Total    int64
	HasTotal bool
}

// BulkOp is one upsert inside a bulk write: match Filter, set Document.
type BulkOp struct {
	Filter Filter
	Set    Document
}

// DocumentStore is the persistence capability consumed by the query engine.
// Implementations must treat Disjunction filter values as any-of matches.
// Storage errors propagate unmodified; no retry happens at this layer.
type DocumentStore interface {
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error)
	FindOne(ctx context.Context, collection string, filter Filter, lean bool) (Document, error)
	// FindOneAndUpsert matches on filter, applies set as a field-set, creates
	// the document if absent and returns the updated document.
	FindOneAndUpsert(ctx context.Context, collection string, filter Filter, set Document) (Document, error)
	// BulkUpsert executes ops unordered and returns the sum of inserted,
	// modified and upserted counts.
	BulkUpsert(ctx context.Context, collection string, ops []BulkOp) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline Pipeline) (AggregateResult, error)
}
