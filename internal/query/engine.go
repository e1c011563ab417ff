package query

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/earn-network/payout-engine/internal/storage"
	"github.com/earn-network/payout-engine/pkg/logger"
)

// Upsertable is a document that knows its own natural identity. ToQuery
// returns the fields that dedupe it; ToDocument returns the full field set
// written on upsert.
type Upsertable interface {
	ToQuery() map[string]interface{}
	ToDocument() storage.Document
}

// Engine executes declarative queries against a document store with
// consistent pagination semantics. Storage errors propagate unmodified to the
// caller; retries, if any, belong to the scheduler layer.
type Engine struct {
	store storage.DocumentStore
	log   *logger.Logger
}

// NewEngine creates an engine over the given store.
func NewEngine(store storage.DocumentStore, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("query")
	}
	return &Engine{store: store, log: log}
}

// Store exposes the underlying document store for callers needing the raw
// capability (the aggregate passthrough).
func (e *Engine) Store() storage.DocumentStore {
	return e.store
}

// Count returns the number of documents matching the query.
func (e *Engine) Count(ctx context.Context, q Query, collection string) (int64, error) {
	return e.store.Count(ctx, collection, q.sanitizedFilter())
}

// Exists runs a lean lookup and reports whether any match exists.
func (e *Engine) Exists(ctx context.Context, q Query, collection string) (bool, error) {
	_, err := e.store.FindOne(ctx, collection, q.sanitizedFilter(), true)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Find returns one page of matching documents together with the collection
// total for the filter.
func (e *Engine) Find(ctx context.Context, q Query, collection string) (PaginatedResult[storage.Document], error) {
	filter := q.sanitizedFilter()

	total, err := e.store.Count(ctx, collection, filter)
	if err != nil {
		return PaginatedResult[storage.Document]{}, err
	}

	page := q.page()
	docs, err := e.store.Find(ctx, collection, filter, storage.FindOptions{
		SortField: page.SortField,
		Ascending: page.Ascending,
		Skip:      page.Skip,
		Limit:     page.Limit,
	})
	if err != nil {
		return PaginatedResult[storage.Document]{}, err
	}

	return e.paginate(q, docs, total), nil
}

// FindWithTotal behaves like Find but runs as a single aggregation pipeline
// producing both page data and the total count in one round trip. Extra match
// filters are merged into the pipeline's match stage.
func (e *Engine) FindWithTotal(ctx context.Context, q Query, collection string, extra ...storage.Filter) (PaginatedResult[storage.Document], error) {
	match := q.sanitizedFilter()
	for _, f := range extra {
		for k, v := range f {
			match[k] = v
		}
	}

	result, err := e.store.Aggregate(ctx, collection, storage.Pipeline{
		Match: match,
		Facet: &storage.Facet{Page: q.page(), WithTotal: true},
	})
	if err != nil {
		return PaginatedResult[storage.Document]{}, err
	}

	return e.paginate(q, result.Data, result.Total), nil
}

// FindOne returns the first matching document or storage.ErrNotFound.
func (e *Engine) FindOne(ctx context.Context, q Query, collection string, lean bool) (storage.Document, error) {
	return e.store.FindOne(ctx, collection, q.sanitizedFilter(), lean)
}

// CreateOrUpdate upserts one document: it matches on the non-pagination
// fields of the query, applies data merged with extraOps as a field-set,
// creates the document if absent and returns the updated document.
func (e *Engine) CreateOrUpdate(ctx context.Context, q Query, collection string, data storage.Document, extraOps storage.Document) (storage.Document, error) {
	set := make(storage.Document, len(data)+len(extraOps))
	for k, v := range data {
		set[k] = v
	}
	for k, v := range extraOps {
		set[k] = v
	}
	return e.store.FindOneAndUpsert(ctx, collection, q.sanitizedFilter(), set)
}

// UpdateBatch bulk-upserts documents, each keyed by its own natural query and
// stamped with a fresh updatedAt. Returns the sum of inserted, modified and
// upserted counts; 0 when the bulk write produced no result.
func (e *Engine) UpdateBatch(ctx context.Context, collection string, documents []Upsertable) (int64, error) {
	if len(documents) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	ops := make([]storage.BulkOp, 0, len(documents))
	for _, doc := range documents {
		set := doc.ToDocument()
		set["updatedAt"] = now
		ops = append(ops, storage.BulkOp{
			Filter: Sanitize(doc.ToQuery()),
			Set:    set,
		})
	}
	return e.store.BulkUpsert(ctx, collection, ops)
}

// Union merges one page per sub-query into the main query's collection, each
// branch independently paginated and tagged by its group key, then applies
// global pagination and a total count via a facet stage. Branches run in
// deterministic group-key order.
func (e *Engine) Union(ctx context.Context, q Query, collection string, unionWith map[string]Query) (PaginatedResult[storage.Document], error) {
	keys := make([]string, 0, len(unionWith))
	for key := range unionWith {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	branches := make([]storage.UnionBranch, 0, len(keys))
	for _, key := range keys {
		sub := unionWith[key]
		branches = append(branches, storage.UnionBranch{
			Collection: key,
			GroupKey:   key,
			Match:      sub.sanitizedFilter(),
			Page:       sub.page(),
		})
	}

	result, err := e.store.Aggregate(ctx, collection, storage.Pipeline{
		Match:  q.sanitizedFilter(),
		Unions: branches,
		Facet:  &storage.Facet{Page: q.page(), WithTotal: true},
	})
	if err != nil {
		return PaginatedResult[storage.Document]{}, err
	}

	return e.paginate(q, result.Data, result.Total), nil
}

// Aggregate passes caller-built pipeline stages straight to the store.
func (e *Engine) Aggregate(ctx context.Context, stages []storage.Document, collection string) ([]storage.Document, error) {
	result, err := e.store.Aggregate(ctx, collection, storage.Pipeline{Raw: stages})
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (e *Engine) paginate(q Query, docs []storage.Document, total int64) PaginatedResult[storage.Document] {
	if docs == nil {
		docs = []storage.Document{}
	}
	return PaginatedResult[storage.Document]{
		Data: docs,
		Pagination: Pagination{
			PageNumber: q.pageNumber(),
			PageSize:   q.limit(),
			Total:      total,
		},
	}
}
