// Package memory provides an in-memory DocumentStore. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sync"

	"github.com/google/uuid"

	"github.com/earn-network/payout-engine/internal/storage"
)

// Store holds documents per collection, in insertion order.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]storage.Document
}

var _ storage.DocumentStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{collections: make(map[string][]storage.Document)}
}

func (s *Store) Count(ctx context.Context, collection string, filter storage.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Find(ctx context.Context, collection string, filter storage.Filter, opts storage.FindOptions) ([]storage.Document, error) {
	s.mu.RLock()
	matched := s.matchLocked(collection, filter)
	s.mu.RUnlock()

	if opts.SortField != "" {
		sortDocs(matched, opts.SortField, opts.Ascending)
	}
	matched = window(matched, opts.Skip, opts.Limit)

	out := make([]storage.Document, len(matched))
	for i, doc := range matched {
		out[i] = cloneDoc(doc)
		if opts.Lean {
			delete(out[i], "_id")
		}
	}
	return out, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter storage.Filter, lean bool) (storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			out := cloneDoc(doc)
			if lean {
				delete(out, "_id")
			}
			return out, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) FindOneAndUpsert(ctx context.Context, collection string, filter storage.Filter, set storage.Document) (storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for i, doc := range s.collections[collection] {
		if matches(doc, filter) {
			updated := cloneDoc(doc)
			for k, v := range set {
				updated[k] = v
			}
			updated["updatedAt"] = now
			s.collections[collection][i] = updated
			return cloneDoc(updated), nil
		}
	}

	created := storage.Document{"_id": uuid.NewString(), "createdAt": now, "updatedAt": now}
	for k, v := range filter {
		switch bound := v.(type) {
		case storage.Disjunction:
			if len(bound.Alternatives) > 0 {
				created[k] = bound.Alternatives[0]
			}
		case storage.Range:
			// A bound has no concrete value to materialize.
		default:
			created[k] = v
		}
	}
	for k, v := range set {
		created[k] = v
	}
	s.collections[collection] = append(s.collections[collection], created)
	return cloneDoc(created), nil
}

func (s *Store) BulkUpsert(ctx context.Context, collection string, ops []storage.BulkOp) (int64, error) {
	var n int64
	for _, op := range ops {
		if _, err := s.FindOneAndUpsert(ctx, collection, op.Filter, op.Set); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Store) Aggregate(ctx context.Context, collection string, pipeline storage.Pipeline) (storage.AggregateResult, error) {
	if pipeline.Raw != nil {
		return storage.AggregateResult{}, fmt.Errorf("memory store does not execute raw pipelines")
	}

	s.mu.RLock()
	merged := s.matchLocked(collection, pipeline.Match)
	for _, branch := range pipeline.Unions {
		docs := s.matchLocked(branch.Collection, branch.Match)
		if branch.Page.SortField != "" {
			sortDocs(docs, branch.Page.SortField, branch.Page.Ascending)
		}
		docs = window(docs, branch.Page.Skip, branch.Page.Limit)
		for _, doc := range docs {
			tagged := cloneDoc(doc)
			tagged["collectionName"] = branch.GroupKey
			merged = append(merged, tagged)
		}
	}
	s.mu.RUnlock()

	result := storage.AggregateResult{}
	if pipeline.Facet != nil {
		if pipeline.Facet.WithTotal {
			result.Total = int64(len(merged))
			result.HasTotal = true
		}
		if pipeline.Facet.Page.SortField != "" {
			sortDocs(merged, pipeline.Facet.Page.SortField, pipeline.Facet.Page.Ascending)
		}
		merged = window(merged, pipeline.Facet.Page.Skip, pipeline.Facet.Page.Limit)
	}

	result.Data = make([]storage.Document, len(merged))
	for i, doc := range merged {
		result.Data[i] = cloneDoc(doc)
	}
	return result, nil
}

func (s *Store) matchLocked(collection string, filter storage.Filter) []storage.Document {
	var matched []storage.Document
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			matched = append(matched, doc)
		}
	}
	return matched
}

func matches(doc storage.Document, filter storage.Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if d, isDisjunction := want.(storage.Disjunction); isDisjunction {
			if !ok || !matchesAny(got, d) {
				return false
			}
			continue
		}
		if r, isRange := want.(storage.Range); isRange {
			if !ok || !inRange(got, r) {
				return false
			}
			continue
		}
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func matchesAny(got interface{}, d storage.Disjunction) bool {
	for _, alt := range d.Alternatives {
		if looseEqual(got, alt) {
			return true
		}
	}
	return false
}

func inRange(got interface{}, r storage.Range) bool {
	value, ok := asFloat(got)
	if !ok {
		return false
	}
	if r.GTE != nil {
		if min, ok := asFloat(r.GTE); !ok || value < min {
			return false
		}
	}
	if r.LTE != nil {
		if max, ok := asFloat(r.LTE); !ok || value > max {
			return false
		}
	}
	return true
}

// looseEqual compares values with numeric tolerance so filters match
// regardless of whether a number was stored as int, int64 or float64.
func looseEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Equal(bt)
		}
		return false
	}
	return a == b
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortDocs(docs []storage.Document, field string, ascending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		less := compare(docs[i][field], docs[j][field]) < 0
		if ascending {
			return less
		}
		return compare(docs[i][field], docs[j][field]) > 0
	})
}

func compare(a, b interface{}) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func window(docs []storage.Document, skip, limit int64) []storage.Document {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

func cloneDoc(doc storage.Document) storage.Document {
	out := make(storage.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
