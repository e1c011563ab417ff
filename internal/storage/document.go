// Package storage defines the document-store capability the query engine
// executes against. Backends translate the declarative filter and pipeline
// shapes defined here into their native query language.
package storage

// Document is a schemaless record as stored in a collection.
type Document map[string]interface{}

// Filter matches documents field by field. A plain value matches by equality;
// a Disjunction value matches when any of its alternatives is equal to the
// stored value.
type Filter map[string]interface{}

// Disjunction is an explicit any-of match. The query sanitizer emits it for
// numeric-looking strings (matching both the numeric and the string form of
// legacy data) and for array filters.
type Disjunction struct {
	Alternatives []interface{}
}

// Range matches when the stored value falls inside its bounds. A nil bound is
// open. Bounds compare numerically, so threshold predicates can live in the
// discovery filter instead of being re-checked per document.
type Range struct {
	GTE interface{}
	LTE interface{}
}

// Clone returns a shallow copy of the filter.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
