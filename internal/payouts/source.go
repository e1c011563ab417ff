// Package payouts implements the payout preparation and broadcast pipeline:
// discovering eligible subjects, computing reward amounts, signing transfer
// transactions and driving their lifecycle out to the network.
package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/storage"
)

// Subject is the pipeline's view of a business entity that can earn a payout.
// Document carries the origin fields a source needs for amount computation.
type Subject struct {
	Slug      string
	Address   string
	CreatedAt time.Time
	Document  storage.Document
}

// Source supplies subject discovery, amount computation and subject mutation
// for one payout trigger. Concrete sources differ chiefly in their
// eligibility predicate and amount formula.
type Source interface {
	// Collection is the subject store name; it becomes the payout's
	// subjectCollection and the dispatch key for polymorphic fetches.
	Collection() string
	// FetchSubjects returns up to limit eligible subjects, oldest first.
	FetchSubjects(ctx context.Context, limit int64) ([]Subject, error)
	// FetchSubject resolves the originating subject of a payout.
	FetchSubject(ctx context.Context, p payout.Payout) (Subject, error)
	// AssetIdentifier is the mosaic the source pays rewards in.
	AssetIdentifier() string
	// ComputeAmount maps a subject to an absolute integer token amount.
	// Amounts at or below zero mean the subject is not eligible.
	ComputeAmount(s Subject) int64
	// UpdateSubject applies the given fields to the subject so it is not
	// rediscovered.
	UpdateSubject(ctx context.Context, s Subject, fields storage.Document) error
}

// Registry resolves sources by subject collection name. Variants register at
// startup; lookups after that are read-only.
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source under its collection name.
func (r *Registry) Register(src Source) {
	r.sources[src.Collection()] = src
}

// Resolve returns the source registered for a collection.
func (r *Registry) Resolve(collection string) (Source, error) {
	src, ok := r.sources[collection]
	if !ok {
		return nil, fmt.Errorf("no source registered for collection %q", collection)
	}
	return src, nil
}
