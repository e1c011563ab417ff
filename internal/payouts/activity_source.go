package payouts

import (
	"context"
	"fmt"

	"github.com/earn-network/payout-engine/internal/config"
	"github.com/earn-network/payout-engine/internal/domain/activity"
	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/query"
	"github.com/earn-network/payout-engine/internal/reward"
	"github.com/earn-network/payout-engine/internal/storage"
)

// ActivitySource pays per-activity rewards: processed activities that have
// not been rewarded yet, oldest first, with the elapsed-time reward formula.
type ActivitySource struct {
	engine *query.Engine
	asset  config.Asset
}

var _ Source = (*ActivitySource)(nil)

// NewActivitySource creates the per-activity payout source.
func NewActivitySource(engine *query.Engine, asset config.Asset) *ActivitySource {
	return &ActivitySource{engine: engine, asset: asset}
}

func (s *ActivitySource) Collection() string { return activity.Collection }

func (s *ActivitySource) AssetIdentifier() string { return s.asset.MosaicID }

func (s *ActivitySource) FetchSubjects(ctx context.Context, limit int64) ([]Subject, error) {
	page, err := s.engine.Find(ctx, query.Query{
		Filter: map[string]interface{}{
			"processingState": activity.ProcessingStateProcessed,
			"payoutState":     int(payout.StateNotStarted),
		},
		Sort:       "createdAt",
		Order:      query.Asc,
		PageNumber: 1,
		PageSize:   limit,
	}, activity.Collection)
	if err != nil {
		return nil, err
	}

	subjects := make([]Subject, 0, len(page.Data))
	for _, doc := range page.Data {
		act := activity.FromDocument(doc)
		subjects = append(subjects, Subject{
			Slug:      act.Slug,
			Address:   act.Address,
			CreatedAt: act.CreatedAt,
			Document:  doc,
		})
	}
	return subjects, nil
}

func (s *ActivitySource) FetchSubject(ctx context.Context, p payout.Payout) (Subject, error) {
	doc, err := s.engine.FindOne(ctx,
		query.NewQuery(map[string]interface{}{"slug": p.SubjectSlug}),
		activity.Collection, false)
	if err != nil {
		return Subject{}, fmt.Errorf("fetch activity %s: %w", p.SubjectSlug, err)
	}
	act := activity.FromDocument(doc)
	return Subject{Slug: act.Slug, Address: act.Address, CreatedAt: act.CreatedAt, Document: doc}, nil
}

func (s *ActivitySource) ComputeAmount(subject Subject) int64 {
	act := activity.FromDocument(subject.Document)
	return reward.AssetAmount(act.Telemetry(), s.asset.Divisibility)
}

func (s *ActivitySource) UpdateSubject(ctx context.Context, subject Subject, fields storage.Document) error {
	_, err := s.engine.CreateOrUpdate(ctx,
		query.NewQuery(map[string]interface{}{"slug": subject.Slug}),
		activity.Collection, fields, nil)
	return err
}
