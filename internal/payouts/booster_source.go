package payouts

import (
	"context"
	"fmt"
	"math"

	"github.com/earn-network/payout-engine/internal/config"
	"github.com/earn-network/payout-engine/internal/domain/account"
	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/query"
	"github.com/earn-network/payout-engine/internal/storage"
)

// BoosterSource pays referral/boost rewards: accounts that crossed the
// referral threshold get a flat reward rather than the elapsed-time formula.
type BoosterSource struct {
	engine       *query.Engine
	asset        config.Asset
	minReferrals int64
	amount       int64
}

var _ Source = (*BoosterSource)(nil)

// NewBoosterSource creates the referral booster payout source. amount is in
// whole tokens; it is scaled by the asset divisibility when computed.
func NewBoosterSource(engine *query.Engine, asset config.Asset, minReferrals int, amount int64) *BoosterSource {
	return &BoosterSource{
		engine:       engine,
		asset:        asset,
		minReferrals: int64(minReferrals),
		amount:       amount,
	}
}

func (s *BoosterSource) Collection() string { return account.Collection }

func (s *BoosterSource) AssetIdentifier() string { return s.asset.MosaicID }

// FetchSubjects discovers accounts that are both unpaid and already over the
// referral threshold. Filtering the threshold here matters: below-threshold
// accounts keep payoutState Not_Started, so matching on state alone would let
// the oldest of them occupy every batch forever.
func (s *BoosterSource) FetchSubjects(ctx context.Context, limit int64) ([]Subject, error) {
	page, err := s.engine.Find(ctx, query.Query{
		Filter: map[string]interface{}{
			"payoutState":   int(payout.StateNotStarted),
			"referralCount": storage.Range{GTE: s.minReferrals},
		},
		Sort:       "createdAt",
		Order:      query.Asc,
		PageNumber: 1,
		PageSize:   limit,
	}, account.Collection)
	if err != nil {
		return nil, err
	}

	subjects := make([]Subject, 0, len(page.Data))
	for _, doc := range page.Data {
		acct := account.FromDocument(doc)
		subjects = append(subjects, Subject{
			Slug:      acct.Slug,
			Address:   acct.Address,
			CreatedAt: acct.CreatedAt,
			Document:  doc,
		})
	}
	return subjects, nil
}

func (s *BoosterSource) FetchSubject(ctx context.Context, p payout.Payout) (Subject, error) {
	doc, err := s.engine.FindOne(ctx,
		query.NewQuery(map[string]interface{}{"address": p.UserAddress}),
		account.Collection, false)
	if err != nil {
		return Subject{}, fmt.Errorf("fetch account %s: %w", p.UserAddress, err)
	}
	acct := account.FromDocument(doc)
	return Subject{Slug: acct.Slug, Address: acct.Address, CreatedAt: acct.CreatedAt, Document: doc}, nil
}

// ComputeAmount gates on the referral threshold and otherwise pays the flat
// configured reward at the asset's precision.
func (s *BoosterSource) ComputeAmount(subject Subject) int64 {
	acct := account.FromDocument(subject.Document)
	if acct.ReferralCount < s.minReferrals {
		return 0
	}
	return s.amount * int64(math.Pow(10, float64(s.asset.Divisibility)))
}

func (s *BoosterSource) UpdateSubject(ctx context.Context, subject Subject, fields storage.Document) error {
	_, err := s.engine.CreateOrUpdate(ctx,
		query.NewQuery(map[string]interface{}{"address": subject.Address}),
		account.Collection, fields, nil)
	return err
}
