package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/earn-network/payout-engine/internal/chain"
	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/metrics"
	"github.com/earn-network/payout-engine/internal/query"
	"github.com/earn-network/payout-engine/internal/storage"
	"github.com/earn-network/payout-engine/pkg/logger"
)

// StatusClient resolves the network's view of an announced transaction.
type StatusClient interface {
	TransactionStatus(ctx context.Context, hash string) (chain.TxStatus, error)
}

// ConfirmOptions are the per-run flags of a confirmation execution.
type ConfirmOptions struct {
	MaxCount int64
	Quiet    bool
}

// ConfirmResult summarizes one confirmation run.
type ConfirmResult struct {
	Confirmed int
	Failed    int
}

// ConfirmerConfig wires a Confirmer.
type ConfirmerConfig struct {
	Engine  *query.Engine
	Client  StatusClient
	Source  Source
	Timeout time.Duration
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

// Confirmer watches Broadcast payouts and settles them: Confirmed when the
// network confirms the transaction, Failed when the network rejects it or the
// payout has been waiting longer than the timeout.
type Confirmer struct {
	cfg ConfirmerConfig
	log *logger.Logger
}

// NewConfirmer creates a confirmation watcher for one source.
func NewConfirmer(cfg ConfirmerConfig) (*Confirmer, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("status client is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("confirm-" + cfg.Source.Collection())
	}
	return &Confirmer{cfg: cfg, log: log}, nil
}

// Execute runs one confirmation pass over Broadcast payouts, oldest first.
func (c *Confirmer) Execute(ctx context.Context, opts ConfirmOptions) (ConfirmResult, error) {
	maxCount := opts.MaxCount
	if maxCount <= 0 {
		maxCount = 25
	}

	page, err := c.cfg.Engine.Find(ctx, query.Query{
		Filter: map[string]interface{}{
			"payoutState":       int(payout.StateBroadcast),
			"subjectCollection": c.cfg.Source.Collection(),
		},
		Sort:       "updatedAt",
		Order:      query.Asc,
		PageNumber: 1,
		PageSize:   maxCount,
	}, payout.Collection)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("find broadcast payouts: %w", err)
	}

	var result ConfirmResult
	now := time.Now().UTC()
	for _, doc := range page.Data {
		record := payout.FromDocument(doc)

		status, err := c.cfg.Client.TransactionStatus(ctx, record.TransactionHash)
		if err != nil {
			c.log.WithError(err).Warnf("status check failed for %s", record.TransactionHash)
			continue
		}

		switch status {
		case chain.StatusConfirmed:
			if err := c.settle(ctx, record, payout.StateConfirmed); err != nil {
				return result, err
			}
			result.Confirmed++
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.Confirmed.WithLabelValues(c.cfg.Source.Collection()).Inc()
			}
		case chain.StatusFailed:
			if err := c.settle(ctx, record, payout.StateFailed); err != nil {
				return result, err
			}
			result.Failed++
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.Failed.WithLabelValues(c.cfg.Source.Collection()).Inc()
			}
		default:
			// Still pending; give up only after the timeout.
			if !record.UpdatedAt.IsZero() && now.Sub(record.UpdatedAt) > c.cfg.Timeout {
				c.log.Warnf("payout %s/%s timed out waiting for confirmation",
					record.SubjectCollection, record.SubjectSlug)
				if err := c.settle(ctx, record, payout.StateFailed); err != nil {
					return result, err
				}
				result.Failed++
				if c.cfg.Metrics != nil {
					c.cfg.Metrics.Failed.WithLabelValues(c.cfg.Source.Collection()).Inc()
				}
			}
		}
	}

	if !opts.Quiet && (result.Confirmed > 0 || result.Failed > 0) {
		c.log.Infof("confirmed %d payout(s), failed %d", result.Confirmed, result.Failed)
	}
	return result, nil
}

func (c *Confirmer) settle(ctx context.Context, record payout.Payout, state payout.State) error {
	_, err := c.cfg.Engine.CreateOrUpdate(ctx,
		query.NewQuery(record.ToQuery()),
		payout.Collection,
		storage.Document{"payoutState": int(state)},
		nil,
	)
	if err != nil {
		return fmt.Errorf("settle payout %s/%s: %w", record.SubjectCollection, record.SubjectSlug, err)
	}

	subject, err := c.cfg.Source.FetchSubject(ctx, record)
	if err != nil {
		return fmt.Errorf("fetch subject for payout %s/%s: %w", record.SubjectCollection, record.SubjectSlug, err)
	}
	if err := c.cfg.Source.UpdateSubject(ctx, subject, storage.Document{"payoutState": int(state)}); err != nil {
		return fmt.Errorf("update subject %s: %w", subject.Slug, err)
	}
	return nil
}
