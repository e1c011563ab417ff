package payouts

import (
	"context"
	"fmt"

	"github.com/earn-network/payout-engine/internal/chain"
	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/metrics"
	"github.com/earn-network/payout-engine/internal/query"
	"github.com/earn-network/payout-engine/internal/storage"
	"github.com/earn-network/payout-engine/pkg/logger"
)

// Announcer is the network-submission capability the broadcaster delegates
// to: announce everything in parallel, wait for all, with built-in node
// failover behind it.
type Announcer interface {
	DelegateAll(ctx context.Context, txs []chain.SignedTransaction) error
}

// BroadcastOptions are the per-run flags of a broadcast execution.
type BroadcastOptions struct {
	MaxCount int64
	Debug    bool
	Quiet    bool
	DryRun   bool
}

// BroadcastResult summarizes one broadcast run.
type BroadcastResult struct {
	Announced int
}

// BroadcasterConfig wires a Broadcaster.
type BroadcasterConfig struct {
	Engine       *query.Engine
	Client       Announcer
	Source       Source
	GlobalDryRun bool
	Metrics      *metrics.Metrics
	Log          *logger.Logger
}

// Broadcaster discovers Prepared payouts for one subject collection,
// reconstructs their signed transactions from stored bytes and submits them
// to the network as one batch.
type Broadcaster struct {
	cfg BroadcasterConfig
	log *logger.Logger
}

// NewBroadcaster creates a broadcast driver for one source.
func NewBroadcaster(cfg BroadcasterConfig) (*Broadcaster, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("broadcast-" + cfg.Source.Collection())
	}
	return &Broadcaster{cfg: cfg, log: log}, nil
}

// Execute runs one broadcast pass. A deserialization failure fails the whole
// batch before anything reaches the network, and a batch-wide submission
// failure aborts the per-payout update loop so no payout is ever marked
// Broadcast without a successful submission.
func (b *Broadcaster) Execute(ctx context.Context, opts BroadcastOptions) (BroadcastResult, error) {
	dryRun := b.cfg.GlobalDryRun || opts.DryRun
	maxCount := opts.MaxCount
	if maxCount <= 0 {
		maxCount = 10
	}

	page, err := b.cfg.Engine.Find(ctx, query.Query{
		Filter: map[string]interface{}{
			"payoutState":       int(payout.StatePrepared),
			"subjectCollection": b.cfg.Source.Collection(),
		},
		Sort:       "createdAt",
		Order:      query.Asc,
		PageNumber: 1,
		PageSize:   maxCount,
	}, payout.Collection)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("find prepared payouts: %w", err)
	}
	if len(page.Data) == 0 {
		if !opts.Quiet {
			b.log.Infof("no prepared payouts for %s", b.cfg.Source.Collection())
		}
		return BroadcastResult{}, nil
	}

	payouts := make([]payout.Payout, 0, len(page.Data))
	signed := make([]chain.SignedTransaction, 0, len(page.Data))
	for _, doc := range page.Data {
		record := payout.FromDocument(doc)

		// Non-embedded deserialization of the stored payload; corrupt bytes
		// fail the batch here.
		_, tx, err := chain.Deserialize(record.SignedBytes)
		if err != nil {
			return BroadcastResult{}, fmt.Errorf("reconstruct transaction for payout %s/%s: %w",
				record.SubjectCollection, record.SubjectSlug, err)
		}
		if record.TransactionHash != "" && record.TransactionHash != tx.Hash {
			return BroadcastResult{}, fmt.Errorf("payout %s/%s: stored hash %s does not match payload hash %s",
				record.SubjectCollection, record.SubjectSlug, record.TransactionHash, tx.Hash)
		}

		payouts = append(payouts, record)
		signed = append(signed, tx)

		if opts.Debug && !opts.Quiet {
			b.log.Debugf("reconstructed transaction %s for %s", tx.Hash, record.SubjectSlug)
		}
	}

	if dryRun {
		for i, tx := range signed {
			b.log.Infof("[dry-run] would announce %s for %s", tx.Hash, payouts[i].SubjectSlug)
		}
		return BroadcastResult{}, nil
	}

	if err := b.cfg.Client.DelegateAll(ctx, signed); err != nil {
		return BroadcastResult{}, fmt.Errorf("announce batch: %w", err)
	}

	for _, record := range payouts {
		if err := b.markBroadcast(ctx, record); err != nil {
			return BroadcastResult{}, err
		}
		subject, err := b.cfg.Source.FetchSubject(ctx, record)
		if err != nil {
			return BroadcastResult{}, fmt.Errorf("fetch subject for payout %s/%s: %w",
				record.SubjectCollection, record.SubjectSlug, err)
		}
		if err := b.cfg.Source.UpdateSubject(ctx, subject, storage.Document{"payoutState": int(payout.StateBroadcast)}); err != nil {
			return BroadcastResult{}, fmt.Errorf("update subject %s: %w", subject.Slug, err)
		}
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.Broadcast.WithLabelValues(b.cfg.Source.Collection()).Inc()
		}
	}

	if !opts.Quiet {
		b.log.Infof("broadcast %d payout(s) for %s", len(payouts), b.cfg.Source.Collection())
	}
	return BroadcastResult{Announced: len(payouts)}, nil
}

// markBroadcast transitions the payout to Broadcast and drops the signed
// payload: once announced, retaining a replayable signed transaction serves
// no purpose.
func (b *Broadcaster) markBroadcast(ctx context.Context, record payout.Payout) error {
	_, err := b.cfg.Engine.CreateOrUpdate(ctx,
		query.NewQuery(record.ToQuery()),
		payout.Collection,
		storage.Document{
			"payoutState": int(payout.StateBroadcast),
			"signedBytes": "",
		},
		nil,
	)
	if err != nil {
		return fmt.Errorf("mark payout %s/%s broadcast: %w", record.SubjectCollection, record.SubjectSlug, err)
	}
	return nil
}
