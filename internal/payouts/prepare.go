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

// PrepareOptions are the per-run flags of a preparation execution.
type PrepareOptions struct {
	Debug  bool
	Quiet  bool
	DryRun bool
}

// PrepareResult summarizes one preparation run.
type PrepareResult struct {
	Created     int
	NotEligible int
	State       ExecutionState
}

// PreparerConfig wires a Preparer.
type PreparerConfig struct {
	Engine         *query.Engine
	Signer         chain.Signer
	Source         Source
	BatchSize      int64
	DappName       string
	GenerationHash string
	NetworkType    uint8
	GlobalDryRun   bool
	Metrics        *metrics.Metrics
	Log            *logger.Logger
}

// Preparer discovers un-rewarded subjects, computes reward amounts, signs
// transfer transactions and persists Prepared or Not_Eligible payout records.
type Preparer struct {
	cfg PreparerConfig
	log *logger.Logger
}

// NewPreparer creates a preparation driver for one source.
func NewPreparer(cfg PreparerConfig) (*Preparer, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("prepare-" + cfg.Source.Collection())
	}
	return &Preparer{cfg: cfg, log: log}, nil
}

// StateName identifies this preparer's persisted execution state.
func (p *Preparer) StateName() string {
	return "prepare:" + p.cfg.Source.Collection()
}

// Execute runs one preparation pass. Each subject's upsert completes before
// the next subject starts, so an aborted run leaves durable partial progress
// and the next run resumes where eligibility queries lead it. The returned
// state is the caller's to persist after the run.
func (p *Preparer) Execute(ctx context.Context, opts PrepareOptions) (PrepareResult, error) {
	dryRun := p.cfg.GlobalDryRun || opts.DryRun

	state, err := LoadExecutionState(ctx, p.cfg.Engine, p.StateName())
	if err != nil {
		return PrepareResult{}, fmt.Errorf("load execution state: %w", err)
	}

	subjects, err := p.cfg.Source.FetchSubjects(ctx, p.cfg.BatchSize)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("fetch subjects: %w", err)
	}
	if !opts.Quiet {
		p.log.Infof("discovered %d subject(s) in %s", len(subjects), p.cfg.Source.Collection())
	}

	result := PrepareResult{State: state}
	for _, subject := range subjects {
		amount := p.cfg.Source.ComputeAmount(subject)
		if amount <= 0 {
			result.NotEligible++
			if dryRun {
				p.log.Infof("[dry-run] subject %s not eligible", subject.Slug)
				continue
			}
			if err := p.markNotEligible(ctx, subject); err != nil {
				return result, err
			}
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.NotEligible.WithLabelValues(p.cfg.Source.Collection()).Inc()
			}
			continue
		}

		signed, err := p.signTransfer(subject, amount)
		if err != nil {
			return result, err
		}

		if opts.Debug && !opts.Quiet {
			p.log.Debugf("signed transfer %s for subject %s amount %d", signed.Hash, subject.Slug, amount)
		}
		if dryRun {
			p.log.Infof("[dry-run] would prepare payout %s for %s (amount %d)", signed.Hash, subject.Slug, amount)
			continue
		}

		if err := p.markPrepared(ctx, subject, amount, signed); err != nil {
			return result, err
		}
		if err := p.cfg.Source.UpdateSubject(ctx, subject, storage.Document{"payoutState": int(payout.StatePrepared)}); err != nil {
			return result, fmt.Errorf("update subject %s: %w", subject.Slug, err)
		}

		result.Created++
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.Prepared.WithLabelValues(p.cfg.Source.Collection()).Inc()
		}
	}

	result.State.TotalNumberPrepared = state.TotalNumberPrepared + int64(result.Created)
	result.State.LastExecutedAt = time.Now().UTC()

	if !opts.Quiet {
		p.log.Infof("prepared %d payout(s), %d not eligible, %d total so far",
			result.Created, result.NotEligible, result.State.TotalNumberPrepared)
	}
	return result, nil
}

// Run executes one pass and persists the updated execution state. Dry runs
// leave the persisted state untouched.
func (p *Preparer) Run(ctx context.Context, opts PrepareOptions) (PrepareResult, error) {
	result, err := p.Execute(ctx, opts)
	if err != nil {
		return result, err
	}
	if p.cfg.GlobalDryRun || opts.DryRun {
		return result, nil
	}
	if err := SaveExecutionState(ctx, p.cfg.Engine, result.State); err != nil {
		return result, fmt.Errorf("save execution state: %w", err)
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.LastRun.WithLabelValues(p.StateName()).SetToCurrentTime()
	}
	return result, nil
}

func (p *Preparer) markNotEligible(ctx context.Context, subject Subject) error {
	record := payout.Payout{
		SubjectSlug:       subject.Slug,
		SubjectCollection: p.cfg.Source.Collection(),
		UserAddress:       subject.Address,
		State:             payout.StateNotEligible,
	}
	_, err := p.cfg.Engine.CreateOrUpdate(ctx,
		query.NewQuery(record.ToQuery()),
		payout.Collection,
		storage.Document{"payoutState": int(payout.StateNotEligible)},
		nil,
	)
	if err != nil {
		return fmt.Errorf("mark subject %s not eligible: %w", subject.Slug, err)
	}
	return nil
}

func (p *Preparer) signTransfer(subject Subject, amount int64) (chain.SignedTransaction, error) {
	contract := chain.NewEarnContract(
		p.cfg.DappName,
		subject.CreatedAt.UTC().Format("2006-01-02"),
		p.cfg.Source.AssetIdentifier(),
		amount,
	)
	message, err := contract.Message()
	if err != nil {
		return chain.SignedTransaction{}, err
	}

	tx := chain.NewTransferTransaction(
		subject.Address,
		[]chain.Mosaic{{MosaicID: p.cfg.Source.AssetIdentifier(), Amount: amount}},
		message,
		p.cfg.NetworkType,
	)

	signed, err := p.cfg.Signer.Sign(tx, p.cfg.GenerationHash)
	if err != nil {
		return chain.SignedTransaction{}, fmt.Errorf("sign transfer for %s: %w", subject.Slug, err)
	}
	return signed, nil
}

func (p *Preparer) markPrepared(ctx context.Context, subject Subject, amount int64, signed chain.SignedTransaction) error {
	record := payout.Payout{
		SubjectSlug:       subject.Slug,
		SubjectCollection: p.cfg.Source.Collection(),
		UserAddress:       subject.Address,
	}
	_, err := p.cfg.Engine.CreateOrUpdate(ctx,
		query.NewQuery(record.ToQuery()),
		payout.Collection,
		storage.Document{
			"payoutState": int(payout.StatePrepared),
			"payoutAssets": []interface{}{
				storage.Document{"mosaicId": p.cfg.Source.AssetIdentifier(), "amount": amount},
			},
			"signedBytes":     signed.Payload,
			"transactionHash": signed.Hash,
		},
		nil,
	)
	if err != nil {
		return fmt.Errorf("persist prepared payout for %s: %w", subject.Slug, err)
	}
	return nil
}
