// Command payoutd runs the payout engine: scheduled preparation, broadcast
// and confirmation of reward payouts, plus a read-only HTTP surface.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/earn-network/payout-engine/internal/chain"
	"github.com/earn-network/payout-engine/internal/config"
	"github.com/earn-network/payout-engine/internal/httpapi"
	"github.com/earn-network/payout-engine/internal/metrics"
	"github.com/earn-network/payout-engine/internal/payouts"
	"github.com/earn-network/payout-engine/internal/query"
	"github.com/earn-network/payout-engine/internal/storage"
	"github.com/earn-network/payout-engine/internal/storage/memory"
	mongostore "github.com/earn-network/payout-engine/internal/storage/mongo"
	"github.com/earn-network/payout-engine/internal/system"
	"github.com/earn-network/payout-engine/pkg/logger"
)

// Schedules are staggered inside the minute so preparation output is visible
// to the broadcaster of the same cycle, and broadcasts are visible to the
// confirmer.
const (
	prepareSchedule   = "0,30 * * * * *"
	broadcastSchedule = "15,45 * * * * *"
	confirmSchedule   = "50 * * * * *"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	dryRun := flag.Bool("dry-run", false, "compute and log without persisting or broadcasting")
	once := flag.Bool("once", false, "run one prepare/broadcast/confirm cycle and exit")
	useMemory := flag.Bool("memory", false, "use the in-memory store instead of MongoDB")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.GlobalDryRun = true
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "payoutd")

	if err := run(cfg, log, *once, *useMemory); err != nil {
		log.WithError(err).Error("payoutd exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger, once, useMemory bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, useMemory, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			log.WithError(err).Warn("store close failed")
		}
	}()

	engine := query.NewEngine(store, log.WithField("component", "query"))
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	signer, err := buildSigner(cfg)
	if err != nil {
		return err
	}

	var client *chain.Client
	if len(cfg.Network.Nodes) > 0 {
		client, err = chain.NewClient(chain.ClientConfig{
			Nodes: cfg.Network.Nodes,
		}, log.WithField("component", "chain"))
		if err != nil {
			return fmt.Errorf("create network client: %w", err)
		}
	} else if !cfg.GlobalDryRun {
		return fmt.Errorf("network.nodes must be configured")
	}

	sources := payouts.NewRegistry()
	activitySource := payouts.NewActivitySource(engine, cfg.Assets.Earn)
	boosterSource := payouts.NewBoosterSource(engine, cfg.Assets.Earn, cfg.Booster.MinReferrals, cfg.Booster.Amount)
	sources.Register(activitySource)
	sources.Register(boosterSource)

	manager := system.NewManager(log.WithField("component", "system"))

	for _, source := range []payouts.Source{activitySource, boosterSource} {
		preparer, err := payouts.NewPreparer(payouts.PreparerConfig{
			Engine:         engine,
			Signer:         signer,
			Source:         source,
			BatchSize:      int64(cfg.Payouts.BatchSize),
			DappName:       cfg.DappName,
			GenerationHash: cfg.Network.GenerationHash,
			NetworkType:    cfg.Network.NetworkIdentifier,
			GlobalDryRun:   cfg.GlobalDryRun,
			Metrics:        m,
			Log:            log.WithField("scheduler", "prepare-"+source.Collection()),
		})
		if err != nil {
			return err
		}

		broadcaster, err := payouts.NewBroadcaster(payouts.BroadcasterConfig{
			Engine:       engine,
			Client:       client,
			Source:       source,
			GlobalDryRun: cfg.GlobalDryRun,
			Metrics:      m,
			Log:          log.WithField("scheduler", "broadcast-"+source.Collection()),
		})
		if err != nil {
			return err
		}

		var confirmer *payouts.Confirmer
		if client != nil {
			confirmer, err = payouts.NewConfirmer(payouts.ConfirmerConfig{
				Engine:  engine,
				Client:  client,
				Source:  source,
				Metrics: m,
				Log:     log.WithField("scheduler", "confirm-"+source.Collection()),
			})
			if err != nil {
				return err
			}
		}

		if once {
			if err := runOnce(ctx, preparer, broadcaster, confirmer, int64(cfg.Payouts.BatchSize)); err != nil {
				return err
			}
			continue
		}

		for _, runner := range sourceSchedulers(cfg, source.Collection(), preparer, broadcaster, confirmer, log) {
			manager.Register(runner)
		}
	}

	if once {
		return nil
	}

	manager.Register(httpapi.New(cfg.Server, engine, registry, log.WithField("component", "httpapi")))

	if err := manager.Start(ctx); err != nil {
		return err
	}
	log.Info("payout engine running")

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return manager.Stop(stopCtx)
}

// sourceSchedulers builds the cron runners for one payout source. With
// payouts.enableBatches off, the prepare and broadcast runners are omitted;
// the confirmer stays so payouts broadcast before the switch flipped still
// settle.
func sourceSchedulers(cfg *config.Config, collection string, preparer *payouts.Preparer, broadcaster *payouts.Broadcaster, confirmer *payouts.Confirmer, log *logger.Logger) []*payouts.Runner {
	if log == nil {
		log = logger.NewDefault("payoutd")
	}
	var runners []*payouts.Runner
	if cfg.Payouts.EnableBatches {
		batch := int64(cfg.Payouts.BatchSize)
		runners = append(runners, payouts.NewRunner("prepare-"+collection, prepareSchedule, func(ctx context.Context) error {
			_, err := preparer.Run(ctx, payouts.PrepareOptions{})
			return err
		}, log.WithField("runner", "prepare-"+collection)))
		runners = append(runners, payouts.NewRunner("broadcast-"+collection, broadcastSchedule, func(ctx context.Context) error {
			_, err := broadcaster.Execute(ctx, payouts.BroadcastOptions{MaxCount: batch})
			return err
		}, log.WithField("runner", "broadcast-"+collection)))
	} else {
		log.Infof("payout batching disabled, %s prepare/broadcast not scheduled", collection)
	}
	if confirmer != nil {
		c := confirmer
		runners = append(runners, payouts.NewRunner("confirm-"+collection, confirmSchedule, func(ctx context.Context) error {
			_, err := c.Execute(ctx, payouts.ConfirmOptions{})
			return err
		}, log.WithField("runner", "confirm-"+collection)))
	}
	return runners
}

// runOnce drives a single prepare/broadcast/confirm cycle for one source,
// used for manual and cron-external invocation.
func runOnce(ctx context.Context, preparer *payouts.Preparer, broadcaster *payouts.Broadcaster, confirmer *payouts.Confirmer, batch int64) error {
	if _, err := preparer.Run(ctx, payouts.PrepareOptions{}); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	if _, err := broadcaster.Execute(ctx, payouts.BroadcastOptions{MaxCount: batch}); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if confirmer != nil {
		if _, err := confirmer.Execute(ctx, payouts.ConfirmOptions{}); err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, useMemory bool, log *logger.Logger) (storage.DocumentStore, func(context.Context) error, error) {
	if useMemory {
		log.Info("using in-memory document store")
		return memory.New(), func(context.Context) error { return nil }, nil
	}

	store, disconnect, err := mongostore.Connect(ctx, cfg.Database.URI, cfg.Database.Database)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("database", cfg.Database.Database).Info("connected to mongodb")
	return store, disconnect, nil
}

// buildSigner returns the issuer account signer. Dry runs without a
// configured key fall back to an ephemeral key so preparation can still
// exercise the signing path.
func buildSigner(cfg *config.Config) (chain.Signer, error) {
	key := cfg.Payouts.IssuerPrivateKey
	if key == "" && cfg.GlobalDryRun {
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		key = hex.EncodeToString(seed)
	}
	signer, err := chain.NewAccountSigner(key)
	if err != nil {
		return nil, fmt.Errorf("load issuer key: %w", err)
	}
	return signer, nil
}
