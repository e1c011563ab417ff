package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earn-network/payout-engine/internal/chain"
	"github.com/earn-network/payout-engine/internal/domain/activity"
	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/query"
)

// fakeStatusClient maps transaction hashes to fixed statuses.
type fakeStatusClient struct {
	statuses map[string]chain.TxStatus
	err      error
}

func (f *fakeStatusClient) TransactionStatus(ctx context.Context, hash string) (chain.TxStatus, error) {
	if f.err != nil {
		return chain.StatusUnknown, f.err
	}
	if status, ok := f.statuses[hash]; ok {
		return status, nil
	}
	return chain.StatusUnknown, nil
}

func newTestConfirmer(t *testing.T, engine *query.Engine, client StatusClient, timeout time.Duration) *Confirmer {
	t.Helper()
	confirmer, err := NewConfirmer(ConfirmerConfig{
		Engine:  engine,
		Client:  client,
		Source:  NewActivitySource(engine, testAsset),
		Timeout: timeout,
	})
	if err != nil {
		t.Fatalf("new confirmer: %v", err)
	}
	return confirmer
}

// broadcastActivity drives one activity through prepare and broadcast,
// returning its payout record in Broadcast state.
func broadcastActivity(t *testing.T, engine *query.Engine, slug string) payout.Payout {
	t.Helper()
	prepareActivities(t, engine, slug)
	broadcaster := newTestBroadcaster(t, engine, &fakeAnnouncer{}, false)
	if _, err := broadcaster.Execute(context.Background(), BroadcastOptions{Quiet: true}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	return findPayout(t, engine, slug)
}

func TestConfirmSettlesConfirmedPayout(t *testing.T) {
	engine := newPipelineEngine(t)
	record := broadcastActivity(t, engine, "act-1")

	client := &fakeStatusClient{statuses: map[string]chain.TxStatus{
		record.TransactionHash: chain.StatusConfirmed,
	}}
	confirmer := newTestConfirmer(t, engine, client, time.Hour)

	result, err := confirmer.Execute(context.Background(), ConfirmOptions{Quiet: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Confirmed != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 1 confirmed", result)
	}

	if got := findPayout(t, engine, "act-1").State; got != payout.StateConfirmed {
		t.Fatalf("payout state = %s, want Confirmed", got)
	}

	doc, err := engine.FindOne(context.Background(),
		query.NewQuery(map[string]interface{}{"slug": "act-1"}), activity.Collection, false)
	if err != nil {
		t.Fatalf("find activity: %v", err)
	}
	if got := activity.FromDocument(doc).PayoutState; got != payout.StateConfirmed {
		t.Fatalf("activity payoutState = %s, want Confirmed", got)
	}
}

func TestConfirmSettlesRejectedPayout(t *testing.T) {
	engine := newPipelineEngine(t)
	record := broadcastActivity(t, engine, "act-1")

	client := &fakeStatusClient{statuses: map[string]chain.TxStatus{
		record.TransactionHash: chain.StatusFailed,
	}}
	confirmer := newTestConfirmer(t, engine, client, time.Hour)

	result, err := confirmer.Execute(context.Background(), ConfirmOptions{Quiet: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}
	if got := findPayout(t, engine, "act-1").State; got != payout.StateFailed {
		t.Fatalf("payout state = %s, want Failed", got)
	}
}

func TestConfirmLeavesPendingPayoutAlone(t *testing.T) {
	engine := newPipelineEngine(t)
	record := broadcastActivity(t, engine, "act-1")

	client := &fakeStatusClient{statuses: map[string]chain.TxStatus{
		record.TransactionHash: chain.StatusUnconfirmed,
	}}
	confirmer := newTestConfirmer(t, engine, client, time.Hour)

	result, err := confirmer.Execute(context.Background(), ConfirmOptions{Quiet: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Confirmed != 0 || result.Failed != 0 {
		t.Fatalf("pending payout settled: %+v", result)
	}
	if got := findPayout(t, engine, "act-1").State; got != payout.StateBroadcast {
		t.Fatalf("payout state = %s, want Broadcast", got)
	}
}

func TestConfirmTimesOutStalePayout(t *testing.T) {
	engine := newPipelineEngine(t)
	record := broadcastActivity(t, engine, "act-1")

	client := &fakeStatusClient{statuses: map[string]chain.TxStatus{
		record.TransactionHash: chain.StatusUnconfirmed,
	}}
	// Any wall-clock gap since the broadcast exceeds a nanosecond timeout.
	confirmer := newTestConfirmer(t, engine, client, time.Nanosecond)

	result, err := confirmer.Execute(context.Background(), ConfirmOptions{Quiet: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 timed-out failure", result)
	}
	if got := findPayout(t, engine, "act-1").State; got != payout.StateFailed {
		t.Fatalf("payout state = %s, want Failed", got)
	}
}

func TestConfirmSkipsOnStatusError(t *testing.T) {
	engine := newPipelineEngine(t)
	broadcastActivity(t, engine, "act-1")

	client := &fakeStatusClient{err: errors.New("node unreachable")}
	confirmer := newTestConfirmer(t, engine, client, time.Hour)

	result, err := confirmer.Execute(context.Background(), ConfirmOptions{Quiet: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Confirmed != 0 || result.Failed != 0 {
		t.Fatalf("unreachable node settled payouts: %+v", result)
	}
	if got := findPayout(t, engine, "act-1").State; got != payout.StateBroadcast {
		t.Fatalf("payout state = %s, want Broadcast", got)
	}
}
