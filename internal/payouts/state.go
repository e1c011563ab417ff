package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/earn-network/payout-engine/internal/query"
	"github.com/earn-network/payout-engine/internal/storage"
)

// StatesCollection persists per-scheduler execution state.
const StatesCollection = "states"

// ExecutionState is the small persisted record a scheduler reads at run start
// and writes back after a run: an explicit input/output state, not instance
// fields surviving across invocations.
type ExecutionState struct {
	Name                string
	TotalNumberPrepared int64
	LastExecutedAt      time.Time
}

// LoadExecutionState reads the state for a named scheduler; absent state
// defaults to zero values.
func LoadExecutionState(ctx context.Context, engine *query.Engine, name string) (ExecutionState, error) {
	doc, err := engine.FindOne(ctx, query.NewQuery(map[string]interface{}{"name": name}), StatesCollection, false)
	if errors.Is(err, storage.ErrNotFound) {
		return ExecutionState{Name: name}, nil
	}
	if err != nil {
		return ExecutionState{}, err
	}

	state := ExecutionState{Name: name}
	switch n := doc["totalNumberPrepared"].(type) {
	case int64:
		state.TotalNumberPrepared = n
	case int:
		state.TotalNumberPrepared = int64(n)
	case float64:
		state.TotalNumberPrepared = int64(n)
	}
	if t, ok := doc["lastExecutedAt"].(time.Time); ok {
		state.LastExecutedAt = t
	}
	return state, nil
}

// SaveExecutionState upserts the state record keyed by scheduler name.
func SaveExecutionState(ctx context.Context, engine *query.Engine, state ExecutionState) error {
	_, err := engine.CreateOrUpdate(ctx,
		query.NewQuery(map[string]interface{}{"name": state.Name}),
		StatesCollection,
		storage.Document{
			"totalNumberPrepared": state.TotalNumberPrepared,
			"lastExecutedAt":      state.LastExecutedAt,
		},
		nil,
	)
	return err
}
