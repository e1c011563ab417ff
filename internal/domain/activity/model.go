// Package activity defines the activity subject: one recorded workout that
// can earn a payout.
package activity

import (
	"time"

	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/reward"
	"github.com/earn-network/payout-engine/internal/storage"
)

// Collection is the document collection activities persist in.
const Collection = "activities"

// Processing states an activity moves through before it is payable.
const (
	ProcessingStateProcessed = "Processed"
)

// Activity is a processed workout owned by the activities module. The payout
// pipeline only reads it and conditionally updates its payoutState field.
type Activity struct {
	Slug            string
	Address         string
	Sport           string
	Calories        float64
	Distance        float64
	Elevation       float64
	ElapsedTime     float64
	Kilojoules      float64
	ProcessingState string
	PayoutState     payout.State
	CreatedAt       time.Time
}

// Telemetry returns the reward-computation input for this activity.
func (a Activity) Telemetry() reward.ActivityData {
	return reward.ActivityData{
		Calories:    a.Calories,
		Distance:    a.Distance,
		Elevation:   a.Elevation,
		ElapsedTime: a.ElapsedTime,
		Kilojoules:  a.Kilojoules,
		Sport:       a.Sport,
	}
}

// ToQuery projects the activity's natural key.
func (a Activity) ToQuery() map[string]interface{} {
	return map[string]interface{}{"slug": a.Slug}
}

// ToDocument returns the full persisted field set.
func (a Activity) ToDocument() storage.Document {
	return storage.Document{
		"slug":            a.Slug,
		"address":         a.Address,
		"sport":           a.Sport,
		"calories":        a.Calories,
		"distance":        a.Distance,
		"elevation":       a.Elevation,
		"elapsedTime":     a.ElapsedTime,
		"kilojoules":      a.Kilojoules,
		"processingState": a.ProcessingState,
		"payoutState":     int(a.PayoutState),
	}
}

// FromDocument rebuilds an activity from its stored form.
func FromDocument(doc storage.Document) Activity {
	a := Activity{
		Slug:            asString(doc["slug"]),
		Address:         asString(doc["address"]),
		Sport:           asString(doc["sport"]),
		Calories:        asFloat(doc["calories"]),
		Distance:        asFloat(doc["distance"]),
		Elevation:       asFloat(doc["elevation"]),
		ElapsedTime:     asFloat(doc["elapsedTime"]),
		Kilojoules:      asFloat(doc["kilojoules"]),
		ProcessingState: asString(doc["processingState"]),
		PayoutState:     payout.State(int(asFloat(doc["payoutState"]))),
	}
	if t, ok := doc["createdAt"].(time.Time); ok {
		a.CreatedAt = t
	}
	return a
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
