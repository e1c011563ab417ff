// Package reward computes token reward amounts from activity telemetry.
package reward

import "math"

// Sport vocabulary with dedicated formulas. Matching is case-sensitive;
// anything else falls back to the generic formula.
const (
	SportWalk = "Walk"
	SportRide = "Ride"
	SportRun  = "Run"
	SportSwim = "Swim"
)

// ActivityData is the telemetry a reward is computed from.
type ActivityData struct {
	Calories    float64
	Distance    float64
	Elevation   float64
	ElapsedTime float64
	Kilojoules  float64
	Sport       string
}

// AssetAmount maps activity telemetry to an absolute integer token amount at
// the asset's decimal precision. A zero-duration activity earns nothing,
// which also guards the division by elapsed time. Amounts at or below zero
// mean "not eligible" to the caller, not an error.
//
// The formulas, their operator precedence and the floor-then-round order are
// kept exactly as the live system computes them; changing any of it would
// break reward parity.
func AssetAmount(data ActivityData, divisibility int) int64 {
	if data.ElapsedTime <= 0 {
		return 0
	}

	var amount float64
	switch data.Sport {
	case SportWalk:
		amount = ((data.Distance + data.Kilojoules) / data.ElapsedTime) *
			(data.Elevation + data.Kilojoules + data.Calories) * 1.2 * 100
	case SportRide:
		amount = ((data.Distance + data.Kilojoules) / data.ElapsedTime) *
			(data.Elevation + data.Kilojoules + data.Calories) * 1.3 * 100
	case SportRun:
		amount = ((data.Distance + data.Kilojoules) / data.ElapsedTime) *
			(data.Elevation + data.Kilojoules + data.Calories) * 1.5 * 100
	case SportSwim:
		// Distance in centimeters; a lane-count proxy replaces elevation.
		amount = ((data.Distance*100 + data.Kilojoules) / data.ElapsedTime) *
			(data.Distance/25 + data.Kilojoules + data.Calories) * 1.7 * 100
	default:
		amount = data.ElapsedTime * (data.Kilojoules + data.Calories) * 1.6 * 100
	}

	return int64(math.Round(math.Floor(amount * math.Pow(10, float64(divisibility)))))
}
