package reward

import (
	"math"
	"testing"
)

func TestAssetAmountWalk(t *testing.T) {
	data := ActivityData{
		Sport:       SportWalk,
		Distance:    2,
		Kilojoules:  5,
		ElapsedTime: 4,
		Elevation:   3,
		Calories:    1,
	}
	want := int64(math.Round(math.Floor(((2.0 + 5.0) / 4.0) * (3.0 + 5.0 + 1.0) * 1.2 * 100 * 1000)))
	if got := AssetAmount(data, 3); got != want {
		t.Fatalf("walk amount = %d, want %d", got, want)
	}
}

func TestAssetAmountRideScalesOverWalk(t *testing.T) {
	data := ActivityData{
		Distance:    10,
		Kilojoules:  2,
		ElapsedTime: 5,
		Elevation:   1,
		Calories:    4,
	}
	walk, ride := data, data
	walk.Sport = SportWalk
	ride.Sport = SportRide

	if AssetAmount(ride, 0) <= AssetAmount(walk, 0) {
		t.Fatal("ride multiplier must pay more than walk for identical telemetry")
	}
}

func TestAssetAmountSwim(t *testing.T) {
	data := ActivityData{
		Sport:       SportSwim,
		Distance:    50,
		Kilojoules:  2,
		ElapsedTime: 100,
		Calories:    3,
	}
	want := int64(math.Round(math.Floor(((50.0*100 + 2.0) / 100.0) * (50.0/25 + 2.0 + 3.0) * 1.7 * 100)))
	if got := AssetAmount(data, 0); got != want {
		t.Fatalf("swim amount = %d, want %d", got, want)
	}
}

func TestAssetAmountOtherSport(t *testing.T) {
	data := ActivityData{
		Sport:       "Yoga",
		ElapsedTime: 30,
		Kilojoules:  1,
		Calories:    2,
	}
	want := int64(math.Round(math.Floor(30.0 * (1.0 + 2.0) * 1.6 * 100)))
	if got := AssetAmount(data, 0); got != want {
		t.Fatalf("fallback amount = %d, want %d", got, want)
	}
}

func TestAssetAmountZeroElapsedTime(t *testing.T) {
	data := ActivityData{Sport: SportRun, Distance: 5, Calories: 100}
	if got := AssetAmount(data, 6); got != 0 {
		t.Fatalf("zero-duration activity earned %d, want 0", got)
	}
}

func TestAssetAmountNegativeElapsedTime(t *testing.T) {
	data := ActivityData{Sport: SportRun, ElapsedTime: -1, Calories: 100}
	if got := AssetAmount(data, 0); got != 0 {
		t.Fatalf("negative-duration activity earned %d, want 0", got)
	}
}

func TestAssetAmountDeterministic(t *testing.T) {
	data := ActivityData{
		Sport:       SportRun,
		Distance:    100,
		Kilojoules:  2,
		ElapsedTime: 20,
		Elevation:   5,
		Calories:    10,
	}
	first := AssetAmount(data, 6)
	for i := 0; i < 10; i++ {
		if got := AssetAmount(data, 6); got != first {
			t.Fatalf("amount not deterministic: %d vs %d", got, first)
		}
	}
	if first <= 0 {
		t.Fatalf("expected a positive amount, got %d", first)
	}
}

func TestAssetAmountSportMatchingIsCaseSensitive(t *testing.T) {
	exact := ActivityData{Sport: SportWalk, Distance: 2, Kilojoules: 5, ElapsedTime: 4, Elevation: 3, Calories: 1}
	lower := exact
	lower.Sport = "walk"

	fallback := int64(math.Round(math.Floor(4.0 * (5.0 + 1.0) * 1.6 * 100)))
	if got := AssetAmount(lower, 0); got != fallback {
		t.Fatalf("lowercase sport amount = %d, want fallback %d", got, fallback)
	}
}
