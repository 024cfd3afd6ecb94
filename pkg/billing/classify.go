package billing

import (
	"github.com/zevbilling/zevbilling/pkg/types"
)

const (
	// pvActiveThresholdW and batteryActiveThresholdW ignore inverter noise
	// when deciding whether an internal source is actually producing.
	pvActiveThresholdW      = 50
	batteryActiveThresholdW = 50

	// priceEpsilon treats near-zero resolved prices as missing telemetry.
	priceEpsilon = 0.0001
)

// classifyInterval decides whether one interval's consumption was internally
// sourced and which raw price applies. Each interval is decided on its own;
// there is no hysteresis across buckets.
//
// An interval is internal when residual grid import stays below the user's
// buffer AND an internal source was live: PV always counts, battery discharge
// only when the user's policy allows it. A nil sys means no system data for
// the bucket, which classifies external with price 0 for the fallback to
// resolve.
func classifyInterval(sys *SystemIntervalData, rules types.PricingRules) (internal bool, price float64) {
	if sys == nil {
		return false, 0
	}

	gridIsLow := sys.GridImport < rules.GridBufferWatts
	hasPV := sys.PVProduction > pvActiveThresholdW
	hasBattery := sys.BatteryDischarge > batteryActiveThresholdW

	internalSource := hasPV || (hasBattery && rules.AllowBatteryPricing)

	if gridIsLow && internalSource {
		return true, rules.InternalPrice
	}
	return false, sys.GridPrice
}

// resolvePrice substitutes the fallback rates when the classified price is
// missing or zero: the internal rate for internal intervals, the grid
// fallback for external ones.
func resolvePrice(internal bool, price float64, rules types.PricingRules) float64 {
	if price > priceEpsilon {
		return price
	}
	if internal && rules.InternalPrice > 0 {
		return rules.InternalPrice
	}
	if !internal && rules.GridFallbackPrice > 0 {
		return rules.GridFallbackPrice
	}
	return price
}
