package regime

import "strings"

// TradingMode selects how aggressively the detector filters chop
type TradingMode string

const (
	ModeConservative TradingMode = "conservative"
	ModeBalanced     TradingMode = "balanced"
	ModeAggressive   TradingMode = "aggressive"
)

// Tuning is the read-only parameter set for one (mode, timeframe) pair
type Tuning struct {
	ATRPeriod                 int
	ADXPeriod                 int
	ADXWeakThreshold          float64
	StructureLookback         int
	SmallBodyPercentThreshold float64
	SmallBodyMinCount         int
	MinRequiredCandles        int
	ChopScoreThreshold        int

	// TimeframeMultiplier scales range thresholds: higher timeframes
	// naturally cover wider ranges
	TimeframeMultiplier float64

	// MinBodyMovePercent comes from the strategy config and feeds the
	// target-candle quality check
	MinBodyMovePercent float64
}

// TimeframeMultiplier returns the range-threshold scale for a timeframe
func TimeframeMultiplier(timeframe string) float64 {
	switch {
	case strings.Contains(timeframe, "4h"):
		return 1.4
	case strings.Contains(timeframe, "1h"):
		return 1.2
	default: // 15m and faster
		return 1.0
	}
}

// TuningFor derives the detector tuning for a trading mode and timeframe.
// minBodyMovePercent is the strategy's configured minimum candle move.
func TuningFor(mode TradingMode, timeframe string, minBodyMovePercent float64) Tuning {
	t := Tuning{
		TimeframeMultiplier: TimeframeMultiplier(timeframe),
		MinBodyMovePercent:  minBodyMovePercent,
	}

	switch mode {
	case ModeConservative:
		t.ATRPeriod = 14
		t.ADXPeriod = 14
		t.ADXWeakThreshold = 22
		t.StructureLookback = 12
		t.SmallBodyPercentThreshold = 55
		t.SmallBodyMinCount = 7
		t.MinRequiredCandles = 60
		t.ChopScoreThreshold = 6
	case ModeAggressive:
		t.ATRPeriod = 10
		t.ADXPeriod = 10
		t.ADXWeakThreshold = 18
		t.StructureLookback = 8
		t.SmallBodyPercentThreshold = 45
		t.SmallBodyMinCount = 5
		t.MinRequiredCandles = 40
		t.ChopScoreThreshold = 4
	default: // balanced
		t.ATRPeriod = 14
		t.ADXPeriod = 14
		t.ADXWeakThreshold = 20
		t.StructureLookback = 10
		t.SmallBodyPercentThreshold = 50
		t.SmallBodyMinCount = 6
		t.MinRequiredCandles = 50
		t.ChopScoreThreshold = 5
	}
	return t
}
