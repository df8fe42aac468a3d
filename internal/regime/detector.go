package regime

import (
	"math"

	"delta-trading-bot/internal/analysis"
	"delta-trading-bot/internal/delta"
)

// Score bands:
// 0 – 2   strong trend
// 3 – 4   weak trend
// 5 – 6   light chop
// 7 – 8   clear chop
// 9 – 10  tight compression / high breakout probability

// totalWeight is the fixed sum of all chop signal weights. Keeping it
// constant across timeframes and modes keeps scores comparable.
const totalWeight = 14

// Result is the outcome of one regime evaluation
type Result struct {
	Score          int     `json:"score"`
	IsAllowed      bool    `json:"is_allowed"`
	BreakoutActive bool    `json:"breakout_active"`
	Metrics        Metrics `json:"metrics"`
}

// Metrics carries the derived values behind a score, for the decision log
type Metrics struct {
	ATR             float64 `json:"atr"`
	ATRPercent      float64 `json:"atr_percent"`
	RollingATRAvg   float64 `json:"rolling_atr_avg"`
	ADX             float64 `json:"adx"`
	ADXPrev         float64 `json:"adx_prev"`
	StructureRange  float64 `json:"structure_range_percent"`
	ChopPoints      int     `json:"chop_points"`
	TargetQualityOK bool    `json:"target_quality_ok"`
	IsChoppy        bool    `json:"is_choppy"`
}

// Evaluate scores how choppy the market looks around the target candle.
// Candles must be ascending; the target candle is the last closed bar of
// the evaluated timeframe.
func Evaluate(target delta.TargetCandle, candles []delta.Candle, t Tuning) Result {
	if len(candles) < t.MinRequiredCandles {
		// Too little history reads as probably-choppy: block entries
		return Result{Score: 7, IsAllowed: false, Metrics: Metrics{IsChoppy: true}}
	}

	last := candles[len(candles)-1]
	latestClose := last.Close

	atr := analysis.ATR(candles, t.ATRPeriod)
	atrPercent := 0.0
	if latestClose != 0 {
		atrPercent = atr / latestClose * 100
	}
	rollingAvg := analysis.RollingATRPercentAvg(candles, t.ATRPeriod)

	chop := 0

	// ATR deviation: volatility well below its own recent norm
	if atrPercent < rollingAvg*0.7 {
		chop += 2
	}

	// ADX weakness, graduated; a rising ADX above 20 is a strengthening
	// trend even while still under the weak threshold
	var adxCur, adxPrev float64
	adxSeries := analysis.ADXSeries(candles, t.ADXPeriod)
	if len(adxSeries) >= 2 {
		adxCur = adxSeries[len(adxSeries)-1]
		adxPrev = adxSeries[len(adxSeries)-2]

		adxPoints := 0
		switch {
		case adxCur < 18:
			adxPoints = 2
		case adxCur < t.ADXWeakThreshold:
			adxPoints = 1
		}
		if adxCur > adxPrev && adxCur > 20 {
			adxPoints--
			if adxPoints < 0 {
				adxPoints = 0
			}
		}
		chop += adxPoints
	}

	// Structure compression over the lookback window
	structureWindow := candles[len(candles)-t.StructureLookback:]
	structureRange := analysis.RangePercent(structureWindow)
	if structureRange < rollingAvg*t.TimeframeMultiplier {
		chop += 2
	}

	// Micro chop across 3-5 candle windows
	if analysis.DetectMicroChop(candles, rollingAvg, t.SmallBodyPercentThreshold) {
		chop += 2
	}

	// Target candle quality
	targetOK := isTargetCandleGood(target, atrPercent, t.MinBodyMovePercent)
	if !targetOK {
		chop += 2
	}

	// Volume contraction
	if analysis.IsVolumeContracting(candles) {
		chop += 2
	}

	// Multi-window range compression; skipped when the last candle is
	// already a strong breakout
	if analysis.DetectRangeCompression(candles, rollingAvg*t.TimeframeMultiplier) {
		chop += 2
	}

	// Breakout override: a decisive close beyond structure on expanding
	// volume and range outweighs every compression signal
	breakout := isBreakoutOverride(candles, structureWindow, rollingAvg)
	if breakout {
		chop -= 4
	}

	if chop < 0 {
		chop = 0
	}

	score := int(math.Round(float64(chop) / totalWeight * 10))
	if score > 10 {
		score = 10
	}

	return Result{
		Score:          score,
		IsAllowed:      breakout || score <= 4,
		BreakoutActive: breakout,
		Metrics: Metrics{
			ATR:             atr,
			ATRPercent:      atrPercent,
			RollingATRAvg:   rollingAvg,
			ADX:             adxCur,
			ADXPrev:         adxPrev,
			StructureRange:  structureRange,
			ChopPoints:      chop,
			TargetQualityOK: targetOK,
			IsChoppy:        score >= t.ChopScoreThreshold,
		},
	}
}

// isTargetCandleGood flags a decision candle as poor quality when three
// or more weakness signs are present at once
func isTargetCandleGood(target delta.TargetCandle, atrPercent, minBodyMovePercent float64) bool {
	c := target.Candle
	rangePct := 0.0
	if c.Close != 0 {
		rangePct = (c.High - c.Low) / c.Close * 100
	}

	badSigns := 0

	if rangePct < atrPercent*0.8 {
		badSigns++
	}
	if analysis.BodyPercent(c) < 30 {
		badSigns++
	}
	if analysis.BodyMovePercent(c) < minBodyMovePercent {
		badSigns++
	}

	// Close should land near the extreme the candle is pushing toward
	r := c.High - c.Low
	if r > 0 {
		if target.Color == delta.ColorGreen && (c.High-c.Close)/r > 0.25 {
			badSigns++
		}
		if target.Color == delta.ColorRed && (c.Close-c.Low)/r > 0.25 {
			badSigns++
		}
	}

	// A long wick against the move shows rejection
	if target.Color == delta.ColorGreen && analysis.UpperWickPercent(c) > 40 {
		badSigns++
	}
	if target.Color == delta.ColorRed && analysis.LowerWickPercent(c) > 40 {
		badSigns++
	}

	return badSigns < 3
}

// isBreakoutOverride requires all four breakout conditions together:
// close beyond the structure window, dominant body, expanding volume and
// range above the volatility norm
func isBreakoutOverride(candles, structureWindow []delta.Candle, rollingAvg float64) bool {
	if len(candles) < 20 || len(structureWindow) < 2 {
		return false
	}

	last := candles[len(candles)-1]

	prior := structureWindow[:len(structureWindow)-1]
	priorHigh, priorLow := prior[0].High, prior[0].Low
	for _, c := range prior[1:] {
		if c.High > priorHigh {
			priorHigh = c.High
		}
		if c.Low < priorLow {
			priorLow = c.Low
		}
	}

	closedBeyond := last.Close > priorHigh || last.Close < priorLow
	if !closedBeyond {
		return false
	}

	if analysis.BodyPercent(last) <= 65 {
		return false
	}

	avgVol := analysis.AverageVolume(candles, 19, true)
	if avgVol <= 0 || last.Volume <= avgVol*1.3 {
		return false
	}

	lastRangePct := 0.0
	if last.Close != 0 {
		lastRangePct = (last.High - last.Low) / last.Close * 100
	}
	return lastRangePct > rollingAvg*1.2
}
