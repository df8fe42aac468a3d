package analysis

import (
	"math"

	"delta-trading-bot/internal/delta"
)

// trueRanges returns the per-bar true range series, one value per candle
// after the first. Candles must be ascending by timestamp.
func trueRanges(candles []delta.Candle) []float64 {
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}
	return trs
}

// ATR computes the Average True Range with Wilder smoothing.
// Returns 0 when fewer than period+1 candles are available.
func ATR(candles []delta.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	trs := trueRanges(candles)

	// Seed with simple average of the first `period` true ranges
	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

// RollingATRPercentAvg computes ATR as a percent of close at every index
// from `period` onward (using the growing prefix) and averages the last
// `period` of those readings. Requires at least 2*period candles, else 0.
func RollingATRPercentAvg(candles []delta.Candle, period int) float64 {
	if len(candles) < period*2 {
		return 0
	}

	atrPercents := make([]float64, 0, len(candles)-period)
	for i := period; i < len(candles); i++ {
		prefix := candles[:i+1]
		atr := ATR(prefix, period)
		close := prefix[len(prefix)-1].Close
		if close == 0 {
			atrPercents = append(atrPercents, 0)
			continue
		}
		atrPercents = append(atrPercents, atr/close*100)
	}

	last := atrPercents[len(atrPercents)-period:]
	sum := 0.0
	for _, v := range last {
		sum += v
	}
	return sum / float64(len(last))
}

// ADXSeries computes the Wilder ADX series. Directional movement and
// true range use the running-sum recurrence (s = s - s/period + new);
// ADX is seeded with the simple average of the first `period` DX values.
// Returns an empty series when fewer than 2*period candles are available.
func ADXSeries(candles []delta.Candle, period int) []float64 {
	if len(candles) < period*2 {
		return nil
	}

	plusDM := make([]float64, 0, len(candles)-1)
	minusDM := make([]float64, 0, len(candles)-1)
	trs := trueRanges(candles)

	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		if upMove > downMove && upMove > 0 {
			plusDM = append(plusDM, upMove)
		} else {
			plusDM = append(plusDM, 0)
		}
		if downMove > upMove && downMove > 0 {
			minusDM = append(minusDM, downMove)
		} else {
			minusDM = append(minusDM, 0)
		}
	}

	var smoothedTR, smoothedPlus, smoothedMinus float64
	for i := 0; i < period; i++ {
		smoothedTR += trs[i]
		smoothedPlus += plusDM[i]
		smoothedMinus += minusDM[i]
	}

	dxValues := make([]float64, 0, len(trs)-period)
	for i := period; i < len(trs); i++ {
		smoothedTR = smoothedTR - smoothedTR/float64(period) + trs[i]
		smoothedPlus = smoothedPlus - smoothedPlus/float64(period) + plusDM[i]
		smoothedMinus = smoothedMinus - smoothedMinus/float64(period) + minusDM[i]

		if smoothedTR == 0 {
			dxValues = append(dxValues, 0)
			continue
		}

		plusDI := smoothedPlus / smoothedTR * 100
		minusDI := smoothedMinus / smoothedTR * 100
		sum := plusDI + minusDI

		if sum == 0 {
			dxValues = append(dxValues, 0)
			continue
		}
		dxValues = append(dxValues, math.Abs(plusDI-minusDI)/sum*100)
	}

	seedLen := period
	if len(dxValues) < seedLen {
		seedLen = len(dxValues)
	}
	adx := 0.0
	for _, dx := range dxValues[:seedLen] {
		adx += dx
	}
	adx /= float64(period)

	series := []float64{adx}
	for i := period; i < len(dxValues); i++ {
		adx = (adx*float64(period-1) + dxValues[i]) / float64(period)
		series = append(series, adx)
	}
	return series
}
