package analysis

import (
	"math"

	"delta-trading-bot/internal/delta"
)

// BodyPercent returns the candle body as a percent of its high-low range
func BodyPercent(c delta.Candle) float64 {
	r := c.High - c.Low
	if r == 0 {
		return 0
	}
	return math.Abs(c.Close-c.Open) / r * 100
}

// BodyMovePercent returns the body size as a percent of the open price
func BodyMovePercent(c delta.Candle) float64 {
	if c.Open == 0 {
		return 0
	}
	return math.Abs(c.Close-c.Open) / c.Open * 100
}

// UpperWickPercent returns the upper wick as a percent of the range
func UpperWickPercent(c delta.Candle) float64 {
	r := c.High - c.Low
	if r == 0 {
		return 0
	}
	return (c.High - math.Max(c.Open, c.Close)) / r * 100
}

// LowerWickPercent returns the lower wick as a percent of the range
func LowerWickPercent(c delta.Candle) float64 {
	r := c.High - c.Low
	if r == 0 {
		return 0
	}
	return (math.Min(c.Open, c.Close) - c.Low) / r * 100
}

// RangePercent returns the high-low spread of a window as a percent of
// the window low
func RangePercent(candles []delta.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	high, low := windowExtremes(candles)
	if low == 0 {
		return 0
	}
	return (high - low) / low * 100
}

// RangePercentOfClose returns the high-low spread of a window as a
// percent of the last close
func RangePercentOfClose(candles []delta.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	high, low := windowExtremes(candles)
	close := candles[len(candles)-1].Close
	if close == 0 {
		return 0
	}
	return (high - low) / close * 100
}

func windowExtremes(candles []delta.Candle) (high, low float64) {
	high = candles[0].High
	low = candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

// DetectMicroChop scans 3, 4 and 5 candle windows for a tight range with
// mostly small bodies where the last candle made neither a new high nor
// a new low inside the window.
func DetectMicroChop(candles []delta.Candle, rollingATRAvg, bodyThreshold float64) bool {
	if len(candles) < 5 {
		return false
	}

	for _, size := range []int{3, 4, 5} {
		window := candles[len(candles)-size:]
		rangePct := RangePercentOfClose(window)

		smallBodies := 0
		for _, c := range window {
			if BodyPercent(c) < bodyThreshold {
				smallBodies++
			}
		}

		prevHigh, prevLow := windowExtremes(window[:len(window)-1])
		last := window[len(window)-1]
		noBreak := last.High <= prevHigh && last.Low >= prevLow

		if rangePct < rollingATRAvg*0.6 && smallBodies >= size-1 && noBreak {
			return true
		}
	}
	return false
}

// IsVolumeContracting reports whether the 5-candle average volume has
// fallen below 70% of the 20-candle average. Needs 25 candles of history.
func IsVolumeContracting(candles []delta.Candle) bool {
	if len(candles) < 25 {
		return false
	}

	avg20 := averageVolume(candles[len(candles)-20:])
	avg5 := averageVolume(candles[len(candles)-5:])
	return avg5 < avg20*0.7
}

// AverageVolume returns the mean volume over the last n candles,
// excluding the final candle when excludeLast is set
func AverageVolume(candles []delta.Candle, n int, excludeLast bool) float64 {
	end := len(candles)
	if excludeLast {
		end--
	}
	start := end - n
	if start < 0 || end <= start {
		return 0
	}
	return averageVolume(candles[start:end])
}

func averageVolume(candles []delta.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

// DetectRangeCompression checks windows of 3 to 15 candles for ranges
// tighter than a size-scaled share of the timeframe-adjusted max range.
// A strong breakout candle (body above 60% closing beyond the prior
// window's extremes) disables the signal entirely.
func DetectRangeCompression(candles []delta.Candle, maxRangePercent float64) bool {
	if len(candles) < 15 {
		return false
	}

	last := candles[len(candles)-1]

	for size := 3; size <= 15; size++ {
		window := candles[len(candles)-size:]

		prevHigh, prevLow := windowExtremes(window[:len(window)-1])
		strongBreakout := BodyPercent(last) > 60 &&
			(last.Close > prevHigh || last.Close < prevLow)
		if strongBreakout {
			return false
		}

		threshold := maxRangePercent * math.Sqrt(float64(size)/15.0)
		if RangePercentOfClose(window) < threshold {
			return true
		}
	}
	return false
}
