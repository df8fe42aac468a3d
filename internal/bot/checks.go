package bot

import (
	"fmt"
	"math"
	"time"

	"delta-trading-bot/internal/delta"
)

// SideForCandle maps the target candle color to the entry side: the
// strategy always trades in the direction of the last closed candle.
func SideForCandle(target delta.TargetCandle) delta.OrderSide {
	if target.Color == delta.ColorGreen {
		return delta.SideBuy
	}
	return delta.SideSell
}

// StopLossForCandle places the initial stop behind the candle that
// triggered the entry
func StopLossForCandle(target delta.TargetCandle) float64 {
	if target.Color == delta.ColorGreen {
		return target.Low
	}
	return target.High
}

// IsCandleBodyAboveMinimum filters out dead candles whose body move is
// below the configured minimum percent of the open
func IsCandleBodyAboveMinimum(target delta.TargetCandle, minBodyPercent float64) bool {
	if target.Open == 0 {
		return false
	}
	bodyPercent := math.Abs(target.Close-target.Open) / target.Open * 100
	return bodyPercent >= minBodyPercent
}

// IsPriceMovingInCandleDirection checks that price has not already
// reversed through the candle: after a red candle price must stay below
// the high, after a green candle above the low.
func IsPriceMovingInCandleDirection(target delta.TargetCandle, currentPrice float64) bool {
	if target.Color == delta.ColorRed {
		return currentPrice < target.High
	}
	return currentPrice > target.Low
}

// IsPriceMovementWithinRange checks the distance from the candle's
// color-side extreme to the current price against the configured band.
// Too little movement is noise, too much means the move already
// happened.
func IsPriceMovementWithinRange(target delta.TargetCandle, currentPrice, minPercent, maxPercent float64) bool {
	basePrice := target.Low
	if target.Color == delta.ColorRed {
		basePrice = target.High
	}
	if basePrice == 0 {
		return false
	}

	percentMove := math.Abs((currentPrice-basePrice)/basePrice) * 100
	return percentMove >= minPercent && percentMove <= maxPercent
}

// CalculateTakeProfit derives the TP price from the entry fill. A TP
// that would land at or below zero is clamped to the smallest
// representable price for the configured decimals.
func CalculateTakeProfit(entryPrice float64, side delta.OrderSide, tpPercent float64, decimals int) float64 {
	offset := entryPrice * (tpPercent / 100)

	tp := entryPrice + offset
	if side == delta.SideSell {
		tp = entryPrice - offset
	}

	if tp <= 0 {
		tp = math.Pow(10, float64(-decimals))
	}

	return ClampPrice(tp, decimals)
}

// ClampPrice rounds a price to the instrument's decimal places
func ClampPrice(price float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(price*scale) / scale
}

// TargetCandleWindow returns the fetch window for the most recently
// closed candle on a timeframe. The target bucket starts one full
// interval before the currently forming one.
func TargetCandleWindow(now time.Time, timeframe string) (startMs, endMs int64, err error) {
	dur, err := TimeframeDuration(timeframe)
	if err != nil {
		return 0, 0, err
	}

	currentStart := now.Truncate(dur)
	targetStart := currentStart.Add(-dur)

	return targetStart.UnixMilli(), currentStart.UnixMilli(), nil
}

// HistoryWindow returns a fetch window wide enough to satisfy the
// regime detector's minimum candle requirement with headroom
func HistoryWindow(now time.Time, timeframe string, candleCount int) (startMs, endMs int64, err error) {
	dur, err := TimeframeDuration(timeframe)
	if err != nil {
		return 0, 0, err
	}

	end := now
	start := end.Add(-time.Duration(candleCount+5) * dur)
	return start.UnixMilli(), end.UnixMilli(), nil
}

// SelectTargetCandle picks the most recently closed candle from a
// history, rejecting any candle still forming. Candles must be sorted
// ascending.
func SelectTargetCandle(candles []delta.Candle, now time.Time, timeframe string) (delta.TargetCandle, error) {
	dur, err := TimeframeDuration(timeframe)
	if err != nil {
		return delta.TargetCandle{}, err
	}

	currentStartMs := now.Truncate(dur).UnixMilli()

	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].Timestamp < currentStartMs {
			return delta.NewTargetCandle(candles[i]), nil
		}
	}

	return delta.TargetCandle{}, fmt.Errorf("%w: no closed candle before %d", ErrDataUnavailable, currentStartMs)
}

// TimeframeDuration converts a timeframe label to its duration
func TimeframeDuration(tf string) (time.Duration, error) {
	switch tf {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: unsupported timeframe %q", ErrValidation, tf)
	}
}
