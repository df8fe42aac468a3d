package bot

import (
	"errors"
	"testing"
	"time"

	"delta-trading-bot/internal/delta"
)

func greenCandle() delta.TargetCandle {
	return delta.NewTargetCandle(delta.Candle{Open: 100, High: 106, Low: 99, Close: 105})
}

func redCandle() delta.TargetCandle {
	return delta.NewTargetCandle(delta.Candle{Open: 105, High: 106, Low: 99, Close: 100})
}

// TestSideForCandle verifies entries follow the candle direction.
func TestSideForCandle(t *testing.T) {
	if side := SideForCandle(greenCandle()); side != delta.SideBuy {
		t.Errorf("Expected buy after green candle, got %s", side)
	}
	if side := SideForCandle(redCandle()); side != delta.SideSell {
		t.Errorf("Expected sell after red candle, got %s", side)
	}
}

// TestStopLossForCandle verifies the initial stop sits behind the
// triggering candle's extreme.
func TestStopLossForCandle(t *testing.T) {
	if sl := StopLossForCandle(greenCandle()); sl != 99 {
		t.Errorf("Expected stop at candle low 99, got %f", sl)
	}
	if sl := StopLossForCandle(redCandle()); sl != 106 {
		t.Errorf("Expected stop at candle high 106, got %f", sl)
	}
}

// TestCandleBodyMinimum verifies the dead-candle filter.
func TestCandleBodyMinimum(t *testing.T) {
	// Body is 5% of the open
	c := greenCandle()

	if !IsCandleBodyAboveMinimum(c, 4) {
		t.Error("Expected 5%% body to pass a 4%% minimum")
	}
	if IsCandleBodyAboveMinimum(c, 6) {
		t.Error("Expected 5%% body to fail a 6%% minimum")
	}

	zero := delta.NewTargetCandle(delta.Candle{})
	if IsCandleBodyAboveMinimum(zero, 0) {
		t.Error("Expected zero-open candle to fail")
	}
}

func TestPriceMovingInCandleDirection(t *testing.T) {
	green := greenCandle()
	if !IsPriceMovingInCandleDirection(green, 104) {
		t.Error("Price above green candle low should pass")
	}
	if IsPriceMovingInCandleDirection(green, 98) {
		t.Error("Price below green candle low has reversed")
	}

	red := redCandle()
	if !IsPriceMovingInCandleDirection(red, 101) {
		t.Error("Price below red candle high should pass")
	}
	if IsPriceMovingInCandleDirection(red, 107) {
		t.Error("Price above red candle high has reversed")
	}
}

// TestPriceMovementWithinRange verifies the band is measured from the
// candle's color-side extreme.
func TestPriceMovementWithinRange(t *testing.T) {
	// Green candle, base price is the low (99). Current 100.98 is ~2%.
	green := greenCandle()
	if !IsPriceMovementWithinRange(green, 100.98, 1, 3) {
		t.Error("Expected 2%% move from low to fall inside [1,3]")
	}
	if IsPriceMovementWithinRange(green, 99.2, 1, 3) {
		t.Error("Expected 0.2%% move to fall below the minimum")
	}
	if IsPriceMovementWithinRange(green, 104, 1, 3) {
		t.Error("Expected 5%% move to exceed the maximum")
	}

	// Red candle, base price is the high (106)
	red := redCandle()
	if !IsPriceMovementWithinRange(red, 103.88, 1, 3) {
		t.Error("Expected 2%% move from high to fall inside [1,3]")
	}
}

// TestCalculateTakeProfit verifies directionality, rounding and the
// zero clamp.
func TestCalculateTakeProfit(t *testing.T) {
	if tp := CalculateTakeProfit(100, delta.SideBuy, 1.5, 2); tp != 101.5 {
		t.Errorf("Expected long TP 101.5, got %f", tp)
	}
	if tp := CalculateTakeProfit(100, delta.SideSell, 1.5, 2); tp != 98.5 {
		t.Errorf("Expected short TP 98.5, got %f", tp)
	}

	// A short TP that would cross zero clamps to the smallest tick
	if tp := CalculateTakeProfit(0.01, delta.SideSell, 200, 2); tp != 0.01 {
		t.Errorf("Expected clamped TP 0.01, got %f", tp)
	}
}

func TestClampPrice(t *testing.T) {
	if p := ClampPrice(101.4567, 2); p != 101.46 {
		t.Errorf("Expected 101.46, got %f", p)
	}
	if p := ClampPrice(101.4567, 0); p != 101 {
		t.Errorf("Expected 101, got %f", p)
	}
}

// TestSelectTargetCandle verifies only fully closed candles qualify and
// the newest closed one wins.
func TestSelectTargetCandle(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 7, 30, 0, time.UTC)
	currentStart := now.Truncate(15 * time.Minute) // 12:00

	candles := []delta.Candle{
		{Timestamp: currentStart.Add(-30 * time.Minute).UnixMilli(), Open: 1, Close: 2},
		{Timestamp: currentStart.Add(-15 * time.Minute).UnixMilli(), Open: 2, Close: 3},
		{Timestamp: currentStart.UnixMilli(), Open: 3, Close: 4}, // still forming
	}

	target, err := SelectTargetCandle(candles, now, "15m")
	if err != nil {
		t.Fatalf("SelectTargetCandle failed: %v", err)
	}
	if target.Timestamp != candles[1].Timestamp {
		t.Errorf("Expected the 11:45 candle, got timestamp %d", target.Timestamp)
	}
	if target.Color != delta.ColorGreen {
		t.Errorf("Expected green target, got %s", target.Color)
	}
}

// TestSelectTargetCandleNoneClosed verifies the data-unavailable error
// when every candle is still forming.
func TestSelectTargetCandleNoneClosed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 7, 30, 0, time.UTC)
	candles := []delta.Candle{
		{Timestamp: now.Truncate(15 * time.Minute).UnixMilli()},
	}

	_, err := SelectTargetCandle(candles, now, "15m")
	if !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("Expected ErrDataUnavailable, got %v", err)
	}
}

func TestTimeframeDuration(t *testing.T) {
	if d, err := TimeframeDuration("4h"); err != nil || d != 4*time.Hour {
		t.Errorf("Expected 4h, got %v (%v)", d, err)
	}
	if _, err := TimeframeDuration("7m"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for unknown timeframe, got %v", err)
	}
}

// TestTargetCandleWindow verifies the window covers exactly the last
// closed bucket.
func TestTargetCandleWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 7, 30, 0, time.UTC)

	startMs, endMs, err := TargetCandleWindow(now, "15m")
	if err != nil {
		t.Fatalf("TargetCandleWindow failed: %v", err)
	}

	wantStart := time.Date(2026, 3, 10, 11, 45, 0, 0, time.UTC).UnixMilli()
	wantEnd := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).UnixMilli()
	if startMs != wantStart || endMs != wantEnd {
		t.Errorf("Expected window [%d,%d], got [%d,%d]", wantStart, wantEnd, startMs, endMs)
	}
}
