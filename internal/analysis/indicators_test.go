package analysis

import (
	"math"
	"testing"

	"delta-trading-bot/internal/delta"
)

func flatCandles(n int, tr float64) []delta.Candle {
	candles := make([]delta.Candle, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, delta.Candle{
			Timestamp: int64(i+1) * 60000,
			Open:      100,
			High:      100 + tr/2,
			Low:       100 - tr/2,
			Close:     100,
			Volume:    50,
		})
	}
	return candles
}

// TestATRConstantRange verifies ATR converges to the constant true
// range of a flat series.
func TestATRConstantRange(t *testing.T) {
	candles := flatCandles(40, 2)

	atr := ATR(candles, 14)
	if math.Abs(atr-2) > 1e-9 {
		t.Errorf("Expected ATR 2 for constant range, got %f", atr)
	}
}

// TestATRInsufficientData verifies ATR returns 0 without period+1 bars.
func TestATRInsufficientData(t *testing.T) {
	if atr := ATR(flatCandles(14, 2), 14); atr != 0 {
		t.Errorf("Expected 0 with insufficient data, got %f", atr)
	}
}

// TestATRGapUsesTrueRange verifies gaps count via the previous close.
func TestATRGapUsesTrueRange(t *testing.T) {
	candles := []delta.Candle{
		{Open: 100, High: 101, Low: 99, Close: 100},
		// Gaps up: true range is high - prevClose = 10
		{Open: 109, High: 110, Low: 108.5, Close: 109},
		{Open: 109, High: 110, Low: 108, Close: 109},
	}

	atr := ATR(candles, 2)
	// Seed avg of TR(10) and TR(2)
	if math.Abs(atr-6) > 1e-9 {
		t.Errorf("Expected ATR 6, got %f", atr)
	}
}

// TestRollingATRPercentAvg verifies the rolling average matches the
// point reading on a flat series.
func TestRollingATRPercentAvg(t *testing.T) {
	candles := flatCandles(40, 2)

	avg := RollingATRPercentAvg(candles, 14)
	if math.Abs(avg-2) > 1e-9 {
		t.Errorf("Expected rolling ATR%% 2, got %f", avg)
	}

	if avg := RollingATRPercentAvg(flatCandles(20, 2), 14); avg != 0 {
		t.Errorf("Expected 0 below 2x period, got %f", avg)
	}
}

// TestADXSeriesTrend verifies a one-way trend drives ADX toward 100.
func TestADXSeriesTrend(t *testing.T) {
	candles := make([]delta.Candle, 0, 60)
	price := 100.0
	for i := 0; i < 60; i++ {
		open := price
		close := open + 1
		candles = append(candles, delta.Candle{
			Timestamp: int64(i+1) * 60000,
			Open:      open,
			High:      close + 0.1,
			Low:       open - 0.1,
			Close:     close,
		})
		price = close
	}

	series := ADXSeries(candles, 14)
	if len(series) == 0 {
		t.Fatal("Expected a non-empty ADX series")
	}
	last := series[len(series)-1]
	if last < 90 {
		t.Errorf("Expected ADX near 100 in a one-way trend, got %f", last)
	}
}

// TestADXSeriesInsufficientData verifies nil below 2x period.
func TestADXSeriesInsufficientData(t *testing.T) {
	if series := ADXSeries(flatCandles(20, 2), 14); series != nil {
		t.Errorf("Expected nil series, got %d values", len(series))
	}
}
