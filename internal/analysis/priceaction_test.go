package analysis

import (
	"math"
	"testing"

	"delta-trading-bot/internal/delta"
)

// TestBodyAndWickPercents verifies the candle anatomy helpers.
func TestBodyAndWickPercents(t *testing.T) {
	c := delta.Candle{Open: 100, High: 110, Low: 98, Close: 106}

	if got := BodyPercent(c); math.Abs(got-50) > 1e-9 {
		t.Errorf("Expected body 50%% of range, got %f", got)
	}
	if got := BodyMovePercent(c); math.Abs(got-6) > 1e-9 {
		t.Errorf("Expected body move 6%% of open, got %f", got)
	}
	if got := UpperWickPercent(c); math.Abs(got-100.0/3) > 1e-9 {
		t.Errorf("Expected upper wick 33.3%%, got %f", got)
	}
	if got := LowerWickPercent(c); math.Abs(got-100.0/6) > 1e-9 {
		t.Errorf("Expected lower wick 16.7%%, got %f", got)
	}

	flat := delta.Candle{Open: 100, High: 100, Low: 100, Close: 100}
	if BodyPercent(flat) != 0 || UpperWickPercent(flat) != 0 || LowerWickPercent(flat) != 0 {
		t.Error("Zero-range candle must report zero percents")
	}
}

// TestRangePercent verifies window spread calculations.
func TestRangePercent(t *testing.T) {
	candles := []delta.Candle{
		{High: 102, Low: 100, Close: 101},
		{High: 105, Low: 99, Close: 104},
		{High: 104, Low: 101, Close: 102},
	}

	// Spread 6 over low 99
	if got := RangePercent(candles); math.Abs(got-6.0/99*100) > 1e-9 {
		t.Errorf("Unexpected range percent %f", got)
	}
	// Spread 6 over last close 102
	if got := RangePercentOfClose(candles); math.Abs(got-6.0/102*100) > 1e-9 {
		t.Errorf("Unexpected range percent of close %f", got)
	}
	if RangePercent(nil) != 0 {
		t.Error("Empty window must report 0")
	}
}

// TestDetectMicroChop verifies a tight small-bodied window with no
// breakout reads as micro chop.
func TestDetectMicroChop(t *testing.T) {
	tight := []delta.Candle{
		{Open: 100, High: 100.6, Low: 99.4, Close: 100.1},
		{Open: 100.1, High: 100.6, Low: 99.4, Close: 99.9},
		{Open: 99.9, High: 100.6, Low: 99.4, Close: 100.05},
		{Open: 100.05, High: 100.6, Low: 99.4, Close: 99.95},
		{Open: 99.95, High: 100.5, Low: 99.5, Close: 100},
	}

	// Window range ~1.2% against a 4% volatility norm
	if !DetectMicroChop(tight, 4, 50) {
		t.Error("Expected micro chop in a tight small-body window")
	}

	// The same window against a compressed norm is not chop
	if DetectMicroChop(tight, 1, 50) {
		t.Error("Expected no micro chop when the norm is tight too")
	}

	if DetectMicroChop(tight[:4], 4, 50) {
		t.Error("Expected no detection below 5 candles")
	}
}

// TestIsVolumeContracting verifies the 5 vs 20 average comparison.
func TestIsVolumeContracting(t *testing.T) {
	candles := make([]delta.Candle, 0, 30)
	for i := 0; i < 30; i++ {
		v := 100.0
		if i >= 25 {
			v = 20
		}
		candles = append(candles, delta.Candle{Volume: v})
	}

	if !IsVolumeContracting(candles) {
		t.Error("Expected contraction with recent volume collapsed")
	}

	steady := make([]delta.Candle, 30)
	for i := range steady {
		steady[i].Volume = 100
	}
	if IsVolumeContracting(steady) {
		t.Error("Expected no contraction on steady volume")
	}

	if IsVolumeContracting(candles[:20]) {
		t.Error("Expected no detection below 25 candles")
	}
}

// TestAverageVolume verifies the excludeLast switch.
func TestAverageVolume(t *testing.T) {
	candles := []delta.Candle{{Volume: 10}, {Volume: 20}, {Volume: 30}, {Volume: 100}}

	if got := AverageVolume(candles, 3, true); math.Abs(got-20) > 1e-9 {
		t.Errorf("Expected 20 excluding the last bar, got %f", got)
	}
	if got := AverageVolume(candles, 4, false); math.Abs(got-40) > 1e-9 {
		t.Errorf("Expected 40 over all bars, got %f", got)
	}
	if got := AverageVolume(candles, 10, false); got != 0 {
		t.Errorf("Expected 0 when window exceeds history, got %f", got)
	}
}

// TestDetectRangeCompression verifies tight multi-candle ranges are
// flagged and a strong breakout candle disables the signal.
func TestDetectRangeCompression(t *testing.T) {
	tight := make([]delta.Candle, 20)
	for i := range tight {
		tight[i] = delta.Candle{Open: 100, High: 100.2, Low: 99.8, Close: 100.05}
	}

	// 0.4% range against a 4% ceiling compresses at every window size
	if !DetectRangeCompression(tight, 4) {
		t.Error("Expected compression in a dead flat series")
	}

	// Last candle breaks out decisively: signal disabled
	breakout := make([]delta.Candle, 20)
	copy(breakout, tight)
	breakout[19] = delta.Candle{Open: 100, High: 103.1, Low: 99.9, Close: 103}
	if DetectRangeCompression(breakout, 4) {
		t.Error("Expected breakout candle to disable compression")
	}

	if DetectRangeCompression(tight[:10], 4) {
		t.Error("Expected no detection below 15 candles")
	}
}
