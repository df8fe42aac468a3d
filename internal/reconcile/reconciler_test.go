package reconcile

import (
	"context"
	"math"
	"testing"
	"time"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/delta"
	"delta-trading-bot/internal/events"
	"delta-trading-bot/internal/martingale"
)

func testConfig() *config.StrategyConfig {
	return &config.StrategyConfig{
		ID:                   "cfg-1",
		UserID:               "user-1",
		ProductID:            27,
		Symbol:               "BTCUSD",
		Timeframe:            "15m",
		Leverage:             20,
		LotSize:              0.01,
		InitialBaseQuantity:  1,
		PriceDecimalPlaces:   2,
		TakeProfitPercent:    1.5,
		MinCandleBodyPercent: 0.3,
	}
}

func testMachine() *martingale.Machine {
	return martingale.NewMachine(martingale.Sizing{
		LotSize:             0.01,
		Leverage:            20,
		InitialBaseQuantity: 1,
	})
}

func pendingState() martingale.State {
	s := martingale.NewState("cfg-1", "user-1", "BTCUSD", 27, 1)
	s.LastTradeOutcome = martingale.OutcomePending
	s.LastEntryOrderID = "entry-1"
	s.LastTakeProfitOrderID = "tp-1"
	s.LastStopLossOrderID = "sl-1"
	s.LastEntryPrice = 100
	s.LastSlPrice = 98
	s.LastTpPrice = 101.5
	return s
}

func newTestReconciler(gw *delta.MockGateway) *Reconciler {
	return New(gw, events.NewEventBus())
}

// TestResolveNoEntryOrder verifies a pending state without an entry
// order id settles as cancelled.
func TestResolveNoEntryOrder(t *testing.T) {
	gw := delta.NewMockGateway()
	r := newTestReconciler(gw)

	s := pendingState()
	s.LastEntryOrderID = ""

	out, err := r.Resolve(context.Background(), s, testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionResolved {
		t.Errorf("Expected resolved disposition, got %d", out.Disposition)
	}
	if out.State.LastTradeOutcome != martingale.OutcomeCancelled {
		t.Errorf("Expected cancelled outcome, got %s", out.State.LastTradeOutcome)
	}
}

// TestResolveUnfilledEntry verifies an OPEN entry is cancelled and the
// level preserved for retry.
func TestResolveUnfilledEntry(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.Orders["entry-1"] = &delta.OrderDetails{ID: "entry-1", Status: delta.OrderStatusOpen, Side: delta.SideBuy}
	r := newTestReconciler(gw)

	s := pendingState()
	s.CurrentLevel = 3
	s.LastTradeQuantity = 50

	out, err := r.Resolve(context.Background(), s, testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionResolved {
		t.Errorf("Expected resolved disposition, got %d", out.Disposition)
	}
	if out.State.LastTradeOutcome != martingale.OutcomeCancelled {
		t.Errorf("Expected cancelled outcome, got %s", out.State.LastTradeOutcome)
	}
	if out.State.CurrentLevel != 3 || out.State.LastTradeQuantity != 50 {
		t.Errorf("Expected level/quantity preserved, got %d/%f",
			out.State.CurrentLevel, out.State.LastTradeQuantity)
	}
	if gw.CancelAllCalls != 1 {
		t.Errorf("Expected one cancel-all call, got %d", gw.CancelAllCalls)
	}
}

// TestResolveUnfilledEntryCancelFails verifies a failed cancel leaves
// the state pending for the next cycle.
func TestResolveUnfilledEntryCancelFails(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.Orders["entry-1"] = &delta.OrderDetails{ID: "entry-1", Status: delta.OrderStatusOpen, Side: delta.SideBuy}
	gw.FailCancelAll = true
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionUnchanged {
		t.Errorf("Expected unchanged disposition, got %d", out.Disposition)
	}
	if out.State.LastTradeOutcome != martingale.OutcomePending {
		t.Errorf("Expected state still pending, got %s", out.State.LastTradeOutcome)
	}
}

// TestResolvePartialFill verifies the remainder is cancelled, the
// filled size flattened and entry commission charged to the chain.
func TestResolvePartialFill(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID:               "entry-1",
		Status:           delta.OrderStatusPending,
		Side:             delta.SideBuy,
		Size:             10,
		UnfilledSize:     4,
		PaidCommission:   "0.8",
		AverageFillPrice: "100.2",
	}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionResolved {
		t.Fatalf("Expected resolved disposition, got %d", out.Disposition)
	}
	if out.State.LastTradeOutcome != martingale.OutcomeCancelled {
		t.Errorf("Expected cancelled outcome, got %s", out.State.LastTradeOutcome)
	}
	if out.State.CumulativeFees != 0.8 {
		t.Errorf("Expected entry commission folded into fees, got %f", out.State.CumulativeFees)
	}
	if out.State.LastEntryPrice != 100.2 {
		t.Errorf("Expected recorded fill price 100.2, got %f", out.State.LastEntryPrice)
	}
	if len(gw.PlacedEntries) != 1 {
		t.Fatalf("Expected one flattening order, got %d", len(gw.PlacedEntries))
	}
	flat := gw.Orders[gw.PlacedEntries[0].ID]
	if flat.Side != delta.SideSell || flat.Size != 6 {
		t.Errorf("Expected sell of 6 to flatten, got %s %f", flat.Side, flat.Size)
	}
}

// TestSettleWin verifies a closed TP leg whose chain recovered resets
// to level 1 with the increments accumulated.
func TestSettleWin(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID: "entry-1", Status: delta.OrderStatusClosed, Side: delta.SideBuy, PaidCommission: "1",
	}
	gw.Orders["tp-1"] = &delta.OrderDetails{
		ID: "tp-1", Status: delta.OrderStatusClosed, Side: delta.SideSell,
		PaidCommission: "2", AverageFillPrice: "101.5",
		Meta: delta.OrderMeta{PnL: "50"},
	}
	gw.Orders["sl-1"] = &delta.OrderDetails{ID: "sl-1", Status: delta.OrderStatusCancelled}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionResolved {
		t.Fatalf("Expected resolved disposition, got %d", out.Disposition)
	}
	if out.State.LastTradeOutcome != martingale.OutcomeWin {
		t.Errorf("Expected win outcome, got %s", out.State.LastTradeOutcome)
	}
	if out.State.CurrentLevel != 1 {
		t.Errorf("Expected level reset to 1, got %d", out.State.CurrentLevel)
	}
	if out.State.AllTimePnL != 50 {
		t.Errorf("Expected all-time pnl 50, got %f", out.State.AllTimePnL)
	}
	if out.State.AllTimeFees != 3 {
		t.Errorf("Expected all-time fees 3, got %f", out.State.AllTimeFees)
	}
	if out.PnL != 50 || out.Fees != 3 {
		t.Errorf("Expected settlement pnl/fees 50/3, got %f/%f", out.PnL, out.Fees)
	}
	if out.ExitPrice != 101.5 {
		t.Errorf("Expected exit price 101.5, got %f", out.ExitPrice)
	}
}

// TestSettleLoss verifies a closed SL leg sizes the next attempt from
// the outstanding net debt.
func TestSettleLoss(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.TickerVal = &delta.Ticker{Symbol: "BTCUSD", MarkPrice: "100"}
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID: "entry-1", Status: delta.OrderStatusClosed, Side: delta.SideBuy, PaidCommission: "1",
	}
	gw.Orders["tp-1"] = &delta.OrderDetails{ID: "tp-1", Status: delta.OrderStatusCancelled}
	gw.Orders["sl-1"] = &delta.OrderDetails{
		ID: "sl-1", Status: delta.OrderStatusClosed, Side: delta.SideSell,
		PaidCommission: "2", AverageFillPrice: "98",
		Meta: delta.OrderMeta{PnL: "-40"},
	}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.State.LastTradeOutcome != martingale.OutcomeLoss {
		t.Errorf("Expected loss outcome, got %s", out.State.LastTradeOutcome)
	}
	if out.State.CurrentLevel != 2 {
		t.Errorf("Expected level 2 after loss, got %d", out.State.CurrentLevel)
	}
	// netDebt = -40 - 3 = -43; marginPerLot = 100*0.01/20 = 0.05;
	// next quantity = 1 + ceil(43/0.05) = 861
	if out.State.LastTradeQuantity != 861 {
		t.Errorf("Expected next quantity 861, got %f", out.State.LastTradeQuantity)
	}
	if out.State.PnL != -40 || out.State.CumulativeFees != 3 {
		t.Errorf("Expected chain pnl/fees -40/3, got %f/%f", out.State.PnL, out.State.CumulativeFees)
	}
}

// TestSettleBothLegsCancelled verifies the user-cancelled-everything
// path settles as a loss of the entry commission only.
func TestSettleBothLegsCancelled(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.TickerVal = &delta.Ticker{Symbol: "BTCUSD", MarkPrice: "100"}
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID: "entry-1", Status: delta.OrderStatusClosed, Side: delta.SideBuy, PaidCommission: "1",
	}
	gw.Orders["tp-1"] = &delta.OrderDetails{ID: "tp-1", Status: delta.OrderStatusCancelled}
	gw.Orders["sl-1"] = &delta.OrderDetails{ID: "sl-1", Status: delta.OrderStatusCancelled}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.State.LastTradeOutcome != martingale.OutcomeLoss {
		t.Errorf("Expected loss outcome, got %s", out.State.LastTradeOutcome)
	}
	if out.PnL != 0 {
		t.Errorf("Expected zero settlement pnl, got %f", out.PnL)
	}
	if out.Fees != 1 {
		t.Errorf("Expected fees equal to entry commission, got %f", out.Fees)
	}
	// netDebt = 0 - 1 = -1; next quantity = 1 + ceil(1/0.05) = 21
	if out.State.LastTradeQuantity != 21 {
		t.Errorf("Expected next quantity 21, got %f", out.State.LastTradeQuantity)
	}
}

// TestSettleLossWithoutMarkPriceDefers verifies a losing chain is left
// pending when the ticker carries no usable mark price. Recovery sizing
// divides by the mark, so settling here would persist an infinite
// quantity.
func TestSettleLossWithoutMarkPriceDefers(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.TickerVal = &delta.Ticker{Symbol: "BTCUSD", MarkPrice: ""}
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID: "entry-1", Status: delta.OrderStatusClosed, Side: delta.SideBuy, PaidCommission: "1",
	}
	gw.Orders["tp-1"] = &delta.OrderDetails{ID: "tp-1", Status: delta.OrderStatusCancelled}
	gw.Orders["sl-1"] = &delta.OrderDetails{
		ID: "sl-1", Status: delta.OrderStatusClosed, Side: delta.SideSell,
		PaidCommission: "2", AverageFillPrice: "98",
		Meta: delta.OrderMeta{PnL: "-40"},
	}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionUnchanged {
		t.Errorf("Expected unchanged disposition, got %d", out.Disposition)
	}
	if out.State.LastTradeOutcome != martingale.OutcomePending {
		t.Errorf("Expected state left pending, got %s", out.State.LastTradeOutcome)
	}
	if math.IsInf(out.State.LastTradeQuantity, 0) || math.IsNaN(out.State.LastTradeQuantity) {
		t.Errorf("Non-finite quantity persisted: %f", out.State.LastTradeQuantity)
	}
	if out.State.LastTradeQuantity != 1 {
		t.Errorf("Expected quantity untouched at 1, got %f", out.State.LastTradeQuantity)
	}
}

// TestSettleBothLegsCancelledWithoutMarkPriceDefers covers the same
// guard on the legs-cancelled settlement path.
func TestSettleBothLegsCancelledWithoutMarkPriceDefers(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.TickerVal = &delta.Ticker{Symbol: "BTCUSD", MarkPrice: "0"}
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID: "entry-1", Status: delta.OrderStatusClosed, Side: delta.SideBuy, PaidCommission: "1",
	}
	gw.Orders["tp-1"] = &delta.OrderDetails{ID: "tp-1", Status: delta.OrderStatusCancelled}
	gw.Orders["sl-1"] = &delta.OrderDetails{ID: "sl-1", Status: delta.OrderStatusCancelled}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionUnchanged {
		t.Errorf("Expected unchanged disposition, got %d", out.Disposition)
	}
	if out.State.LastTradeOutcome != martingale.OutcomePending {
		t.Errorf("Expected state left pending, got %s", out.State.LastTradeOutcome)
	}
}

// TestOpenPositionTrailsStop verifies a running position gets its stop
// tightened behind an agreeing closed candle.
func TestOpenPositionTrailsStop(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.TickerVal = &delta.Ticker{Symbol: "BTCUSD", MarkPrice: "103"}
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID: "entry-1", Status: delta.OrderStatusClosed, Side: delta.SideBuy, PaidCommission: "1",
	}
	gw.Positions = []delta.Position{{Size: 10, EntryPrice: "100"}}
	// Green closed candle with a low above the current stop (98)
	now := time.Now()
	gw.Candles["15m"] = []delta.Candle{
		{Timestamp: now.Add(-30 * time.Minute).UnixMilli(), Open: 100, High: 102, Low: 99.5, Close: 101.5},
		{Timestamp: now.Add(-15 * time.Minute).UnixMilli(), Open: 101.5, High: 103, Low: 101, Close: 102.5},
	}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionPositionOpen {
		t.Fatalf("Expected position-open disposition, got %d", out.Disposition)
	}
	if len(gw.SLUpdates) != 1 {
		t.Fatalf("Expected one stop update, got %d", len(gw.SLUpdates))
	}
	if gw.SLUpdates[0].NewStopPrice != 99.5 {
		t.Errorf("Expected new stop at candle low 99.5, got %f", gw.SLUpdates[0].NewStopPrice)
	}
	if out.State.LastSlPrice != 99.5 {
		t.Errorf("Expected state stop updated to 99.5, got %f", out.State.LastSlPrice)
	}
}

// TestOpenPositionStopNotLoosened verifies a candidate below the
// current stop never moves it.
func TestOpenPositionStopNotLoosened(t *testing.T) {
	gw := delta.NewMockGateway()
	gw.TickerVal = &delta.Ticker{Symbol: "BTCUSD", MarkPrice: "103"}
	gw.Orders["entry-1"] = &delta.OrderDetails{
		ID: "entry-1", Status: delta.OrderStatusClosed, Side: delta.SideBuy, PaidCommission: "1",
	}
	gw.Positions = []delta.Position{{Size: 10, EntryPrice: "100"}}
	now := time.Now()
	gw.Candles["15m"] = []delta.Candle{
		{Timestamp: now.Add(-30 * time.Minute).UnixMilli(), Open: 96, High: 98, Low: 95, Close: 97.5}, // low under the stop
		{Timestamp: now.Add(-15 * time.Minute).UnixMilli(), Open: 97.5, High: 103, Low: 97, Close: 102.5},
	}
	r := newTestReconciler(gw)

	out, err := r.Resolve(context.Background(), pendingState(), testConfig(), testMachine())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if out.Disposition != DispositionPositionOpen {
		t.Fatalf("Expected position-open disposition, got %d", out.Disposition)
	}
	if len(gw.SLUpdates) != 0 {
		t.Errorf("Expected no stop update, got %d", len(gw.SLUpdates))
	}
	if out.State.LastSlPrice != 98 {
		t.Errorf("Expected stop unchanged at 98, got %f", out.State.LastSlPrice)
	}
}
