package martingale

import "testing"

func testMachine() *Machine {
	return NewMachine(Sizing{
		LotSize:             0.01,
		Leverage:            20,
		InitialBaseQuantity: 1,
	})
}

func testState() State {
	s := NewState("cfg-1", "user-1", "BTCUSD", 27, 1)
	return s
}

// TestHandleWinResetsChain verifies a win returns the chain to level 1
// and base quantity while the all-time accumulators keep growing.
func TestHandleWinResetsChain(t *testing.T) {
	m := testMachine()

	s := testState()
	s.CurrentLevel = 3
	s.LastTradeQuantity = 42
	s.PnL = -120
	s.CumulativeFees = 8
	s.AllTimePnL = 10
	s.AllTimeFees = 5
	s.LastEntryOrderID = "e-1"
	s.LastStopLossOrderID = "sl-1"
	s.LastTakeProfitOrderID = "tp-1"

	out := m.HandleWin(s, 130, 11, 130, 3)

	if out.CurrentLevel != 1 {
		t.Errorf("Expected level 1 after win, got %d", out.CurrentLevel)
	}
	if out.LastTradeOutcome != OutcomeWin {
		t.Errorf("Expected outcome win, got %s", out.LastTradeOutcome)
	}
	if out.LastTradeQuantity != 1 {
		t.Errorf("Expected base quantity 1, got %f", out.LastTradeQuantity)
	}
	if out.PnL != 0 || out.CumulativeFees != 0 {
		t.Errorf("Expected chain pnl/fees reset, got %f/%f", out.PnL, out.CumulativeFees)
	}
	if out.AllTimePnL != 140 {
		t.Errorf("Expected all-time pnl 140, got %f", out.AllTimePnL)
	}
	if out.AllTimeFees != 8 {
		t.Errorf("Expected all-time fees 8, got %f", out.AllTimeFees)
	}
	if out.LastEntryOrderID != "" || out.LastStopLossOrderID != "" || out.LastTakeProfitOrderID != "" {
		t.Error("Expected order references cleared after win")
	}
}

// TestHandleLossSizesRecovery verifies loss sizing: base quantity plus
// enough lots to recover the debt at current margin requirements.
func TestHandleLossSizesRecovery(t *testing.T) {
	m := testMachine()

	s := testState()
	s.CurrentLevel = 1

	// marginPerLot = 100 * 0.01 / 20 = 0.05; ceil(85 / 0.05) = 1700
	out := m.HandleLoss(s, -85, -80, 5, 100, -80, 5)

	if out.CurrentLevel != 2 {
		t.Errorf("Expected level 2 after loss, got %d", out.CurrentLevel)
	}
	if out.LastTradeOutcome != OutcomeLoss {
		t.Errorf("Expected outcome loss, got %s", out.LastTradeOutcome)
	}
	if out.LastTradeQuantity != 1701 {
		t.Errorf("Expected next quantity 1701, got %f", out.LastTradeQuantity)
	}
	if out.PnL != -80 {
		t.Errorf("Expected chain pnl -80, got %f", out.PnL)
	}
	if out.CumulativeFees != 5 {
		t.Errorf("Expected chain fees 5, got %f", out.CumulativeFees)
	}
}

// TestHandleLossAccumulates verifies consecutive losses keep raising the
// level and folding increments into the all-time accumulators.
func TestHandleLossAccumulates(t *testing.T) {
	m := testMachine()

	s := testState()
	s = m.HandleLoss(s, -10, -9, 1, 100, -9, 1)
	s = m.HandleLoss(s, -25, -22, 3, 100, -13, 2)

	if s.CurrentLevel != 3 {
		t.Errorf("Expected level 3 after two losses, got %d", s.CurrentLevel)
	}
	if s.AllTimePnL != -22 {
		t.Errorf("Expected all-time pnl -22, got %f", s.AllTimePnL)
	}
	if s.AllTimeFees != 3 {
		t.Errorf("Expected all-time fees 3, got %f", s.AllTimeFees)
	}
}

// TestMarkCancelledPreservesProgression verifies cancellation only
// touches the outcome so the next cycle retries the same level.
func TestMarkCancelledPreservesProgression(t *testing.T) {
	m := testMachine()

	s := testState()
	s.CurrentLevel = 4
	s.LastTradeQuantity = 250
	s.PnL = -300
	s.CumulativeFees = 12

	out := m.MarkCancelled(s)

	if out.LastTradeOutcome != OutcomeCancelled {
		t.Errorf("Expected outcome cancelled, got %s", out.LastTradeOutcome)
	}
	if out.CurrentLevel != 4 {
		t.Errorf("Expected level preserved at 4, got %d", out.CurrentLevel)
	}
	if out.LastTradeQuantity != 250 {
		t.Errorf("Expected quantity preserved at 250, got %f", out.LastTradeQuantity)
	}
	if out.PnL != -300 || out.CumulativeFees != 12 {
		t.Errorf("Expected chain pnl/fees preserved, got %f/%f", out.PnL, out.CumulativeFees)
	}
}

// TestNewStateDefaults verifies the initial record starts at level 1
// with the configured base quantity.
func TestNewStateDefaults(t *testing.T) {
	s := NewState("cfg-1", "user-1", "ETHUSD", 3136, 2)

	if s.CurrentLevel != 1 {
		t.Errorf("Expected initial level 1, got %d", s.CurrentLevel)
	}
	if s.LastTradeOutcome != OutcomeNone {
		t.Errorf("Expected outcome none, got %s", s.LastTradeOutcome)
	}
	if s.LastTradeQuantity != 2 {
		t.Errorf("Expected initial quantity 2, got %f", s.LastTradeQuantity)
	}
	if s.IsPending() {
		t.Error("Fresh state should not be pending")
	}
}
