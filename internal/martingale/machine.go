package martingale

import "math"

// Sizing holds the position-sizing parameters of one strategy config
type Sizing struct {
	LotSize             float64
	Leverage            float64
	InitialBaseQuantity float64
}

// Machine applies outcome transitions to martingale state. All methods
// take the state by value and return the updated copy; persistence is
// the caller's concern.
type Machine struct {
	sizing Sizing
}

// NewMachine creates a state machine for one strategy's sizing
func NewMachine(sizing Sizing) *Machine {
	return &Machine{sizing: sizing}
}

// Reset clears the per-trade fields back to level 1. The all-time
// accumulators survive.
func (m *Machine) Reset(s State) State {
	s.CurrentLevel = 1
	s.LastTradeOutcome = OutcomeNone
	s.LastEntryOrderID = ""
	s.LastStopLossOrderID = ""
	s.LastTakeProfitOrderID = ""
	s.LastEntryPrice = 0
	s.LastSlPrice = 0
	s.LastTpPrice = 0
	s.LastTradeQuantity = m.sizing.InitialBaseQuantity
	s.PnL = 0
	s.CumulativeFees = 0
	return s
}

// HandleWin closes out a winning chain: back to level 1 and base
// quantity, with the incremental pnl/fees folded into the accumulators.
func (m *Machine) HandleWin(s State, netPnl, fees, incrementalPnl, incrementalFees float64) State {
	out := m.Reset(s)
	out.CurrentLevel = 1
	out.LastTradeOutcome = OutcomeWin
	out.AllTimePnL = s.AllTimePnL + incrementalPnl
	out.AllTimeFees = s.AllTimeFees + incrementalFees
	return out
}

// HandleLoss sizes the next attempt to recover the accumulated debt.
// The next quantity is the base quantity plus enough lots for one full
// recovery at current margin requirements.
func (m *Machine) HandleLoss(s State, netDebt, pnl, fees, currentPrice, incrementalPnl, incrementalFees float64) State {
	targetAmount := math.Abs(netDebt)
	marginPerLot := currentPrice * m.sizing.LotSize / m.sizing.Leverage
	nextQty := m.sizing.InitialBaseQuantity + math.Ceil(targetAmount/marginPerLot)
	nextLevel := s.CurrentLevel + 1

	out := m.Reset(s)
	out.CurrentLevel = nextLevel
	out.LastTradeOutcome = OutcomeLoss
	out.LastTradeQuantity = nextQty
	out.PnL = pnl
	out.CumulativeFees = fees
	out.AllTimePnL = s.AllTimePnL + incrementalPnl
	out.AllTimeFees = s.AllTimeFees + incrementalFees
	return out
}

// MarkCancelled flags the attempt as cancelled. Level and quantity are
// untouched so the next cycle retries the same step.
func (m *Machine) MarkCancelled(s State) State {
	s.LastTradeOutcome = OutcomeCancelled
	return s
}
