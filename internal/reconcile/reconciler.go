package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/delta"
	"delta-trading-bot/internal/events"
	"delta-trading-bot/internal/logging"
	"delta-trading-bot/internal/martingale"
)

// Disposition tells the cycle what to do after a pending state was
// examined.
type Disposition int

const (
	// DispositionResolved means the trade settled and the state now
	// carries a terminal outcome. The cycle may place a new entry.
	DispositionResolved Disposition = iota

	// DispositionPositionOpen means the position is still running. The
	// stop loss has been managed and the cycle must not trade.
	DispositionPositionOpen

	// DispositionUnchanged means resolution could not complete (an
	// exchange call failed) and the state was left pending for the next
	// cycle to retry.
	DispositionUnchanged
)

// slBufferPercent pads the trailing stop away from the current price so
// a stop is never placed inside the spread.
const slBufferPercent = 0.1

// Outcome is the full result of one reconciliation pass
type Outcome struct {
	Disposition Disposition
	State       martingale.State

	// Settlement details, populated when Disposition is resolved with a
	// win or loss
	Side       delta.OrderSide
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Fees       float64
}

// Reconciler resolves a pending martingale state against the exchange
type Reconciler struct {
	gateway delta.Gateway
	bus     *events.EventBus
	log     *logging.Logger
}

// New creates a reconciler
func New(gateway delta.Gateway, bus *events.EventBus) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		bus:     bus,
		log:     logging.WithComponent("reconcile"),
	}
}

// Resolve inspects the entry order recorded on a pending state and
// settles the state accordingly. It never places a new entry; it only
// brings the persisted record back in line with exchange reality.
func (r *Reconciler) Resolve(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, machine *martingale.Machine) (Outcome, error) {
	if state.LastEntryOrderID == "" {
		// Pending with no entry order is unrecoverable bookkeeping
		// damage from a crashed cycle. Treat as cancelled.
		r.log.Warn("pending state has no entry order, marking cancelled",
			"symbol", state.Symbol, "user_id", state.UserID)
		return Outcome{Disposition: DispositionResolved, State: machine.MarkCancelled(state)}, nil
	}

	entry, err := r.gateway.GetOrder(ctx, state.LastEntryOrderID)
	if err != nil {
		return Outcome{Disposition: DispositionUnchanged, State: state},
			fmt.Errorf("failed to fetch entry order %s: %w", state.LastEntryOrderID, err)
	}

	log := logging.ReconcileContext(state.Symbol, entry.ID, entry.Status)

	switch entry.Status {
	case delta.OrderStatusOpen:
		// The entry never filled. Clear the book and retry the level.
		if err := r.gateway.CancelAllOpenOrders(ctx, cfg.ProductID); err != nil {
			log.Error("failed to cancel unfilled entry, retrying next cycle", "error", err)
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}
		log.Info("unfilled entry cancelled")
		return Outcome{Disposition: DispositionResolved, State: machine.MarkCancelled(state)}, nil

	case delta.OrderStatusCancelled:
		log.Info("entry was cancelled on the exchange")
		return Outcome{Disposition: DispositionResolved, State: machine.MarkCancelled(state)}, nil

	case delta.OrderStatusPending:
		return r.resolvePartialFill(ctx, state, cfg, machine, entry, log)

	case delta.OrderStatusClosed:
		return r.resolveFilledEntry(ctx, state, cfg, machine, entry, log)

	default:
		log.Warn("entry order in unknown status, leaving pending")
		return Outcome{Disposition: DispositionUnchanged, State: state}, nil
	}
}

// resolvePartialFill unwinds a partially filled entry: cancel whatever
// is still resting, flatten the residual position at market, and charge
// the entry commission to the chain.
func (r *Reconciler) resolvePartialFill(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, machine *martingale.Machine, entry *delta.OrderDetails, log *logging.Logger) (Outcome, error) {
	if err := r.gateway.CancelAllOpenOrders(ctx, cfg.ProductID); err != nil {
		log.Error("failed to cancel partial fill remainder", "error", err)
		return Outcome{Disposition: DispositionUnchanged, State: state}, nil
	}

	filled := entry.Size - entry.UnfilledSize
	if filled > 0 {
		if _, err := r.gateway.PlaceMarketOrder(ctx, cfg.ProductID, cfg.Symbol, entry.Side.Opposite(), filled); err != nil {
			log.Error("failed to flatten partial fill", "error", err, "filled", filled)
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}
	}

	out := machine.MarkCancelled(state)
	out.CumulativeFees = state.CumulativeFees + entry.Commission()
	if price, err := entry.ResolveFillPrice(); err == nil {
		out.LastEntryPrice = price
	}

	log.Info("partial fill unwound", "filled", filled, "fees", entry.Commission())
	return Outcome{Disposition: DispositionResolved, State: out}, nil
}

// resolveFilledEntry handles a fully filled entry: either the position
// is still open (trail the stop) or it has been closed by one of the
// bracket legs (settle win/loss).
func (r *Reconciler) resolveFilledEntry(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, machine *martingale.Machine, entry *delta.OrderDetails, log *logging.Logger) (Outcome, error) {
	positions, err := r.gateway.GetPositions(ctx, cfg.ProductID)
	if err != nil {
		log.Error("failed to fetch positions", "error", err)
		return Outcome{Disposition: DispositionUnchanged, State: state}, nil
	}

	for _, p := range positions {
		if p.Size != 0 {
			newState, err := r.manageOpenPosition(ctx, state, cfg, entry, log)
			if err != nil {
				return Outcome{Disposition: DispositionPositionOpen, State: state}, err
			}
			return Outcome{Disposition: DispositionPositionOpen, State: newState}, nil
		}
	}

	return r.settleClosedPosition(ctx, state, cfg, machine, entry, log)
}

// manageOpenPosition trails the stop loss behind the most recent closed
// candle that agrees with the position direction. An unchanged result is
// a no-op; a failed update falls back to re-placing the whole bracket.
func (r *Reconciler) manageOpenPosition(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, entry *delta.OrderDetails, log *logging.Logger) (martingale.State, error) {
	candidate, ok, err := r.trailingStopCandidate(ctx, state, cfg, entry.Side)
	if err != nil {
		return state, err
	}
	if !ok {
		log.Debug("no trailing stop candidate on last candle")
		return state, nil
	}

	if state.LastStopLossOrderID == "" {
		return r.replaceBracket(ctx, state, cfg, entry.Side, candidate, log)
	}

	update, err := r.gateway.UpdateStopLoss(ctx, delta.StopLossRequest{
		OrderID:              state.LastStopLossOrderID,
		OldLimitPrice:        state.LastSlPrice,
		ProductID:            cfg.ProductID,
		Symbol:               cfg.Symbol,
		Side:                 entry.Side,
		NewStopPrice:         candidate,
		TriggerBufferPercent: cfg.SLTriggerBufferPercent,
		LimitBufferPercent:   cfg.SLLimitBufferPercent,
		PriceDecimals:        cfg.PriceDecimalPlaces,
	})
	if err != nil {
		log.Warn("stop loss update failed, re-placing bracket", "error", err)
		return r.replaceBracket(ctx, state, cfg, entry.Side, candidate, log)
	}

	if update.IsUnchanged {
		return state, nil
	}

	r.bus.PublishStopLossMoved(cfg.Symbol, state.LastSlPrice, update.NewLimitPrice)
	log.Info("trailing stop moved", "old", state.LastSlPrice, "new", update.NewLimitPrice)

	state.LastSlPrice = update.NewLimitPrice
	return state, nil
}

// trailingStopCandidate derives the new stop price from the last closed
// candle on the entry timeframe. Only candles whose color agrees with
// the position direction move the stop, and the result is clamped so it
// never crosses the current price.
func (r *Reconciler) trailingStopCandidate(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, side delta.OrderSide) (float64, bool, error) {
	dur, err := timeframeDuration(cfg.Timeframe)
	if err != nil {
		return 0, false, err
	}

	now := time.Now()
	end := now.UnixMilli()
	start := now.Add(-3 * dur).UnixMilli()

	candles, err := r.gateway.GetCandles(ctx, cfg.Symbol, cfg.Timeframe, start, end)
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch candles for trailing stop: %w", err)
	}
	if len(candles) < 2 {
		return 0, false, nil
	}

	// Last fully closed candle, not the in-progress one
	last := candles[len(candles)-2]
	lastColor := delta.NewTargetCandle(last).Color

	ticker, err := r.gateway.GetTicker(ctx, cfg.Symbol)
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch ticker for trailing stop: %w", err)
	}
	mark := ticker.Mark()
	if mark == 0 {
		return 0, false, nil
	}

	if side == delta.SideBuy {
		if lastColor != delta.ColorGreen {
			return 0, false, nil
		}
		ceiling := mark * (1 - slBufferPercent/100)
		candidate := math.Min(last.Low, ceiling)
		// Only ever tighten the stop
		if state.LastSlPrice != 0 && candidate <= state.LastSlPrice {
			return 0, false, nil
		}
		return candidate, true, nil
	}

	if lastColor != delta.ColorRed {
		return 0, false, nil
	}
	floor := mark * (1 + slBufferPercent/100)
	candidate := math.Max(last.High, floor)
	if state.LastSlPrice != 0 && candidate >= state.LastSlPrice {
		return 0, false, nil
	}
	return candidate, true, nil
}

// replaceBracket re-creates the TP/SL pair after a lost or failed stop
// order so the position is never left unprotected
func (r *Reconciler) replaceBracket(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, side delta.OrderSide, stopPrice float64, log *logging.Logger) (martingale.State, error) {
	if state.LastTpPrice == 0 {
		return state, fmt.Errorf("cannot re-place bracket without a recorded take profit price")
	}

	res, err := r.gateway.PlaceBracketOrder(ctx, delta.BracketRequest{
		ProductID:            cfg.ProductID,
		Symbol:               cfg.Symbol,
		Side:                 side,
		TakeProfit:           state.LastTpPrice,
		StopLoss:             stopPrice,
		TriggerBufferPercent: cfg.SLTriggerBufferPercent,
		LimitBufferPercent:   cfg.SLLimitBufferPercent,
		PriceDecimals:        cfg.PriceDecimalPlaces,
	})
	if err != nil {
		return state, fmt.Errorf("failed to re-place bracket: %w", err)
	}

	log.Info("bracket re-placed", "tp_order_id", res.TakeProfitOrderID, "sl_order_id", res.StopLossOrderID)
	r.bus.PublishBracketPlaced(cfg.Symbol, res.TakeProfitOrderID, res.StopLossOrderID, state.LastTpPrice, stopPrice)

	state.LastTakeProfitOrderID = res.TakeProfitOrderID
	state.LastStopLossOrderID = res.StopLossOrderID
	state.LastSlPrice = stopPrice
	return state, nil
}

// settleClosedPosition folds the closing leg's pnl and fees into the
// chain and applies the win/loss transition. Net recovery decides the
// outcome: a chain that is whole again is a win even if the stop fired.
func (r *Reconciler) settleClosedPosition(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, machine *martingale.Machine, entry *delta.OrderDetails, log *logging.Logger) (Outcome, error) {
	var tpOrder, slOrder *delta.OrderDetails
	var err error

	if state.LastTakeProfitOrderID != "" {
		tpOrder, err = r.gateway.GetOrder(ctx, state.LastTakeProfitOrderID)
		if err != nil {
			log.Error("failed to fetch take profit order", "error", err)
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}
	}
	if state.LastStopLossOrderID != "" {
		slOrder, err = r.gateway.GetOrder(ctx, state.LastStopLossOrderID)
		if err != nil {
			log.Error("failed to fetch stop loss order", "error", err)
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}
	}

	closing := closingOrder(tpOrder, slOrder)
	entryCommission := entry.Commission()

	if closing == nil {
		// Both bracket legs cancelled by the user with the position
		// already flat. The trade produced nothing but entry fees.
		chainPnl := state.PnL
		chainFees := state.CumulativeFees + entryCommission
		netDebt := chainPnl - chainFees

		ticker, err := r.gateway.GetTicker(ctx, cfg.Symbol)
		if err != nil {
			log.Error("failed to fetch ticker for settlement", "error", err)
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}
		mark := ticker.Mark()
		if mark <= 0 {
			// Recovery sizing divides by the mark price. Defer rather
			// than persist a non-finite quantity.
			log.Error("ticker has no mark price, deferring settlement")
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}

		newState := machine.HandleLoss(state, netDebt, chainPnl, chainFees, mark, 0, entryCommission)
		log.Info("both bracket legs cancelled, settled as loss",
			"net_debt", netDebt, "next_level", newState.CurrentLevel)
		r.bus.PublishOutcomeResolved(state.UserID, state.Symbol, string(newState.LastTradeOutcome), 0, entryCommission, newState.CurrentLevel)

		return Outcome{
			Disposition: DispositionResolved,
			State:       newState,
			Side:        entry.Side,
			EntryPrice:  state.LastEntryPrice,
			Fees:        entryCommission,
		}, nil
	}

	tradePnl := closing.MetaPnL()
	tradeFees := entryCommission + closing.Commission()

	chainPnl := state.PnL + tradePnl
	chainFees := state.CumulativeFees + tradeFees
	netDebt := chainPnl - chainFees

	exitPrice, _ := closing.ResolveFillPrice()

	var newState martingale.State
	if netDebt >= 0 {
		newState = machine.HandleWin(state, chainPnl, chainFees, tradePnl, tradeFees)
	} else {
		ticker, err := r.gateway.GetTicker(ctx, cfg.Symbol)
		if err != nil {
			log.Error("failed to fetch ticker for settlement", "error", err)
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}
		mark := ticker.Mark()
		if mark <= 0 {
			log.Error("ticker has no mark price, deferring settlement")
			return Outcome{Disposition: DispositionUnchanged, State: state}, nil
		}
		newState = machine.HandleLoss(state, netDebt, chainPnl, chainFees, mark, tradePnl, tradeFees)
	}

	log.Info("trade settled",
		"outcome", string(newState.LastTradeOutcome),
		"trade_pnl", tradePnl,
		"trade_fees", tradeFees,
		"net_debt", netDebt,
		"next_level", newState.CurrentLevel,
		"next_quantity", newState.LastTradeQuantity)
	r.bus.PublishOutcomeResolved(state.UserID, state.Symbol, string(newState.LastTradeOutcome), tradePnl, tradeFees, newState.CurrentLevel)

	return Outcome{
		Disposition: DispositionResolved,
		State:       newState,
		Side:        entry.Side,
		EntryPrice:  state.LastEntryPrice,
		ExitPrice:   exitPrice,
		PnL:         tradePnl,
		Fees:        tradeFees,
	}, nil
}

// closingOrder picks whichever bracket leg actually closed the position
func closingOrder(tp, sl *delta.OrderDetails) *delta.OrderDetails {
	if tp != nil && tp.Status == delta.OrderStatusClosed {
		return tp
	}
	if sl != nil && sl.Status == delta.OrderStatusClosed {
		return sl
	}
	return nil
}

// timeframeDuration converts a timeframe label to its duration
func timeframeDuration(tf string) (time.Duration, error) {
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
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
}
