package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/database"
	"delta-trading-bot/internal/delta"
	"delta-trading-bot/internal/events"
	"delta-trading-bot/internal/lock"
	"delta-trading-bot/internal/logging"
	"delta-trading-bot/internal/martingale"
	"delta-trading-bot/internal/reconcile"
	"delta-trading-bot/internal/regime"
)

// RunTradingCycle executes one full decision cycle for a strategy
// config. Exactly one cycle per (user, symbol, product) runs at a time;
// a busy lock makes this invocation a no-op.
//
// The pipeline is: acquire lock, fetch market data, reconcile any
// pending trade, evaluate the market regime across timeframes, validate
// price movement, place the entry and bracket, persist. Every exit path
// releases the lock.
func (b *TradingBot) RunTradingCycle(ctx context.Context, cfg *config.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	key := lock.CycleKey(cfg.UserID, cfg.Symbol, cfg.ProductID)
	lease, err := b.locker.Acquire(ctx, key, b.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			b.log.Debug("cycle lock busy, skipping", "key", key)
			return ErrLockBusy
		}
		return fmt.Errorf("%w: lock acquire: %v", ErrExternalCall, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := lease.Release(releaseCtx); relErr != nil {
			b.log.Warn("failed to release cycle lock, lease will expire", "key", key, "error", relErr)
		}
	}()

	log := logging.CycleContext(cfg.UserID, cfg.Symbol, cfg.ProductID)
	b.bus.PublishCycleStarted(cfg.UserID, cfg.Symbol, cfg.ProductID)

	now := time.Now()
	tuning := regime.TuningFor(regime.TradingMode(cfg.TradingMode), cfg.Timeframe, cfg.MinCandleBodyPercent)

	entryCandles, err := b.fetchHistory(ctx, cfg.Symbol, cfg.Timeframe, tuning.MinRequiredCandles, now)
	if err != nil {
		return err
	}

	target, err := SelectTargetCandle(entryCandles, now, cfg.Timeframe)
	if err != nil {
		b.skip(cfg, log, "no closed target candle")
		return err
	}

	if !IsCandleBodyAboveMinimum(target, cfg.MinCandleBodyPercent) {
		b.skip(cfg, log, "candle body below minimum")
		return nil
	}

	ticker, err := b.gateway.GetTicker(ctx, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("%w: ticker fetch: %v", ErrDataUnavailable, err)
	}
	currentPrice := ticker.Mark()
	if currentPrice == 0 {
		return fmt.Errorf("%w: ticker has no mark price", ErrDataUnavailable)
	}

	if !IsPriceMovingInCandleDirection(target, currentPrice) {
		b.skip(cfg, log, "price reversed against candle direction")
		return nil
	}

	state, err := b.store.GetOrCreateMartingaleState(ctx, cfg.ID, cfg.UserID, cfg.Symbol, cfg.ProductID, cfg.InitialBaseQuantity)
	if err != nil {
		return fmt.Errorf("%w: load state: %v", ErrStateConsistency, err)
	}

	machine := machineFor(cfg)

	if state.IsPending() {
		resolved, done, err := b.resolvePending(ctx, *state, cfg, machine, log)
		if err != nil {
			return err
		}
		state = &resolved
		if done {
			return nil
		}
	}

	if allowed, reason := b.evaluateRegime(ctx, cfg, target, entryCandles, tuning, now, log); !allowed {
		b.skip(cfg, log, reason)
		return nil
	}

	if !IsPriceMovementWithinRange(target, currentPrice, cfg.MinAllowedPriceMovementPercent, cfg.MaxAllowedPriceMovementPercent) {
		b.skip(cfg, log, "price movement outside configured band")
		return nil
	}

	if cfg.DryRun {
		log.Info("dry run, entry suppressed",
			"side", string(SideForCandle(target)),
			"quantity", state.LastTradeQuantity,
			"level", state.CurrentLevel)
		b.skip(cfg, log, "dry run")
		return nil
	}

	return b.placeEntry(ctx, cfg, state, target, log)
}

// fetchHistory pulls enough candles for the regime detector
func (b *TradingBot) fetchHistory(ctx context.Context, symbol, timeframe string, minCandles int, now time.Time) ([]delta.Candle, error) {
	startMs, endMs, err := HistoryWindow(now, timeframe, minCandles)
	if err != nil {
		return nil, err
	}

	candles, err := b.gateway.GetCandles(ctx, symbol, timeframe, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("%w: candle fetch %s/%s: %v", ErrDataUnavailable, symbol, timeframe, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s/%s", ErrDataUnavailable, symbol, timeframe)
	}

	return candles, nil
}

// resolvePending runs the reconciler and persists whatever it decides.
// done reports that the cycle must stop here (position still open, or
// resolution could not complete).
func (b *TradingBot) resolvePending(ctx context.Context, state martingale.State, cfg *config.StrategyConfig, machine *martingale.Machine, log *logging.Logger) (martingale.State, bool, error) {
	outcome, err := b.reconciler.Resolve(ctx, state, cfg, machine)
	if err != nil {
		log.Error("reconciliation failed", "error", err)
	}

	switch outcome.Disposition {
	case reconcile.DispositionUnchanged:
		return state, true, nil

	case reconcile.DispositionPositionOpen:
		if err := b.store.SaveMartingaleState(ctx, &outcome.State); err != nil {
			return state, true, fmt.Errorf("%w: save state after stop management: %v", ErrStateConsistency, err)
		}
		return outcome.State, true, nil

	default:
		if err := b.store.SaveMartingaleState(ctx, &outcome.State); err != nil {
			return state, true, fmt.Errorf("%w: save resolved state: %v", ErrStateConsistency, err)
		}
		b.recordSettled(ctx, cfg, state, outcome, log)
		return outcome.State, false, nil
	}
}

// recordSettled appends an executed-trade row for win/loss settlements
func (b *TradingBot) recordSettled(ctx context.Context, cfg *config.StrategyConfig, prior martingale.State, outcome reconcile.Outcome, log *logging.Logger) {
	switch outcome.State.LastTradeOutcome {
	case martingale.OutcomeWin, martingale.OutcomeLoss:
	default:
		return
	}

	trade := &database.ExecutedTrade{
		ConfigID:   cfg.ID,
		UserID:     cfg.UserID,
		Symbol:     cfg.Symbol,
		ProductID:  cfg.ProductID,
		Side:       string(outcome.Side),
		Level:      prior.CurrentLevel,
		Quantity:   prior.LastTradeQuantity,
		Outcome:    string(outcome.State.LastTradeOutcome),
		PnL:        outcome.PnL,
		Fees:       outcome.Fees,
		ExecutedAt: time.Now(),
	}
	if outcome.EntryPrice != 0 {
		p := outcome.EntryPrice
		trade.EntryPrice = &p
	}
	if outcome.ExitPrice != 0 {
		p := outcome.ExitPrice
		trade.ExitPrice = &p
	}
	if prior.LastEntryOrderID != "" {
		id := prior.LastEntryOrderID
		trade.EntryOrderID = &id
	}

	if err := b.trades.CreateExecutedTrade(ctx, trade); err != nil {
		// The state transition already committed; a missing audit row is
		// not worth failing the cycle over.
		log.Error("failed to record executed trade", "error", err)
	}
}

// evaluateRegime runs the three-timeframe alignment check
func (b *TradingBot) evaluateRegime(ctx context.Context, cfg *config.StrategyConfig, target delta.TargetCandle, entryCandles []delta.Candle, entryTuning regime.Tuning, now time.Time, log *logging.Logger) (bool, string) {
	confTuning := regime.TuningFor(regime.TradingMode(cfg.TradingMode), cfg.ConfirmationTimeframe, cfg.MinCandleBodyPercent)
	structTuning := regime.TuningFor(regime.TradingMode(cfg.TradingMode), cfg.StructureTimeframe, cfg.MinCandleBodyPercent)

	confCandles, err := b.fetchHistory(ctx, cfg.Symbol, cfg.ConfirmationTimeframe, confTuning.MinRequiredCandles, now)
	if err != nil {
		return false, "confirmation candles unavailable"
	}
	structCandles, err := b.fetchHistory(ctx, cfg.Symbol, cfg.StructureTimeframe, structTuning.MinRequiredCandles, now)
	if err != nil {
		return false, "structure candles unavailable"
	}

	result := regime.EvaluateAlignment(target,
		regime.AlignmentInput{Timeframe: cfg.Timeframe, Candles: entryCandles, Tuning: entryTuning},
		regime.AlignmentInput{Timeframe: cfg.ConfirmationTimeframe, Candles: confCandles, Tuning: confTuning},
		regime.AlignmentInput{Timeframe: cfg.StructureTimeframe, Candles: structCandles, Tuning: structTuning},
	)

	b.bus.PublishRegimeEvaluated(cfg.Symbol, cfg.Timeframe, result.EntryScore, result.IsAllowed, result.Entry.BreakoutActive)
	log.Info("regime evaluated",
		"entry_score", result.EntryScore,
		"confirmation_score", result.ConfirmationScore,
		"structure_score", result.StructureScore,
		"direction", string(result.Direction),
		"allowed", result.IsAllowed)

	if !result.IsAllowed {
		return false, "market regime disallows entry"
	}
	return true, ""
}

// placeEntry submits the market entry and its protective bracket, then
// persists the pending state.
func (b *TradingBot) placeEntry(ctx context.Context, cfg *config.StrategyConfig, state *martingale.State, target delta.TargetCandle, log *logging.Logger) error {
	qty := state.LastTradeQuantity
	if qty <= 0 {
		return fmt.Errorf("%w: invalid trade quantity %v", ErrValidation, qty)
	}
	if cfg.IsTesting {
		qty = 1
	}

	side := SideForCandle(target)

	entry, err := b.gateway.PlaceMarketOrder(ctx, cfg.ProductID, cfg.Symbol, side, qty)
	if err != nil {
		return fmt.Errorf("%w: entry order: %v", ErrExternalCall, err)
	}

	entryPrice := entry.AverageFillPrice
	tp := CalculateTakeProfit(entryPrice, side, cfg.TakeProfitPercent, cfg.PriceDecimalPlaces)
	sl := StopLossForCandle(target)
	if sl == 0 {
		return fmt.Errorf("%w: invalid stop loss price from target candle", ErrValidation)
	}

	b.bus.PublishOrderPlaced(entry.ID, cfg.Symbol, string(side), qty, entryPrice, state.CurrentLevel)
	log.Info("entry placed",
		"order_id", entry.ID,
		"side", string(side),
		"quantity", qty,
		"fill_price", entryPrice,
		"level", state.CurrentLevel)

	bracket, err := b.gateway.PlaceBracketOrder(ctx, delta.BracketRequest{
		ProductID:            cfg.ProductID,
		Symbol:               cfg.Symbol,
		Side:                 side,
		TakeProfit:           tp,
		StopLoss:             sl,
		TriggerBufferPercent: cfg.SLTriggerBufferPercent,
		LimitBufferPercent:   cfg.SLLimitBufferPercent,
		PriceDecimals:        cfg.PriceDecimalPlaces,
	})
	if err != nil {
		// Entry is live but unprotected. Persist pending with the entry
		// order so the reconciler picks it up next cycle.
		state.LastTradeOutcome = martingale.OutcomePending
		state.LastEntryOrderID = entry.ID
		state.LastEntryPrice = entryPrice
		state.LastTradeQuantity = qty
		if saveErr := b.store.SaveMartingaleState(ctx, state); saveErr != nil {
			log.Error("failed to persist pending state after bracket failure", "error", saveErr)
		}
		return fmt.Errorf("%w: bracket order: %v", ErrExternalCall, err)
	}

	b.bus.PublishBracketPlaced(cfg.Symbol, bracket.TakeProfitOrderID, bracket.StopLossOrderID, tp, sl)

	state.LastTradeOutcome = martingale.OutcomePending
	state.LastEntryOrderID = entry.ID
	state.LastTakeProfitOrderID = bracket.TakeProfitOrderID
	state.LastStopLossOrderID = bracket.StopLossOrderID
	state.LastEntryPrice = entryPrice
	state.LastSlPrice = sl
	state.LastTpPrice = tp
	state.LastTradeQuantity = qty

	if err := b.store.SaveMartingaleState(ctx, state); err != nil {
		return fmt.Errorf("%w: persist pending state: %v", ErrStateConsistency, err)
	}

	log.Info("cycle completed with new entry", "tp", tp, "sl", sl)
	b.bus.Publish(events.Event{
		Type: events.EventCycleCompleted,
		Data: map[string]interface{}{
			"user_id": cfg.UserID,
			"symbol":  cfg.Symbol,
			"side":    string(side),
			"level":   state.CurrentLevel,
		},
	})
	return nil
}

func (b *TradingBot) skip(cfg *config.StrategyConfig, log *logging.Logger, reason string) {
	log.Info("cycle skipped", "reason", reason)
	b.bus.PublishCycleSkipped(cfg.UserID, cfg.Symbol, reason)
}
