package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delta-trading-bot/config"

	"github.com/jackc/pgx/v5"
)

// ==================== STRATEGY CONFIGS ====================

// UpsertStrategyConfig creates or replaces a strategy config row
func (db *DB) UpsertStrategyConfig(ctx context.Context, sc *config.StrategyConfig) error {
	query := `
		INSERT INTO strategy_configs (
			id, user_id, product_id, symbol, timeframe, confirmation_timeframe,
			structure_timeframe, leverage, lot_size, initial_base_quantity,
			price_decimal_places, trading_mode, min_candle_body_percent,
			min_allowed_price_movement_percent, max_allowed_price_movement_percent,
			take_profit_percent, sl_trigger_buffer_percent, sl_limit_buffer_percent,
			dry_run, is_testing, enabled, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			timeframe = EXCLUDED.timeframe,
			confirmation_timeframe = EXCLUDED.confirmation_timeframe,
			structure_timeframe = EXCLUDED.structure_timeframe,
			leverage = EXCLUDED.leverage,
			lot_size = EXCLUDED.lot_size,
			initial_base_quantity = EXCLUDED.initial_base_quantity,
			price_decimal_places = EXCLUDED.price_decimal_places,
			trading_mode = EXCLUDED.trading_mode,
			min_candle_body_percent = EXCLUDED.min_candle_body_percent,
			min_allowed_price_movement_percent = EXCLUDED.min_allowed_price_movement_percent,
			max_allowed_price_movement_percent = EXCLUDED.max_allowed_price_movement_percent,
			take_profit_percent = EXCLUDED.take_profit_percent,
			sl_trigger_buffer_percent = EXCLUDED.sl_trigger_buffer_percent,
			sl_limit_buffer_percent = EXCLUDED.sl_limit_buffer_percent,
			dry_run = EXCLUDED.dry_run,
			is_testing = EXCLUDED.is_testing,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`

	now := time.Now()
	_, err := db.Pool.Exec(ctx, query,
		sc.ID,
		sc.UserID,
		sc.ProductID,
		sc.Symbol,
		sc.Timeframe,
		sc.ConfirmationTimeframe,
		sc.StructureTimeframe,
		sc.Leverage,
		sc.LotSize,
		sc.InitialBaseQuantity,
		sc.PriceDecimalPlaces,
		sc.TradingMode,
		sc.MinCandleBodyPercent,
		sc.MinAllowedPriceMovementPercent,
		sc.MaxAllowedPriceMovementPercent,
		sc.TakeProfitPercent,
		sc.SLTriggerBufferPercent,
		sc.SLLimitBufferPercent,
		sc.DryRun,
		sc.IsTesting,
		sc.Enabled,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert strategy config: %w", err)
	}

	return nil
}

// GetEnabledStrategyConfigs returns a page of enabled configs in stable
// order. The scheduler walks pages until a short page signals the end.
func (db *DB) GetEnabledStrategyConfigs(ctx context.Context, limit, offset int) ([]*config.StrategyConfig, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, product_id, symbol, timeframe, confirmation_timeframe,
			structure_timeframe, leverage, lot_size, initial_base_quantity,
			price_decimal_places, trading_mode, min_candle_body_percent,
			min_allowed_price_movement_percent, max_allowed_price_movement_percent,
			take_profit_percent, sl_trigger_buffer_percent, sl_limit_buffer_percent,
			dry_run, is_testing, enabled
		FROM strategy_configs
		WHERE enabled = TRUE
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy configs: %w", err)
	}
	defer rows.Close()

	var configs []*config.StrategyConfig
	for rows.Next() {
		var sc config.StrategyConfig
		if err := rows.Scan(
			&sc.ID,
			&sc.UserID,
			&sc.ProductID,
			&sc.Symbol,
			&sc.Timeframe,
			&sc.ConfirmationTimeframe,
			&sc.StructureTimeframe,
			&sc.Leverage,
			&sc.LotSize,
			&sc.InitialBaseQuantity,
			&sc.PriceDecimalPlaces,
			&sc.TradingMode,
			&sc.MinCandleBodyPercent,
			&sc.MinAllowedPriceMovementPercent,
			&sc.MaxAllowedPriceMovementPercent,
			&sc.TakeProfitPercent,
			&sc.SLTriggerBufferPercent,
			&sc.SLLimitBufferPercent,
			&sc.DryRun,
			&sc.IsTesting,
			&sc.Enabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan strategy config: %w", err)
		}
		configs = append(configs, &sc)
	}

	return configs, rows.Err()
}

// GetStrategyConfig loads one config by ID
func (db *DB) GetStrategyConfig(ctx context.Context, id string) (*config.StrategyConfig, error) {
	query := `
		SELECT id, user_id, product_id, symbol, timeframe, confirmation_timeframe,
			structure_timeframe, leverage, lot_size, initial_base_quantity,
			price_decimal_places, trading_mode, min_candle_body_percent,
			min_allowed_price_movement_percent, max_allowed_price_movement_percent,
			take_profit_percent, sl_trigger_buffer_percent, sl_limit_buffer_percent,
			dry_run, is_testing, enabled
		FROM strategy_configs
		WHERE id = $1`

	var sc config.StrategyConfig
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&sc.ID,
		&sc.UserID,
		&sc.ProductID,
		&sc.Symbol,
		&sc.Timeframe,
		&sc.ConfirmationTimeframe,
		&sc.StructureTimeframe,
		&sc.Leverage,
		&sc.LotSize,
		&sc.InitialBaseQuantity,
		&sc.PriceDecimalPlaces,
		&sc.TradingMode,
		&sc.MinCandleBodyPercent,
		&sc.MinAllowedPriceMovementPercent,
		&sc.MaxAllowedPriceMovementPercent,
		&sc.TakeProfitPercent,
		&sc.SLTriggerBufferPercent,
		&sc.SLLimitBufferPercent,
		&sc.DryRun,
		&sc.IsTesting,
		&sc.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get strategy config %s: %w", id, err)
	}

	return &sc, nil
}
