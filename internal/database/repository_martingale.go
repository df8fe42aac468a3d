package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delta-trading-bot/internal/martingale"

	"github.com/jackc/pgx/v5"
)

// ErrStateMismatch indicates a persisted state no longer matches the
// identity the update targeted. The write is discarded so two processes
// never fold conflicting outcomes into the same progression.
var ErrStateMismatch = errors.New("martingale state identity mismatch")

// ==================== MARTINGALE STATES ====================

// GetOrCreateMartingaleState loads the state for a config, inserting a
// fresh level-1 row when none exists yet.
func (db *DB) GetOrCreateMartingaleState(ctx context.Context, configID, userID, symbol string, productID int, initialQuantity float64) (*martingale.State, error) {
	state, err := db.GetMartingaleState(ctx, configID, userID, symbol)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	fresh := martingale.NewState(configID, userID, symbol, productID, initialQuantity)

	query := `
		INSERT INTO martingale_states (
			config_id, user_id, symbol, product_id, current_level, last_trade_outcome,
			last_trade_quantity, pnl, cumulative_fees, all_time_pnl, all_time_fees,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (config_id, user_id, symbol) DO NOTHING`

	now := time.Now()
	_, err = db.Pool.Exec(ctx, query,
		fresh.ConfigID,
		fresh.UserID,
		fresh.Symbol,
		fresh.ProductID,
		fresh.CurrentLevel,
		string(fresh.LastTradeOutcome),
		fresh.LastTradeQuantity,
		fresh.PnL,
		fresh.CumulativeFees,
		fresh.AllTimePnL,
		fresh.AllTimeFees,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create martingale state: %w", err)
	}

	// Re-read so a concurrent insert wins consistently
	return db.GetMartingaleState(ctx, configID, userID, symbol)
}

// GetMartingaleState loads the state row for one config identity
func (db *DB) GetMartingaleState(ctx context.Context, configID, userID, symbol string) (*martingale.State, error) {
	query := `
		SELECT config_id, user_id, symbol, product_id, current_level, last_trade_outcome,
			last_entry_order_id, last_take_profit_order_id, last_stop_loss_order_id,
			last_entry_price, last_sl_price, last_tp_price,
			last_trade_quantity, pnl, cumulative_fees, all_time_pnl, all_time_fees,
			created_at, updated_at
		FROM martingale_states
		WHERE config_id = $1 AND user_id = $2 AND symbol = $3`

	var s martingale.State
	var outcome string
	var entryOrderID, tpOrderID, slOrderID *string
	var entryPrice, slPrice, tpPrice *float64

	err := db.Pool.QueryRow(ctx, query, configID, userID, symbol).Scan(
		&s.ConfigID,
		&s.UserID,
		&s.Symbol,
		&s.ProductID,
		&s.CurrentLevel,
		&outcome,
		&entryOrderID,
		&tpOrderID,
		&slOrderID,
		&entryPrice,
		&slPrice,
		&tpPrice,
		&s.LastTradeQuantity,
		&s.PnL,
		&s.CumulativeFees,
		&s.AllTimePnL,
		&s.AllTimeFees,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get martingale state: %w", err)
	}

	s.LastTradeOutcome = martingale.Outcome(outcome)
	if entryOrderID != nil {
		s.LastEntryOrderID = *entryOrderID
	}
	if tpOrderID != nil {
		s.LastTakeProfitOrderID = *tpOrderID
	}
	if slOrderID != nil {
		s.LastStopLossOrderID = *slOrderID
	}
	if entryPrice != nil {
		s.LastEntryPrice = *entryPrice
	}
	if slPrice != nil {
		s.LastSlPrice = *slPrice
	}
	if tpPrice != nil {
		s.LastTpPrice = *tpPrice
	}

	return &s, nil
}

// SaveMartingaleState writes all mutable fields back, keyed strictly by
// the identity triple. Zero rows updated means the row changed identity
// underneath us and the write is rejected with ErrStateMismatch.
func (db *DB) SaveMartingaleState(ctx context.Context, s *martingale.State) error {
	query := `
		UPDATE martingale_states SET
			current_level = $4,
			last_trade_outcome = $5,
			last_entry_order_id = $6,
			last_take_profit_order_id = $7,
			last_stop_loss_order_id = $8,
			last_entry_price = $9,
			last_sl_price = $10,
			last_tp_price = $11,
			last_trade_quantity = $12,
			pnl = $13,
			cumulative_fees = $14,
			all_time_pnl = $15,
			all_time_fees = $16,
			updated_at = $17
		WHERE config_id = $1 AND user_id = $2 AND symbol = $3`

	tag, err := db.Pool.Exec(ctx, query,
		s.ConfigID,
		s.UserID,
		s.Symbol,
		s.CurrentLevel,
		string(s.LastTradeOutcome),
		nullIfEmpty(s.LastEntryOrderID),
		nullIfEmpty(s.LastTakeProfitOrderID),
		nullIfEmpty(s.LastStopLossOrderID),
		nullIfZero(s.LastEntryPrice),
		nullIfZero(s.LastSlPrice),
		nullIfZero(s.LastTpPrice),
		s.LastTradeQuantity,
		s.PnL,
		s.CumulativeFees,
		s.AllTimePnL,
		s.AllTimeFees,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save martingale state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateMismatch
	}

	return nil
}

// ListPendingStates returns all states currently awaiting reconciliation
func (db *DB) ListPendingStates(ctx context.Context) ([]*martingale.State, error) {
	query := `
		SELECT config_id, user_id, symbol
		FROM martingale_states
		WHERE last_trade_outcome = 'pending'
		ORDER BY updated_at ASC`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending states: %w", err)
	}
	defer rows.Close()

	type key struct {
		configID, userID, symbol string
	}
	var keys []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.configID, &k.userID, &k.symbol); err != nil {
			return nil, fmt.Errorf("failed to scan pending state key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var states []*martingale.State
	for _, k := range keys {
		state, err := db.GetMartingaleState(ctx, k.configID, k.userID, k.symbol)
		if err != nil {
			return nil, err
		}
		if state == nil {
			continue
		}
		states = append(states, state)
	}

	return states, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}
