package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	// Build connection string
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	// Create connection pool
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// Per (user, symbol, product) martingale progression state.
		// All-time columns only ever grow; per-run columns reset on win.
		`CREATE TABLE IF NOT EXISTS martingale_states (
			id SERIAL PRIMARY KEY,
			config_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			product_id INTEGER NOT NULL,
			current_level INTEGER NOT NULL DEFAULT 1,
			last_trade_outcome VARCHAR(16) NOT NULL DEFAULT 'none',
			last_entry_order_id VARCHAR(64),
			last_take_profit_order_id VARCHAR(64),
			last_stop_loss_order_id VARCHAR(64),
			last_entry_price DECIMAL(20, 8),
			last_sl_price DECIMAL(20, 8),
			last_tp_price DECIMAL(20, 8),
			last_trade_quantity DECIMAL(20, 8) NOT NULL DEFAULT 0,
			pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			cumulative_fees DECIMAL(20, 8) NOT NULL DEFAULT 0,
			all_time_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			all_time_fees DECIMAL(20, 8) NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (config_id, user_id, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_martingale_states_user_symbol ON martingale_states(user_id, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_martingale_states_outcome ON martingale_states(last_trade_outcome)`,

		// Append-only record of every settled trade
		`CREATE TABLE IF NOT EXISTS executed_trades (
			id SERIAL PRIMARY KEY,
			config_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			product_id INTEGER NOT NULL,
			side VARCHAR(4) NOT NULL,
			level INTEGER NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8),
			exit_price DECIMAL(20, 8),
			outcome VARCHAR(16) NOT NULL,
			pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			fees DECIMAL(20, 8) NOT NULL DEFAULT 0,
			entry_order_id VARCHAR(64),
			executed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executed_trades_user_symbol ON executed_trades(user_id, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_executed_trades_executed_at ON executed_trades(executed_at)`,

		// Strategy configs the scheduler iterates over
		`CREATE TABLE IF NOT EXISTS strategy_configs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			product_id INTEGER NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			timeframe VARCHAR(8) NOT NULL,
			confirmation_timeframe VARCHAR(8) NOT NULL,
			structure_timeframe VARCHAR(8) NOT NULL,
			leverage DECIMAL(10, 2) NOT NULL,
			lot_size DECIMAL(20, 8) NOT NULL,
			initial_base_quantity DECIMAL(20, 8) NOT NULL,
			price_decimal_places INTEGER NOT NULL DEFAULT 2,
			trading_mode VARCHAR(16) NOT NULL DEFAULT 'balanced',
			min_candle_body_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			min_allowed_price_movement_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			max_allowed_price_movement_percent DECIMAL(10, 4) NOT NULL DEFAULT 0,
			take_profit_percent DECIMAL(10, 4) NOT NULL,
			sl_trigger_buffer_percent DECIMAL(10, 4) NOT NULL DEFAULT 0.05,
			sl_limit_buffer_percent DECIMAL(10, 4) NOT NULL DEFAULT 0.1,
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			is_testing BOOLEAN NOT NULL DEFAULT FALSE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_configs_enabled ON strategy_configs(enabled)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_configs_user ON strategy_configs(user_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
