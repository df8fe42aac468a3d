package config

import (
	"testing"
	"time"
)

func baseStrategy() StrategyConfig {
	return StrategyConfig{
		ID:                             "base",
		UserID:                         "user-1",
		ProductID:                      27,
		Symbol:                         "BTCUSD",
		Timeframe:                      "15m",
		ConfirmationTimeframe:          "1h",
		StructureTimeframe:             "4h",
		Leverage:                       20,
		LotSize:                        0.01,
		InitialBaseQuantity:            1,
		PriceDecimalPlaces:             2,
		TradingMode:                    "balanced",
		MinCandleBodyPercent:           0.3,
		MinAllowedPriceMovementPercent: 0.5,
		MaxAllowedPriceMovementPercent: 2,
		TakeProfitPercent:              1.5,
	}
}

// TestValidate verifies the cycle-critical fields are enforced.
func TestValidate(t *testing.T) {
	valid := baseStrategy()
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	noIdentity := baseStrategy()
	noIdentity.ProductID = 0
	if err := noIdentity.Validate(); err == nil {
		t.Error("Expected error for missing product id")
	}

	noTimeframe := baseStrategy()
	noTimeframe.StructureTimeframe = ""
	if err := noTimeframe.Validate(); err == nil {
		t.Error("Expected error for missing timeframe")
	}

	badSizing := baseStrategy()
	badSizing.Leverage = 0
	if err := badSizing.Validate(); err == nil {
		t.Error("Expected error for zero leverage")
	}
}

// TestMergeOverride verifies non-zero override fields win and boolean
// flags combine with or.
func TestMergeOverride(t *testing.T) {
	base := baseStrategy()

	merged := base.MergeOverride(StrategyConfig{
		Symbol:            "ETHUSD",
		ProductID:         3136,
		TakeProfitPercent: 2.5,
		DryRun:            true,
	})

	if merged.Symbol != "ETHUSD" || merged.ProductID != 3136 {
		t.Errorf("Expected overridden identity, got %s/%d", merged.Symbol, merged.ProductID)
	}
	if merged.TakeProfitPercent != 2.5 {
		t.Errorf("Expected overridden TP 2.5, got %f", merged.TakeProfitPercent)
	}
	if !merged.DryRun {
		t.Error("Expected dry run flag carried over")
	}

	// Untouched fields keep base values
	if merged.Timeframe != "15m" || merged.Leverage != 20 {
		t.Errorf("Expected base values preserved, got %s/%f", merged.Timeframe, merged.Leverage)
	}

	// Base flags survive a zero override
	base.DryRun = true
	merged = base.MergeOverride(StrategyConfig{})
	if !merged.DryRun {
		t.Error("Expected base dry run flag preserved")
	}
}

// TestLoadDefaults verifies Load applies sane defaults without a config
// file or environment.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeltaConfig.BaseURL != "https://api.india.delta.exchange" {
		t.Errorf("Unexpected default base URL %s", cfg.DeltaConfig.BaseURL)
	}
	if cfg.DatabaseConfig.Port != 5432 {
		t.Errorf("Expected default DB port 5432, got %d", cfg.DatabaseConfig.Port)
	}
	if cfg.SchedulerConfig.Interval != time.Minute {
		t.Errorf("Expected default scheduler interval 1m, got %v", cfg.SchedulerConfig.Interval)
	}
	if cfg.SchedulerConfig.LockTTL != 55*time.Second {
		t.Errorf("Expected default lock TTL 55s, got %v", cfg.SchedulerConfig.LockTTL)
	}
	if cfg.BaseStrategy.TradingMode != "balanced" {
		t.Errorf("Expected default trading mode balanced, got %s", cfg.BaseStrategy.TradingMode)
	}
}

// TestEnvOverrides verifies environment variables beat defaults.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("DELTA_BASE_URL", "https://testnet.delta.exchange")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("SCHEDULER_WORKER_COUNT", "3")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeltaConfig.BaseURL != "https://testnet.delta.exchange" {
		t.Errorf("Expected env base URL, got %s", cfg.DeltaConfig.BaseURL)
	}
	if cfg.DatabaseConfig.Port != 5433 {
		t.Errorf("Expected DB port 5433, got %d", cfg.DatabaseConfig.Port)
	}
	if cfg.SchedulerConfig.Interval != 30*time.Second {
		t.Errorf("Expected interval 30s, got %v", cfg.SchedulerConfig.Interval)
	}
	if cfg.SchedulerConfig.WorkerCount != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.SchedulerConfig.WorkerCount)
	}
	if cfg.RedisConfig.Enabled {
		t.Error("Expected Redis disabled via env")
	}
}
