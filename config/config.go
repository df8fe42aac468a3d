package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DeltaConfig     DeltaConfig     `json:"delta"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	SchedulerConfig SchedulerConfig `json:"scheduler"`
	ServerConfig    ServerConfig    `json:"server"`
	AuthConfig      AuthConfig      `json:"auth"`
	BaseStrategy    StrategyConfig  `json:"base_strategy"`
}

// DeltaConfig holds Delta Exchange connection settings. API credentials
// may instead come from Vault when VaultConfig.Enabled is set.
type DeltaConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the distributed cycle lock
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault settings for exchange credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// SchedulerConfig controls the periodic cycle trigger and worker pool
type SchedulerConfig struct {
	Enabled     bool          `json:"enabled"`
	Interval    time.Duration `json:"interval"`     // time between trigger rounds
	WorkerCount int           `json:"worker_count"` // concurrent cycle workers
	ConfigLimit int           `json:"config_limit"` // max configs fetched per round
	LockTTL     time.Duration `json:"lock_ttl"`     // cycle lock lease duration
	QueueSize   int           `json:"queue_size"`   // pending job buffer
}

type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ProductionMode  bool   `json:"production_mode"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	AdminUser           string        `json:"admin_user"`
	AdminPasswordHash   string        `json:"admin_password_hash"` // bcrypt
}

// StrategyConfig is the immutable snapshot of all tunable parameters for
// one (user, symbol, product) pairing. It is passed explicitly through
// the whole cycle; nothing reads strategy settings from globals.
type StrategyConfig struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ProductID int    `json:"product_id"`
	Symbol    string `json:"symbol"`

	Timeframe             string `json:"timeframe"`
	ConfirmationTimeframe string `json:"confirmation_timeframe"`
	StructureTimeframe    string `json:"structure_timeframe"`

	Leverage            float64 `json:"leverage"`
	LotSize             float64 `json:"lot_size"`
	InitialBaseQuantity float64 `json:"initial_base_quantity"`
	PriceDecimalPlaces  int     `json:"price_decimal_places"`

	TradingMode string `json:"trading_mode"` // conservative | balanced | aggressive

	MinCandleBodyPercent           float64 `json:"min_candle_body_percent"`
	MinAllowedPriceMovementPercent float64 `json:"min_allowed_price_movement_percent"`
	MaxAllowedPriceMovementPercent float64 `json:"max_allowed_price_movement_percent"`
	TakeProfitPercent              float64 `json:"take_profit_percent"`
	SLTriggerBufferPercent         float64 `json:"sl_trigger_buffer_percent"`
	SLLimitBufferPercent           float64 `json:"sl_limit_buffer_percent"`

	DryRun    bool `json:"dry_run"`
	IsTesting bool `json:"is_testing"`

	Enabled bool `json:"enabled"`
}

// Validate checks the fields the cycle cannot run without
func (s *StrategyConfig) Validate() error {
	if s.UserID == "" || s.Symbol == "" || s.ProductID == 0 {
		return fmt.Errorf("strategy config missing identity (user_id, symbol, product_id)")
	}
	if s.Timeframe == "" || s.ConfirmationTimeframe == "" || s.StructureTimeframe == "" {
		return fmt.Errorf("strategy config %s missing timeframes", s.ID)
	}
	if s.Leverage <= 0 || s.LotSize <= 0 || s.InitialBaseQuantity <= 0 {
		return fmt.Errorf("strategy config %s has invalid sizing", s.ID)
	}
	return nil
}

// MergeOverride copies non-zero override fields onto a copy of the base
// config. Used by the manual trigger endpoint.
func (s StrategyConfig) MergeOverride(o StrategyConfig) StrategyConfig {
	merged := s
	if o.ID != "" {
		merged.ID = o.ID
	}
	if o.UserID != "" {
		merged.UserID = o.UserID
	}
	if o.ProductID != 0 {
		merged.ProductID = o.ProductID
	}
	if o.Symbol != "" {
		merged.Symbol = o.Symbol
	}
	if o.Timeframe != "" {
		merged.Timeframe = o.Timeframe
	}
	if o.ConfirmationTimeframe != "" {
		merged.ConfirmationTimeframe = o.ConfirmationTimeframe
	}
	if o.StructureTimeframe != "" {
		merged.StructureTimeframe = o.StructureTimeframe
	}
	if o.Leverage != 0 {
		merged.Leverage = o.Leverage
	}
	if o.LotSize != 0 {
		merged.LotSize = o.LotSize
	}
	if o.InitialBaseQuantity != 0 {
		merged.InitialBaseQuantity = o.InitialBaseQuantity
	}
	if o.PriceDecimalPlaces != 0 {
		merged.PriceDecimalPlaces = o.PriceDecimalPlaces
	}
	if o.TradingMode != "" {
		merged.TradingMode = o.TradingMode
	}
	if o.MinCandleBodyPercent != 0 {
		merged.MinCandleBodyPercent = o.MinCandleBodyPercent
	}
	if o.MinAllowedPriceMovementPercent != 0 {
		merged.MinAllowedPriceMovementPercent = o.MinAllowedPriceMovementPercent
	}
	if o.MaxAllowedPriceMovementPercent != 0 {
		merged.MaxAllowedPriceMovementPercent = o.MaxAllowedPriceMovementPercent
	}
	if o.TakeProfitPercent != 0 {
		merged.TakeProfitPercent = o.TakeProfitPercent
	}
	if o.SLTriggerBufferPercent != 0 {
		merged.SLTriggerBufferPercent = o.SLTriggerBufferPercent
	}
	if o.SLLimitBufferPercent != 0 {
		merged.SLLimitBufferPercent = o.SLLimitBufferPercent
	}
	merged.DryRun = merged.DryRun || o.DryRun
	merged.IsTesting = merged.IsTesting || o.IsTesting
	return merged
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Delta exchange config. Credentials may come from Vault instead;
	// environment values win when both are set.
	cfg.DeltaConfig.BaseURL = getEnvOrDefault("DELTA_BASE_URL", defaultString(cfg.DeltaConfig.BaseURL, "https://api.india.delta.exchange"))
	cfg.DeltaConfig.APIKey = getEnvOrDefault("DELTA_API_KEY", cfg.DeltaConfig.APIKey)
	cfg.DeltaConfig.SecretKey = getEnvOrDefault("DELTA_SECRET_KEY", cfg.DeltaConfig.SecretKey)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "trading_bot"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "trading_bot"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "trading-bot/delta"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Scheduler config
	cfg.SchedulerConfig.Enabled = getEnvOrDefault("SCHEDULER_ENABLED", "true") == "true"
	cfg.SchedulerConfig.Interval = getEnvDurationOrDefault("SCHEDULER_INTERVAL", defaultDuration(cfg.SchedulerConfig.Interval, time.Minute))
	cfg.SchedulerConfig.WorkerCount = getEnvIntOrDefault("SCHEDULER_WORKER_COUNT", defaultInt(cfg.SchedulerConfig.WorkerCount, 5))
	cfg.SchedulerConfig.ConfigLimit = getEnvIntOrDefault("SCHEDULER_CONFIG_LIMIT", defaultInt(cfg.SchedulerConfig.ConfigLimit, 500))
	cfg.SchedulerConfig.LockTTL = getEnvDurationOrDefault("SCHEDULER_LOCK_TTL", defaultDuration(cfg.SchedulerConfig.LockTTL, 55*time.Second))
	cfg.SchedulerConfig.QueueSize = getEnvIntOrDefault("SCHEDULER_QUEUE_SIZE", defaultInt(cfg.SchedulerConfig.QueueSize, 1000))

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION", "false") == "true"
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", defaultDuration(cfg.AuthConfig.AccessTokenDuration, time.Hour))
	cfg.AuthConfig.AdminUser = getEnvOrDefault("AUTH_ADMIN_USER", defaultString(cfg.AuthConfig.AdminUser, "admin"))
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)

	// Base strategy defaults for manual triggers
	if cfg.BaseStrategy.TradingMode == "" {
		cfg.BaseStrategy.TradingMode = "balanced"
	}
	if cfg.BaseStrategy.Timeframe == "" {
		cfg.BaseStrategy.Timeframe = "15m"
	}
	if cfg.BaseStrategy.ConfirmationTimeframe == "" {
		cfg.BaseStrategy.ConfirmationTimeframe = "1h"
	}
	if cfg.BaseStrategy.StructureTimeframe == "" {
		cfg.BaseStrategy.StructureTimeframe = "4h"
	}
	if cfg.BaseStrategy.InitialBaseQuantity == 0 {
		cfg.BaseStrategy.InitialBaseQuantity = 1
	}
	if cfg.BaseStrategy.Leverage == 0 {
		cfg.BaseStrategy.Leverage = 20
	}
	if cfg.BaseStrategy.LotSize == 0 {
		cfg.BaseStrategy.LotSize = 0.01
	}
	if cfg.BaseStrategy.PriceDecimalPlaces == 0 {
		cfg.BaseStrategy.PriceDecimalPlaces = 2
	}
	if cfg.BaseStrategy.TakeProfitPercent == 0 {
		cfg.BaseStrategy.TakeProfitPercent = 1.5
	}
	if cfg.BaseStrategy.SLTriggerBufferPercent == 0 {
		cfg.BaseStrategy.SLTriggerBufferPercent = 0.05
	}
	if cfg.BaseStrategy.SLLimitBufferPercent == 0 {
		cfg.BaseStrategy.SLLimitBufferPercent = 0.1
	}
}

// ConnectionString builds a pgx-compatible DSN
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

func loadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// GenerateSampleConfig writes a config.json populated with defaults
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyEnvOverrides(cfg)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sample config: %w", err)
	}

	return os.WriteFile(filename, data, 0644)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func defaultString(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}

func defaultDuration(current, fallback time.Duration) time.Duration {
	if current != 0 {
		return current
	}
	return fallback
}
