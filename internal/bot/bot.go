package bot

import (
	"context"
	"time"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/database"
	"delta-trading-bot/internal/delta"
	"delta-trading-bot/internal/events"
	"delta-trading-bot/internal/lock"
	"delta-trading-bot/internal/logging"
	"delta-trading-bot/internal/martingale"
	"delta-trading-bot/internal/reconcile"
)

// StateStore is the persistence contract for martingale state
type StateStore interface {
	GetOrCreateMartingaleState(ctx context.Context, configID, userID, symbol string, productID int, initialQuantity float64) (*martingale.State, error)
	SaveMartingaleState(ctx context.Context, s *martingale.State) error
}

// TradeRecorder appends settled-trade records
type TradeRecorder interface {
	CreateExecutedTrade(ctx context.Context, trade *database.ExecutedTrade) error
}

// TradingBot runs decision cycles against the exchange. It holds no
// per-symbol mutable state; everything a cycle needs arrives in its
// StrategyConfig and the persisted martingale state.
type TradingBot struct {
	gateway    delta.Gateway
	store      StateStore
	trades     TradeRecorder
	locker     lock.Locker
	bus        *events.EventBus
	reconciler *reconcile.Reconciler
	lockTTL    time.Duration
	log        *logging.Logger
}

// NewTradingBot wires a bot from its collaborators
func NewTradingBot(gateway delta.Gateway, store StateStore, trades TradeRecorder, locker lock.Locker, bus *events.EventBus, lockTTL time.Duration) *TradingBot {
	if lockTTL <= 0 {
		lockTTL = 55 * time.Second
	}
	return &TradingBot{
		gateway:    gateway,
		store:      store,
		trades:     trades,
		locker:     locker,
		bus:        bus,
		reconciler: reconcile.New(gateway, bus),
		lockTTL:    lockTTL,
		log:        logging.WithComponent("bot"),
	}
}

// machineFor builds the sizing state machine for one config
func machineFor(cfg *config.StrategyConfig) *martingale.Machine {
	return martingale.NewMachine(martingale.Sizing{
		LotSize:             cfg.LotSize,
		Leverage:            cfg.Leverage,
		InitialBaseQuantity: cfg.InitialBaseQuantity,
	})
}
