package martingale

import "time"

// Outcome is the lifecycle state of the most recent trade attempt
type Outcome string

const (
	OutcomeNone       Outcome = "none"
	OutcomePending    Outcome = "pending"
	OutcomeWin        Outcome = "win"
	OutcomeLoss       Outcome = "loss"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomePartialWin Outcome = "partialWin"
)

// State is the durable per-(config, user, symbol) martingale record.
// CurrentLevel only increases on a loss and resets to 1 on a win; it is
// preserved across cancellations so the next attempt retries the level.
// AllTimePnL and AllTimeFees are accumulators and are never reset.
type State struct {
	ConfigID  string `json:"config_id"`
	UserID    string `json:"user_id"`
	Symbol    string `json:"symbol"`
	ProductID int    `json:"product_id"`

	CurrentLevel     int     `json:"current_level"`
	LastTradeOutcome Outcome `json:"last_trade_outcome"`

	LastEntryOrderID      string `json:"last_entry_order_id,omitempty"`
	LastStopLossOrderID   string `json:"last_stop_loss_order_id,omitempty"`
	LastTakeProfitOrderID string `json:"last_take_profit_order_id,omitempty"`

	LastEntryPrice    float64 `json:"last_entry_price,omitempty"`
	LastSlPrice       float64 `json:"last_sl_price,omitempty"`
	LastTpPrice       float64 `json:"last_tp_price,omitempty"`
	LastTradeQuantity float64 `json:"last_trade_quantity"`

	PnL            float64 `json:"pnl"`
	CumulativeFees float64 `json:"cumulative_fees"`
	AllTimePnL     float64 `json:"all_time_pnl"`
	AllTimeFees    float64 `json:"all_time_fees"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates the initial record for a strategy pairing
func NewState(configID, userID, symbol string, productID int, initialQuantity float64) State {
	return State{
		ConfigID:          configID,
		UserID:            userID,
		Symbol:            symbol,
		ProductID:         productID,
		CurrentLevel:      1,
		LastTradeOutcome:  OutcomeNone,
		LastTradeQuantity: initialQuantity,
	}
}

// IsPending reports whether the previous cycle left an unresolved trade
func (s *State) IsPending() bool {
	return s.LastTradeOutcome == OutcomePending
}

// Key returns the identity triple used for locking and persistence
func (s *State) Key() (userID, symbol string, productID int) {
	return s.UserID, s.Symbol, s.ProductID
}
