package bot

import "errors"

// Sentinel errors for cycle exits. Callers branch on these to decide
// what is a hard failure versus an expected skip.
var (
	// ErrLockBusy means another process holds the cycle lock for this
	// pairing. The cycle is a silent no-op.
	ErrLockBusy = errors.New("cycle lock held by another process")

	// ErrDataUnavailable means candles or ticker data could not be
	// fetched, or no closed target candle exists yet.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrValidation means a pre-trade check rejected the cycle.
	ErrValidation = errors.New("pre-trade validation failed")

	// ErrExternalCall means the exchange rejected an order operation.
	ErrExternalCall = errors.New("exchange call failed")

	// ErrStateConsistency means the persisted martingale state could
	// not be updated under its identity triple.
	ErrStateConsistency = errors.New("state consistency failure")
)
