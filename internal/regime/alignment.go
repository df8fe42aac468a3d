package regime

import "delta-trading-bot/internal/delta"

// Direction is the structure-timeframe breakout bias
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNone  Direction = ""
)

// directionLookback is the structure window used for breakout bias:
// the last close against the prior 9 candles' extremes
const directionLookback = 10

// AlignmentInput bundles one timeframe's candle history and tuning
type AlignmentInput struct {
	Timeframe string
	Candles   []delta.Candle
	Tuning    Tuning
}

// AlignmentResult merges the three timeframe evaluations
type AlignmentResult struct {
	EntryScore        int       `json:"entry_score"`
	ConfirmationScore int       `json:"confirmation_score"`
	StructureScore    int       `json:"structure_score"`
	IsAllowed         bool      `json:"is_allowed"`
	Direction         Direction `json:"direction,omitempty"`

	Entry        Result `json:"entry"`
	Confirmation Result `json:"confirmation"`
	Structure    Result `json:"structure"`
}

// EvaluateAlignment runs the regime detector on the entry, confirmation
// and structure timeframes and merges the results. Higher timeframes can
// hard-block an entry; the structure breakout direction vetoes entries
// against it.
func EvaluateAlignment(target delta.TargetCandle, entry, confirmation, structure AlignmentInput) AlignmentResult {
	entryRes := Evaluate(target, entry.Candles, entry.Tuning)
	confRes := Evaluate(target, confirmation.Candles, confirmation.Tuning)
	structRes := Evaluate(target, structure.Candles, structure.Tuning)

	out := AlignmentResult{
		EntryScore:        entryRes.Score,
		ConfirmationScore: confRes.Score,
		StructureScore:    structRes.Score,
		Entry:             entryRes,
		Confirmation:      confRes,
		Structure:         structRes,
	}

	// Hard blocks: clear chop on a higher timeframe overrides everything
	if structRes.Score >= 6 || confRes.Score >= 6 {
		return out
	}

	out.IsAllowed = structRes.Score <= 4 && confRes.Score <= 4 && entryRes.IsAllowed

	out.Direction = structureDirection(structure.Candles)

	// Counter-direction entries are blocked
	if out.Direction == DirectionLong && target.Color == delta.ColorRed {
		out.IsAllowed = false
	}
	if out.Direction == DirectionShort && target.Color == delta.ColorGreen {
		out.IsAllowed = false
	}

	return out
}

// structureDirection reports a breakout bias when the last structure
// close escapes the prior window's extremes
func structureDirection(candles []delta.Candle) Direction {
	if len(candles) < directionLookback {
		return DirectionNone
	}

	window := candles[len(candles)-directionLookback:]
	last := window[len(window)-1]

	prior := window[:len(window)-1]
	priorHigh, priorLow := prior[0].High, prior[0].Low
	for _, c := range prior[1:] {
		if c.High > priorHigh {
			priorHigh = c.High
		}
		if c.Low < priorLow {
			priorLow = c.Low
		}
	}

	switch {
	case last.Close > priorHigh:
		return DirectionLong
	case last.Close < priorLow:
		return DirectionShort
	}
	return DirectionNone
}
