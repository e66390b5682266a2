// Package signal defines the trading-signal model consumed by the control
// loop. Signal generation itself lives behind the Source interface.
package signal

import (
	"context"
	"fmt"
	"time"
)

// Direction is the signal's trading direction.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// Signal is one strategy decision for a symbol. Immutable once produced.
type Signal struct {
	Symbol     string
	Time       time.Time
	Direction  Direction
	Price      float64
	Confidence float64
	StrategyID string
}

// ID derives the deterministic de-duplication identifier. Two observations of
// the same symbol+timestamp are the same logical signal.
func (s Signal) ID() string {
	return fmt.Sprintf("%s_%d", s.Symbol, s.Time.UnixMilli())
}

// Source produces signals for a symbol over a time window.
type Source interface {
	GenerateSignals(ctx context.Context, symbol string, from, to time.Time, timeframe string) ([]Signal, error)
}
