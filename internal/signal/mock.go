package signal

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockSource emits signals off a seeded random walk. It stands in for a real
// strategy worker during dry runs and demos.
type MockSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64

	// Flip determines how often a non-HOLD signal appears (0..1).
	Flip float64
}

// NewMockSource creates a mock source with a deterministic seed.
func NewMockSource(seed int64) *MockSource {
	return &MockSource{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
		Flip:   0.3,
	}
}

// GenerateSignals returns one signal per timeframe step in [from, to),
// alternating BUY/SELL around the walk's local mean.
func (m *MockSource) GenerateSignals(ctx context.Context, symbol string, from, to time.Time, timeframe string) ([]Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	step := timeframeDuration(timeframe)
	price, ok := m.prices[symbol]
	if !ok {
		price = 1.0 + m.rng.Float64()
	}

	var out []Signal
	for t := from.Truncate(step); t.Before(to); t = t.Add(step) {
		price *= 1 + (m.rng.Float64()-0.5)*0.002
		dir := Hold
		if m.rng.Float64() < m.Flip {
			if math.Mod(float64(t.Unix()/int64(step.Seconds())), 2) == 0 {
				dir = Buy
			} else {
				dir = Sell
			}
		}
		out = append(out, Signal{
			Symbol:     symbol,
			Time:       t,
			Direction:  dir,
			Price:      price,
			Confidence: 0.5 + m.rng.Float64()/2,
			StrategyID: "mock",
		})
	}
	m.prices[symbol] = price
	return out, nil
}

func timeframeDuration(tf string) time.Duration {
	switch tf {
	case "M1":
		return time.Minute
	case "M5":
		return 5 * time.Minute
	case "M15":
		return 15 * time.Minute
	case "M30":
		return 30 * time.Minute
	case "H1":
		return time.Hour
	case "H4":
		return 4 * time.Hour
	case "D1":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
