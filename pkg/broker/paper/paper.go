// Package paper is a simulated broker gateway for dry runs: fills market
// orders at the request price with configurable slippage and fees, tracking
// balance and positions in memory.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
)

// Config tunes the simulation.
type Config struct {
	InitialBalance float64
	FeeRate        float64 // decimal, e.g. 0.0004 = 4 bps per fill
	SlippageBps    float64 // basis points applied against the taker
	Seed           int64
	// Specs seeds per-symbol instrument data; unknown symbols get a default.
	Specs map[string]broker.SymbolSpec
}

// Gateway implements broker.Gateway against in-memory state.
type Gateway struct {
	mu        sync.Mutex
	cfg       Config
	rng       *rand.Rand
	connected bool
	balance   float64
	positions map[string]broker.Position
	nextID    int64
}

func New(cfg Config) *Gateway {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Gateway{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		balance:   cfg.InitialBalance,
		positions: make(map[string]broker.Position),
		nextID:    1000,
	}
}

func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

func (g *Gateway) EnsureConnected(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

func (g *Gateway) GetSymbolInfo(ctx context.Context, symbol string) (broker.SymbolSpec, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if spec, ok := g.cfg.Specs[symbol]; ok {
		return spec, nil
	}
	return broker.SymbolSpec{
		Symbol:       symbol,
		Bid:          1.0,
		Ask:          1.0001,
		Point:        0.0001,
		Digits:       5,
		ContractSize: 100000,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
	}, nil
}

func (g *Gateway) GetAccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return broker.AccountInfo{
		Balance:    g.balance,
		Equity:     g.balance,
		FreeMargin: g.balance,
		Currency:   "USD",
	}, nil
}

func (g *Gateway) GetPositions(ctx context.Context) ([]broker.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res := make([]broker.Position, 0, len(g.positions))
	for _, p := range g.positions {
		res = append(res, p)
	}
	return res, nil
}

func (g *Gateway) CheckOrder(ctx context.Context, req broker.OrderRequest) (broker.CheckResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.Volume <= 0 {
		return broker.CheckResult{RetCode: broker.RetInvalidRequest, Message: "volume must be positive"}, nil
	}
	margin := req.Price * req.Volume
	if margin > g.balance {
		return broker.CheckResult{RetCode: broker.RetNoMoney, Message: "insufficient balance", MarginRequired: margin}, nil
	}
	return broker.CheckResult{OK: true, RetCode: broker.RetDone, MarginRequired: margin}, nil
}

// SendOrder fills immediately at the request price adjusted by slippage.
// An opposite-side order against an open position closes (up to) its volume
// and realizes P/L into the balance.
func (g *Gateway) SendOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return broker.OrderResult{RetCode: broker.RetNoConnection, Message: "not connected"}, nil
	}
	if req.Volume <= 0 {
		return broker.OrderResult{RetCode: broker.RetInvalidRequest, Message: "volume must be positive"}, nil
	}

	price := req.Price
	if price <= 0 {
		price = 1.0
	}
	if g.cfg.SlippageBps > 0 {
		noise := g.rng.Float64() * g.cfg.SlippageBps / 10000.0
		if req.Side == broker.SideBuy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}

	fee := price * req.Volume * g.cfg.FeeRate
	g.balance -= fee

	g.nextID++
	orderID := strconv.FormatInt(g.nextID, 10)
	dealID := fmt.Sprintf("%d-%d", g.nextID, g.rng.Intn(1000))

	if open, ok := g.positions[req.Symbol]; ok && open.Side != req.Side {
		closed := req.Volume
		if closed > open.Volume {
			closed = open.Volume
		}
		profit := (price - open.OpenPrice) * closed * g.contractSize(req.Symbol)
		if open.Side == broker.SideSell {
			profit = -profit
		}
		g.balance += profit

		if remaining := open.Volume - closed; remaining > 0 {
			open.Volume = remaining
			g.positions[req.Symbol] = open
		} else {
			delete(g.positions, req.Symbol)
		}
	} else {
		pos := g.positions[req.Symbol]
		if pos.Volume == 0 {
			pos = broker.Position{
				Symbol:    req.Symbol,
				Side:      req.Side,
				Volume:    req.Volume,
				OpenPrice: price,
				StopLoss:  req.StopLoss,
				OpenTime:  time.Now(),
				Ticket:    orderID,
			}
		} else {
			total := pos.Volume + req.Volume
			pos.OpenPrice = (pos.OpenPrice*pos.Volume + price*req.Volume) / total
			pos.Volume = total
		}
		g.positions[req.Symbol] = pos
	}

	return broker.OrderResult{
		RetCode:        broker.RetDone,
		Message:        "filled",
		BrokerOrderID:  orderID,
		DealID:         dealID,
		ExecutedPrice:  price,
		ExecutedVolume: req.Volume,
	}, nil
}

func (g *Gateway) contractSize(symbol string) float64 {
	if spec, ok := g.cfg.Specs[symbol]; ok && spec.ContractSize > 0 {
		return spec.ContractSize
	}
	return 100000
}
