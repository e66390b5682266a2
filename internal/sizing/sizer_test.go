package sizing

import (
	"math"
	"testing"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/signal"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
)

var eurusd = broker.SymbolSpec{
	Symbol:       "EURUSD",
	Bid:          1.1000,
	Ask:          1.1002,
	ContractSize: 100000,
	VolumeMin:    0.01,
	VolumeMax:    100,
	VolumeStep:   0.01,
}

func buySignal(price float64) signal.Signal {
	return signal.Signal{Symbol: "EURUSD", Time: time.Now(), Direction: signal.Buy, Price: price}
}

func TestRiskPercentSizing(t *testing.T) {
	s := RiskPercentSizer{RiskPercent: 0.01, StopDistancePct: 0.02}
	account := broker.AccountInfo{Balance: 10000}

	volume, stopLoss := s.Size(eurusd, account, buySignal(1.1000))

	// risk = 100; stop distance = 0.022; raw volume = 100/(0.022*100000) ≈ 0.0454 → 0.04
	if volume != 0.04 {
		t.Fatalf("volume=%v, expected 0.04", volume)
	}
	wantStop := 1.1000 * 0.98
	if math.Abs(stopLoss-wantStop) > 1e-9 {
		t.Fatalf("stopLoss=%v, expected %v", stopLoss, wantStop)
	}
}

func TestSellStopAboveEntry(t *testing.T) {
	s := RiskPercentSizer{RiskPercent: 0.01, StopDistancePct: 0.02}
	sig := signal.Signal{Symbol: "EURUSD", Direction: signal.Sell, Price: 1.1000}

	_, stopLoss := s.Size(eurusd, broker.AccountInfo{Balance: 10000}, sig)
	if stopLoss <= 1.1000 {
		t.Fatalf("sell stop must sit above entry, got %v", stopLoss)
	}
}

func TestVolumeCap(t *testing.T) {
	s := RiskPercentSizer{RiskPercent: 0.5, StopDistancePct: 0.02, MaxVolume: 1.0}

	volume, _ := s.Size(eurusd, broker.AccountInfo{Balance: 1000000}, buySignal(1.1000))
	if volume != 1.0 {
		t.Fatalf("volume=%v, expected cap at 1.0", volume)
	}
}

func TestBelowMinimumVolume(t *testing.T) {
	s := RiskPercentSizer{RiskPercent: 0.0001, StopDistancePct: 0.02}

	volume, _ := s.Size(eurusd, broker.AccountInfo{Balance: 100}, buySignal(1.1000))
	if volume != 0 {
		t.Fatalf("volume=%v, expected 0 when below the symbol minimum", volume)
	}
}

func TestZeroPriceFallsBackToAsk(t *testing.T) {
	s := RiskPercentSizer{RiskPercent: 0.01, StopDistancePct: 0.02}

	volume, stopLoss := s.Size(eurusd, broker.AccountInfo{Balance: 10000}, buySignal(0))
	if volume <= 0 {
		t.Fatalf("expected sizing off the ask price, got volume=%v", volume)
	}
	if stopLoss >= eurusd.Ask {
		t.Fatalf("buy stop must sit below entry, got %v", stopLoss)
	}
}
