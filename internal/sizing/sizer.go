// Package sizing computes order volume from account risk. The policy is
// pluggable: the loop only depends on the Sizer interface.
package sizing

import (
	"math"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/signal"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
)

// Sizer turns a signal plus account state into an order volume and stop.
type Sizer interface {
	Size(spec broker.SymbolSpec, account broker.AccountInfo, sig signal.Signal) (volume, stopLoss float64)
}

// RiskPercentSizer risks a fixed fraction of balance per trade against the
// stop distance: volume = (balance * riskPct) / (stopDistance * contractSize),
// snapped to the symbol's volume step and clamped to its limits.
type RiskPercentSizer struct {
	RiskPercent     float64 // e.g. 0.01 = 1% of balance per trade
	StopDistancePct float64 // stop distance as a fraction of entry price
	MaxVolume       float64 // hard cap on top of the symbol's VolumeMax
}

func (s RiskPercentSizer) Size(spec broker.SymbolSpec, account broker.AccountInfo, sig signal.Signal) (float64, float64) {
	price := sig.Price
	if price <= 0 {
		price = spec.Ask
	}
	if price <= 0 {
		return 0, 0
	}

	stopPct := s.StopDistancePct
	if stopPct <= 0 {
		stopPct = 0.02
	}
	stopDistance := price * stopPct

	var stopLoss float64
	if sig.Direction == signal.Sell {
		stopLoss = price + stopDistance
	} else {
		stopLoss = price - stopDistance
	}

	contract := spec.ContractSize
	if contract <= 0 {
		contract = 1
	}

	riskAmount := account.Balance * s.RiskPercent
	if riskAmount <= 0 || stopDistance <= 0 {
		return 0, stopLoss
	}
	volume := riskAmount / (stopDistance * contract)

	// Snap down to the symbol's volume step.
	if spec.VolumeStep > 0 {
		volume = math.Floor(volume/spec.VolumeStep) * spec.VolumeStep
	}

	maxVol := spec.VolumeMax
	if s.MaxVolume > 0 && (maxVol <= 0 || s.MaxVolume < maxVol) {
		maxVol = s.MaxVolume
	}
	if maxVol > 0 && volume > maxVol {
		volume = maxVol
	}
	if spec.VolumeMin > 0 && volume < spec.VolumeMin {
		// Too small to trade at this risk budget.
		return 0, stopLoss
	}
	return volume, stopLoss
}
