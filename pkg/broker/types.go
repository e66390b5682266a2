package broker

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns SELL for BUY and BUY for SELL.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest captures an order intent to be sent to the broker.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Type     OrderType
	Volume   float64
	Price    float64 // required for LIMIT; reference price for MARKET
	StopLoss float64 // optional protective stop
	Magic    int64   // strategy tag carried through to the broker
	Comment  string
	ClientID string // client order id / idempotency key
}

// OrderResult is the broker's answer to SendOrder.
type OrderResult struct {
	RetCode        RetCode
	Message        string
	BrokerOrderID  string
	DealID         string
	ExecutedPrice  float64
	ExecutedVolume float64
}

// Success reports whether the submission was accepted and filled.
func (r OrderResult) Success() bool { return r.RetCode == RetDone }

// CheckResult is the broker's answer to CheckOrder (pre-submission validation).
type CheckResult struct {
	OK             bool
	RetCode        RetCode
	Message        string
	MarginRequired float64
}

// SymbolSpec describes a tradable instrument.
type SymbolSpec struct {
	Symbol       string
	Bid          float64
	Ask          float64
	Point        float64
	Digits       int
	ContractSize float64
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
}

// AccountInfo is a point-in-time account snapshot.
type AccountInfo struct {
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Currency   string
}

// Position is a broker-reported open position.
type Position struct {
	Symbol    string
	Side      Side
	Volume    float64
	OpenPrice float64
	StopLoss  float64
	OpenTime  time.Time
	Ticket    string // broker-assigned position/ticket id
}
