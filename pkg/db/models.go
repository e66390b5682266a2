package db

import "time"

// SignalRecord is a signal as written to the audit trail.
type SignalRecord struct {
	SignalID   string
	Symbol     string
	Direction  string
	Price      float64
	Confidence float64
	StrategyID string
	SignalTime time.Time
	CreatedAt  time.Time
}

// OrderRecord is a submitted order. Inserted on submission; the execution
// result updates the same logical row (matched by client order id) instead of
// inserting a duplicate.
type OrderRecord struct {
	ClientOrderID  string
	Symbol         string
	Side           string
	OrderType      string
	Volume         float64
	Price          float64
	StopLoss       float64
	Status         string
	Attempts       int
	RetCode        string
	RetMessage     string
	BrokerOrderID  string
	DealID         string
	ExecutedPrice  float64
	ExecutedVolume float64
	Comment        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderResultUpdate carries execution-result fields appended to an order row.
type OrderResultUpdate struct {
	Status         string
	Attempts       int
	RetCode        string
	RetMessage     string
	BrokerOrderID  string
	DealID         string
	ExecutedPrice  float64
	ExecutedVolume float64
}

// TradeRecord is a closed round trip with realized profit.
type TradeRecord struct {
	ID            int64
	ClientOrderID string
	Symbol        string
	Side          string
	Volume        float64
	EntryPrice    float64
	ExitPrice     float64
	Profit        float64
	OpenedAt      time.Time
	ClosedAt      time.Time
	CreatedAt     time.Time
}

// EventRecord is a free-form, severity-tagged audit event.
type EventRecord struct {
	ID        int64
	Category  string
	Severity  string
	Message   string
	Detail    string
	CreatedAt time.Time
}

// Event categories.
const (
	CategorySignal   = "signal"
	CategoryOrder    = "order"
	CategoryTrade    = "trade"
	CategoryEvent    = "event"
	CategorySnapshot = "snapshot"
)

// Event severities.
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// SnapshotRecord is a periodic account snapshot.
type SnapshotRecord struct {
	TakenAt       time.Time
	Balance       float64
	Equity        float64
	Margin        float64
	FreeMargin    float64
	OpenPositions int
}

// TradeSummary aggregates closed trades over a rolling day window.
type TradeSummary struct {
	Days        int
	TradeCount  int
	TotalProfit float64
	AvgProfit   float64
	WinCount    int
	WinRate     float64
}
