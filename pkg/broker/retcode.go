package broker

// RetCode is the normalized broker return code. The set is closed on purpose:
// retry logic switches over it exhaustively instead of matching strings.
type RetCode string

const (
	RetDone            RetCode = "DONE"
	RetRequote         RetCode = "REQUOTE"
	RetTimeout         RetCode = "TIMEOUT"
	RetPriceChanged    RetCode = "PRICE_CHANGED"
	RetPriceOff        RetCode = "PRICE_OFF"
	RetTooManyRequests RetCode = "TOO_MANY_REQUESTS"
	RetNoConnection    RetCode = "NO_CONNECTION"
	RetRejected        RetCode = "REJECTED"
	RetNoMoney         RetCode = "NO_MONEY"
	RetInvalidRequest  RetCode = "INVALID_REQUEST"
	RetMarketClosed    RetCode = "MARKET_CLOSED"
	RetUnknown         RetCode = "UNKNOWN"
)

// Retryable reports whether a failed submission with this code is worth
// another attempt. Everything outside the fixed transient set fails fast.
func (c RetCode) Retryable() bool {
	switch c {
	case RetRequote, RetTimeout, RetPriceChanged, RetPriceOff, RetTooManyRequests, RetNoConnection:
		return true
	case RetDone, RetRejected, RetNoMoney, RetInvalidRequest, RetMarketClosed, RetUnknown:
		return false
	default:
		return false
	}
}

// Terminal reports whether the code ends execution for the order.
func (c RetCode) Terminal() bool {
	return c == RetDone || !c.Retryable()
}
