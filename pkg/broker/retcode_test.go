package broker

import "testing"

func TestRetCodeClassification(t *testing.T) {
	tests := []struct {
		code      RetCode
		retryable bool
	}{
		{RetRequote, true},
		{RetTimeout, true},
		{RetPriceChanged, true},
		{RetPriceOff, true},
		{RetTooManyRequests, true},
		{RetNoConnection, true},
		{RetDone, false},
		{RetRejected, false},
		{RetNoMoney, false},
		{RetInvalidRequest, false},
		{RetMarketClosed, false},
		{RetUnknown, false},
		{RetCode("SOMETHING_NEW"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Retryable(); got != tt.retryable {
				t.Fatalf("Retryable(%s)=%v, expected %v", tt.code, got, tt.retryable)
			}
		})
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Fatal("expected BUY opposite to be SELL")
	}
	if SideSell.Opposite() != SideBuy {
		t.Fatal("expected SELL opposite to be BUY")
	}
}
