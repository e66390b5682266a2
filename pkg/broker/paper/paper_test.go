package paper

import (
	"context"
	"math"
	"testing"

	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
)

func TestRoundTripRealizesProfit(t *testing.T) {
	gw := New(Config{InitialBalance: 10000, Seed: 1})
	ctx := context.Background()
	if err := gw.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	buy, err := gw.SendOrder(ctx, broker.OrderRequest{
		Symbol: "EURUSD", Side: broker.SideBuy, Type: broker.OrderTypeMarket,
		Volume: 0.1, Price: 1.1000,
	})
	if err != nil || !buy.Success() {
		t.Fatalf("buy failed: %+v err=%v", buy, err)
	}

	positions, _ := gw.GetPositions(ctx)
	if len(positions) != 1 || positions[0].Side != broker.SideBuy {
		t.Fatalf("expected one long position, got %+v", positions)
	}

	sell, err := gw.SendOrder(ctx, broker.OrderRequest{
		Symbol: "EURUSD", Side: broker.SideSell, Type: broker.OrderTypeMarket,
		Volume: 0.1, Price: 1.1050,
	})
	if err != nil || !sell.Success() {
		t.Fatalf("sell failed: %+v err=%v", sell, err)
	}

	positions, _ = gw.GetPositions(ctx)
	if len(positions) != 0 {
		t.Fatalf("expected flat book after close, got %+v", positions)
	}

	account, _ := gw.GetAccountInfo(ctx)
	wantProfit := (1.1050 - 1.1000) * 0.1 * 100000
	if math.Abs(account.Balance-(10000+wantProfit)) > 1e-6 {
		t.Fatalf("balance=%v, expected %v", account.Balance, 10000+wantProfit)
	}
}

func TestCheckOrderRejectsOversizedAndInvalid(t *testing.T) {
	gw := New(Config{InitialBalance: 100, Seed: 1})
	ctx := context.Background()

	res, err := gw.CheckOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Volume: 0, Price: 1.1})
	if err != nil {
		t.Fatalf("CheckOrder: %v", err)
	}
	if res.OK || res.RetCode != broker.RetInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %+v", res)
	}

	res, err = gw.CheckOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Volume: 10, Price: 1.1})
	if err != nil {
		t.Fatalf("CheckOrder: %v", err)
	}
	if res.OK || res.RetCode != broker.RetNoMoney {
		t.Fatalf("expected NO_MONEY, got %+v", res)
	}
}

func TestSendWithoutConnectFailsRetryable(t *testing.T) {
	gw := New(Config{InitialBalance: 10000, Seed: 1})

	res, err := gw.SendOrder(context.Background(), broker.OrderRequest{
		Symbol: "EURUSD", Side: broker.SideBuy, Volume: 0.1, Price: 1.1,
	})
	if err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
	if res.RetCode != broker.RetNoConnection {
		t.Fatalf("expected NO_CONNECTION, got %s", res.RetCode)
	}
	if !res.RetCode.Retryable() {
		t.Fatal("NO_CONNECTION must classify retryable")
	}
}
