package db

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := ApplyMigrations(store); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return store
}

func TestOrderInsertThenUpdateSameRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := OrderRecord{
		ClientOrderID: "EURUSD_sig1_1700000000_ab12cd34",
		Symbol:        "EURUSD",
		Side:          "BUY",
		OrderType:     "MARKET",
		Volume:        0.1,
		Price:         1.1000,
		Status:        "PENDING",
	}
	if err := store.InsertOrder(ctx, rec); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	upd := OrderResultUpdate{
		Status:         "EXECUTED",
		Attempts:       2,
		RetCode:        "DONE",
		RetMessage:     "ok",
		BrokerOrderID:  "98765",
		DealID:         "55501",
		ExecutedPrice:  1.1002,
		ExecutedVolume: 0.1,
	}
	if err := store.UpdateOrderResult(ctx, rec.ClientOrderID, upd); err != nil {
		t.Fatalf("UpdateOrderResult: %v", err)
	}

	orders, err := store.RecentOrders(ctx, 10)
	if err != nil {
		t.Fatalf("RecentOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order row after update, got %d", len(orders))
	}
	got := orders[0]
	if got.Status != "EXECUTED" || got.Attempts != 2 || got.ExecutedPrice != 1.1002 {
		t.Fatalf("order row not updated in place: %+v", got)
	}
	if got.BrokerOrderID != "98765" || got.DealID != "55501" {
		t.Fatalf("broker ids missing after update: %+v", got)
	}
}

func TestHasSignalAndHasOrderBackDeduplication(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.HasSignal(ctx, "EURUSD_1700000000000")
	if err != nil {
		t.Fatalf("HasSignal: %v", err)
	}
	if ok {
		t.Fatal("expected unseen signal to be absent")
	}

	sig := SignalRecord{
		SignalID:   "EURUSD_1700000000000",
		Symbol:     "EURUSD",
		Direction:  "BUY",
		Price:      1.1,
		Confidence: 0.8,
		StrategyID: "sma-cross",
		SignalTime: time.Now(),
	}
	if err := store.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	ok, err = store.HasSignal(ctx, sig.SignalID)
	if err != nil {
		t.Fatalf("HasSignal: %v", err)
	}
	if !ok {
		t.Fatal("expected recorded signal to be found")
	}

	if err := store.InsertOrder(ctx, OrderRecord{
		ClientOrderID: "c1", Symbol: "EURUSD", Side: "BUY", OrderType: "MARKET",
		Volume: 0.1, Price: 1.1, Status: "PENDING",
	}); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	ok, err = store.HasOrder(ctx, "c1")
	if err != nil {
		t.Fatalf("HasOrder: %v", err)
	}
	if !ok {
		t.Fatal("expected recorded order to be found")
	}
}

func TestTradeSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	trades := []TradeRecord{
		{Symbol: "EURUSD", Side: "BUY", Volume: 0.1, EntryPrice: 1.1000, ExitPrice: 1.1050, Profit: 50},
		{Symbol: "EURUSD", Side: "BUY", Volume: 0.1, EntryPrice: 1.1050, ExitPrice: 1.1020, Profit: -30},
		{Symbol: "GBPUSD", Side: "SELL", Volume: 0.2, EntryPrice: 1.2500, ExitPrice: 1.2400, Profit: 200},
	}
	for _, tr := range trades {
		if err := store.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("InsertTrade: %v", err)
		}
	}

	sum, err := store.GetTradeSummary(ctx, 30)
	if err != nil {
		t.Fatalf("GetTradeSummary: %v", err)
	}
	if sum.TradeCount != 3 {
		t.Fatalf("TradeCount=%d, expected 3", sum.TradeCount)
	}
	if sum.TotalProfit != 220 {
		t.Fatalf("TotalProfit=%v, expected 220", sum.TotalProfit)
	}
	if sum.WinCount != 2 {
		t.Fatalf("WinCount=%d, expected 2", sum.WinCount)
	}
	wantWinRate := 2.0 / 3.0
	if diff := sum.WinRate - wantWinRate; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("WinRate=%v, expected %v", sum.WinRate, wantWinRate)
	}
}

func TestEventsAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, ev := range []EventRecord{
		{Category: CategoryEvent, Severity: SeverityInfo, Message: "loop started"},
		{Category: CategoryEvent, Severity: SeverityWarning, Message: "iteration skipped", Detail: "daily trade limit reached"},
	} {
		if err := store.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	events, err := store.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Message != "iteration skipped" {
		t.Fatalf("expected newest event first, got %q", events[0].Message)
	}
}
