package ops

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/executor"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/state"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

func newWSTestServer(t *testing.T) (*httptest.Server, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	tracker := state.NewTracker(state.Limits{MaxDailyTrades: 10}, store, bus)
	exec := executor.New(noopGateway{}, store, bus, executor.Config{
		MaxRetryAttempts: 1,
		BackoffBase:      0.001,
		OrderTimeout:     time.Second,
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	server := NewServer(bus, store, tracker, exec, SystemMeta{
		PaperBroker: true,
		Symbols:     []string{"EURUSD"},
		Timeframe:   "M5",
		Version:     "test",
		StartedAt:   time.Now(),
	}, "test-secret", string(hash))

	ts := httptest.NewServer(server.Router)
	t.Cleanup(ts.Close)
	return ts, bus
}

func waitForSubscribers(t *testing.T, bus *events.Bus, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.SubscriberCount(events.EventOrderExecuted) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d (have %d)",
		want, bus.SubscriberCount(events.EventOrderExecuted))
}

func TestWebsocketStreamsEvents(t *testing.T) {
	ts, bus := newWSTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	waitForSubscribers(t, bus, 1)
	bus.Publish(events.EventOrderExecuted, map[string]string{"client_order_id": "abc"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wsEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Event != string(events.EventOrderExecuted) {
		t.Errorf("event = %q, want %q", env.Event, events.EventOrderExecuted)
	}
}

// A disconnecting client must free its bus subscriptions promptly, not wait
// for the next published event to surface the dead connection.
func TestWebsocketDisconnectReapsSubscriptions(t *testing.T) {
	ts, bus := newWSTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	waitForSubscribers(t, bus, 1)

	conn.Close()

	// No events are published here; the handler has to notice on its own.
	waitForSubscribers(t, bus, 0)
}
