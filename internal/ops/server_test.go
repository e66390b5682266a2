package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/executor"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/state"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

type noopGateway struct{}

func (noopGateway) Connect(context.Context) error         { return nil }
func (noopGateway) EnsureConnected(context.Context) error { return nil }
func (noopGateway) GetSymbolInfo(context.Context, string) (broker.SymbolSpec, error) {
	return broker.SymbolSpec{}, nil
}
func (noopGateway) GetAccountInfo(context.Context) (broker.AccountInfo, error) {
	return broker.AccountInfo{}, nil
}
func (noopGateway) GetPositions(context.Context) ([]broker.Position, error) { return nil, nil }
func (noopGateway) CheckOrder(context.Context, broker.OrderRequest) (broker.CheckResult, error) {
	return broker.CheckResult{OK: true, RetCode: broker.RetDone}, nil
}
func (noopGateway) SendOrder(context.Context, broker.OrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{RetCode: broker.RetDone}, nil
}
func (noopGateway) Close() error { return nil }

const testPassword = "open-sesame"

func newTestOpsServer(t *testing.T) (*httptest.Server, *state.Tracker, *db.Store) {
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
	return ts, tracker, store
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/token", "", map[string]string{
		"password": testPassword,
	}, &resp)
	if status != http.StatusOK || resp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, resp)
	}
	return resp.Token
}

func TestHealthNoAuth(t *testing.T) {
	ts, _, _ := newTestOpsServer(t)
	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestTokenRejectsWrongPassword(t *testing.T) {
	ts, _, _ := newTestOpsServer(t)
	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/auth/token", "", map[string]string{
		"password": "wrong",
	}, &resp)
	if status != http.StatusUnauthorized || resp.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 INVALID_CREDENTIALS, got status=%d code=%s", status, resp.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, _, _ := newTestOpsServer(t)
	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/status", "", nil, &resp)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}

func TestStatusReportsKillSwitch(t *testing.T) {
	ts, tracker, _ := newTestOpsServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	tracker.ActivateKillSwitch("test reason")

	var resp struct {
		KillSwitch struct {
			Active bool   `json:"active"`
			Reason string `json:"reason"`
		} `json:"kill_switch"`
	}
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/status", token, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("status endpoint = %d", status)
	}
	if !resp.KillSwitch.Active || resp.KillSwitch.Reason != "test reason" {
		t.Fatalf("kill switch in status = %+v", resp.KillSwitch)
	}
}

func TestKillSwitchRoundTrip(t *testing.T) {
	ts, tracker, _ := newTestOpsServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/killswitch", token, map[string]string{
		"reason": "manual halt",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("activate status = %d", status)
	}
	if active, reason := tracker.KillSwitchActive(); !active || reason != "manual halt" {
		t.Fatalf("kill switch not latched: active=%v reason=%q", active, reason)
	}

	status = doJSONRequest(t, client, http.MethodDelete, ts.URL+"/api/killswitch", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("deactivate status = %d", status)
	}
	if active, _ := tracker.KillSwitchActive(); active {
		t.Fatal("kill switch still active after deactivation")
	}
}

func TestOrdersEndpointReturnsStoredOrders(t *testing.T) {
	ts, _, store := newTestOpsServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	ctx := context.Background()
	if err := store.InsertOrder(ctx, db.OrderRecord{
		ClientOrderID: "EURUSD_sig_1_abcd1234",
		Symbol:        "EURUSD",
		Side:          "BUY",
		OrderType:     "MARKET",
		Volume:        0.1,
		Price:         1.1,
		Status:        "PENDING",
	}); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	var resp struct {
		Orders []struct {
			ClientOrderID string `json:"ClientOrderID"`
			Symbol        string `json:"Symbol"`
		} `json:"orders"`
	}
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/orders?limit=10", token, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("orders status = %d", status)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].Symbol != "EURUSD" {
		t.Fatalf("orders response = %+v", resp.Orders)
	}
}

func TestOrderNotFound(t *testing.T) {
	ts, _, _ := newTestOpsServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/orders/nope", token, nil, &resp)
	if status != http.StatusNotFound || resp.Code != "ORDER_NOT_FOUND" {
		t.Fatalf("expected 404 ORDER_NOT_FOUND, got status=%d code=%s", status, resp.Code)
	}
}

func TestTradingToggle(t *testing.T) {
	ts, tracker, _ := newTestOpsServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/disable", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("disable status = %d", status)
	}
	if ok, _ := tracker.CanTrade(); ok {
		t.Fatal("trading still permitted after disable")
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/enable", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("enable status = %d", status)
	}
	if ok, _ := tracker.CanTrade(); !ok {
		t.Fatal("trading not permitted after enable")
	}
}
