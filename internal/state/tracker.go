// Package state is the single source of truth for "is trading currently
// permitted" and the locally believed position set, reconciled wholesale
// against the broker to avoid drift.
package state

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

// DailyStats accumulates per-day trade activity for the risk gate.
type DailyStats struct {
	Date       string
	TradeCount int
	RealizedPL float64
}

// Limits configures the daily risk gate.
type Limits struct {
	MaxDailyTrades int
	// MaxDailyLossPct caps the day's realized loss as a fraction of
	// BalanceReference (e.g. 0.05 = 5%).
	MaxDailyLossPct  float64
	BalanceReference float64
	// StatsRetentionDays bounds how long daily stats are kept.
	StatsRetentionDays int
}

// Summary is flushed to the log on shutdown.
type Summary struct {
	OpenPositions    int     `json:"open_positions"`
	TradesToday      int     `json:"trades_today"`
	RealizedPLToday  float64 `json:"realized_pl_today"`
	ProcessedSignals int     `json:"processed_signals"`
	KillSwitchActive bool    `json:"kill_switch_active"`
	KillSwitchReason string  `json:"kill_switch_reason,omitempty"`

	LastSignals map[string]time.Time `json:"last_signals,omitempty"`
}

// Tracker keeps positions, daily counters, the processed-signal set and the
// kill-switch latch. Mutated by the control loop; read by the operator
// surface, hence the RWMutex.
type Tracker struct {
	mu sync.RWMutex

	positions   map[string]broker.Position
	daily       map[string]*DailyStats
	processed   map[string]struct{}
	lastSignals map[string]time.Time

	killSwitch       bool
	killSwitchReason string
	tradingEnabled   bool

	limits Limits
	store  *db.Store
	bus    *events.Bus
	nowFn  func() time.Time
}

func NewTracker(limits Limits, store *db.Store, bus *events.Bus) *Tracker {
	if limits.StatsRetentionDays <= 0 {
		limits.StatsRetentionDays = 30
	}
	return &Tracker{
		positions:      make(map[string]broker.Position),
		daily:          make(map[string]*DailyStats),
		processed:      make(map[string]struct{}),
		lastSignals:    make(map[string]time.Time),
		tradingEnabled: true,
		limits:         limits,
		store:          store,
		bus:            bus,
		nowFn:          time.Now,
	}
}

// SyncWithBroker replaces the entire position set with the broker-reported
// one. Full replace, not incremental diffing: this is the only path that can
// introduce a position the loop did not open itself.
func (t *Tracker) SyncWithBroker(positions []broker.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make(map[string]broker.Position, len(positions))
	for _, p := range positions {
		fresh[p.Symbol] = p
	}
	t.positions = fresh
}

// HasPosition reports whether a position is tracked for the symbol.
func (t *Tracker) HasPosition(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.positions[symbol]
	return ok
}

// GetPosition returns the tracked position for a symbol.
func (t *Tracker) GetPosition(symbol string) (broker.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	return p, ok
}

// Positions returns a snapshot of all tracked positions.
func (t *Tracker) Positions() []broker.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]broker.Position, 0, len(t.positions))
	for _, p := range t.positions {
		res = append(res, p)
	}
	return res
}

// UpdatePosition applies an optimistic local update right after an execution;
// the next SyncWithBroker supersedes it.
func (t *Tracker) UpdatePosition(symbol string, p broker.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.Symbol = symbol
	t.positions[symbol] = p
}

// ClosePosition drops the local position after a closing execution.
func (t *Tracker) ClosePosition(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, symbol)
}

// RecordTrade increments today's trade count and realized P/L, and prunes
// stats older than the retention window.
func (t *Tracker) RecordTrade(symbol string, profit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.nowFn().Format("2006-01-02")
	stats, ok := t.daily[day]
	if !ok {
		stats = &DailyStats{Date: day}
		t.daily[day] = stats
	}
	stats.TradeCount++
	stats.RealizedPL += profit

	log.Printf("state: trade recorded %s profit=%.2f (today: %d trades, P/L %.2f)",
		symbol, profit, stats.TradeCount, stats.RealizedPL)

	t.pruneStatsLocked()
}

func (t *Tracker) pruneStatsLocked() {
	cutoff := t.nowFn().AddDate(0, 0, -t.limits.StatsRetentionDays).Format("2006-01-02")
	for day := range t.daily {
		if day < cutoff {
			delete(t.daily, day)
		}
	}
}

// TodayStats returns a copy of today's counters.
func (t *Tracker) TodayStats() DailyStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.daily[t.nowFn().Format("2006-01-02")]; ok {
		return *s
	}
	return DailyStats{Date: t.nowFn().Format("2006-01-02")}
}

// CheckDailyLimits fails when today's trade count or realized loss breaches
// the configured caps.
func (t *Tracker) CheckDailyLimits() (bool, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.checkDailyLimitsLocked()
}

func (t *Tracker) checkDailyLimitsLocked() (bool, string) {
	stats, ok := t.daily[t.nowFn().Format("2006-01-02")]
	if !ok {
		return true, ""
	}
	if t.limits.MaxDailyTrades > 0 && stats.TradeCount >= t.limits.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d/%d", stats.TradeCount, t.limits.MaxDailyTrades)
	}
	if t.limits.MaxDailyLossPct > 0 && t.limits.BalanceReference > 0 {
		maxLoss := t.limits.BalanceReference * t.limits.MaxDailyLossPct
		if -stats.RealizedPL >= maxLoss {
			return false, fmt.Sprintf("daily loss limit exceeded: %.2f/%.2f", -stats.RealizedPL, maxLoss)
		}
	}
	return true, ""
}

// IsSignalProcessed reports whether the signal id was already acted on, in
// this process or (via the audit trail) in a previous one.
func (t *Tracker) IsSignalProcessed(ctx context.Context, signalID string) bool {
	t.mu.RLock()
	_, ok := t.processed[signalID]
	t.mu.RUnlock()
	if ok {
		return true
	}
	if t.store != nil {
		seen, err := t.store.HasSignal(ctx, signalID)
		if err != nil {
			log.Printf("state: durable signal lookup failed for %s: %v", signalID, err)
			return false
		}
		return seen
	}
	return false
}

// MarkSignalProcessed records the signal id in the de-dup set.
func (t *Tracker) MarkSignalProcessed(signalID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed[signalID] = struct{}{}
}

// RecordLastSignal notes when the most recent signal for a symbol fired.
func (t *Tracker) RecordLastSignal(symbol string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSignals[symbol] = ts
}

// LastSignals returns per-symbol timestamps of the most recent signals.
func (t *Tracker) LastSignals() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.lastSignals))
	for sym, ts := range t.lastSignals {
		out[sym] = ts
	}
	return out
}

// ActivateKillSwitch latches trading off until an explicit deactivation.
func (t *Tracker) ActivateKillSwitch(reason string) {
	t.mu.Lock()
	already := t.killSwitch
	t.killSwitch = true
	t.killSwitchReason = reason
	t.mu.Unlock()

	if !already {
		log.Printf("state: kill switch ACTIVATED: %s", reason)
		if t.bus != nil {
			t.bus.Publish(events.EventKillSwitch, reason)
		}
	}
}

// DeactivateKillSwitch clears the latch. Deliberate operator action only.
func (t *Tracker) DeactivateKillSwitch() {
	t.mu.Lock()
	t.killSwitch = false
	t.killSwitchReason = ""
	t.mu.Unlock()
	log.Printf("state: kill switch deactivated")
}

// KillSwitchActive returns the latch state and its reason.
func (t *Tracker) KillSwitchActive() (bool, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.killSwitch, t.killSwitchReason
}

// SetTradingEnabled toggles the plain on/off switch (distinct from the latch).
func (t *Tracker) SetTradingEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tradingEnabled = enabled
}

// CanTrade is the single risk gate: kill switch, enable flag, daily limits.
func (t *Tracker) CanTrade() (bool, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.killSwitch {
		return false, "kill switch active: " + t.killSwitchReason
	}
	if !t.tradingEnabled {
		return false, "trading disabled"
	}
	if ok, reason := t.checkDailyLimitsLocked(); !ok {
		return false, reason
	}
	return true, ""
}

// Summary returns the shutdown/ops snapshot.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{
		OpenPositions:    len(t.positions),
		ProcessedSignals: len(t.processed),
		KillSwitchActive: t.killSwitch,
		KillSwitchReason: t.killSwitchReason,
	}
	if len(t.lastSignals) > 0 {
		s.LastSignals = make(map[string]time.Time, len(t.lastSignals))
		for sym, ts := range t.lastSignals {
			s.LastSignals[sym] = ts
		}
	}
	if stats, ok := t.daily[t.nowFn().Format("2006-01-02")]; ok {
		s.TradesToday = stats.TradeCount
		s.RealizedPLToday = stats.RealizedPL
	}
	return s
}
