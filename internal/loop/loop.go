// Package loop drives the execution core: poll signals per symbol on a fixed
// cadence, gate through the state tracker, execute through the order
// executor, and audit everything.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/executor"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/signal"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/sizing"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/state"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

// ErrKillSwitch stops the loop for good; it is not a skip.
var ErrKillSwitch = errors.New("kill switch activated")

// Config tunes the loop cadence and the per-symbol processing.
type Config struct {
	Symbols           []string
	Timeframe         string
	Interval          time.Duration
	SnapshotInterval  time.Duration
	SignalWindow      time.Duration // trailing window handed to the signal source
	KillSwitchFile    string
	KillSwitchEnabled bool
}

// Loop is the single-threaded orchestrator. One goroutine runs Run; the
// collaborators are internally synchronized for the operator surface.
type Loop struct {
	cfg     Config
	gw      broker.Gateway
	source  signal.Source
	tracker *state.Tracker
	exec    *executor.Executor
	store   *db.Store
	bus     *events.Bus
	sizer   sizing.Sizer

	lastSnapshot time.Time
	nowFn        func() time.Time
}

func New(cfg Config, gw broker.Gateway, source signal.Source, tracker *state.Tracker, exec *executor.Executor, store *db.Store, bus *events.Bus, sizer sizing.Sizer) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 5 * time.Minute
	}
	if cfg.SignalWindow <= 0 {
		cfg.SignalWindow = 24 * time.Hour
	}
	return &Loop{
		cfg:     cfg,
		gw:      gw,
		source:  source,
		tracker: tracker,
		exec:    exec,
		store:   store,
		bus:     bus,
		sizer:   sizer,
		nowFn:   time.Now,
	}
}

// Run drives iterations until ctx is cancelled or the kill switch fires.
// On exit it flushes a summary and closes the gateway.
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("loop: starting (symbols=%v interval=%v timeframe=%s)", l.cfg.Symbols, l.cfg.Interval, l.cfg.Timeframe)

	var runErr error
	for {
		if ctx.Err() != nil {
			break
		}

		start := l.nowFn()
		if err := l.iterate(ctx); err != nil {
			if errors.Is(err, ErrKillSwitch) {
				runErr = err
				break
			}
			log.Printf("loop: iteration error: %v", err)
		}

		elapsed := l.nowFn().Sub(start)
		if !l.sleep(ctx, l.cfg.Interval-elapsed) {
			break
		}
	}

	l.flushSummary(context.Background())
	if err := l.gw.Close(); err != nil {
		log.Printf("loop: gateway close error: %v", err)
	}
	return runErr
}

// sleep waits d (if positive) or returns immediately; false means ctx ended.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// iterate runs one pass of the control loop.
func (l *Loop) iterate(ctx context.Context) error {
	// 1. External kill switch: fatal, not a skip.
	if l.killSwitchTriggered() {
		reason := "kill switch file present: " + l.cfg.KillSwitchFile
		l.tracker.ActivateKillSwitch(reason)
		l.auditEvent(ctx, db.SeverityError, "kill switch activated", reason)
		return ErrKillSwitch
	}

	// 2. Risk gate: skip the whole iteration without touching the broker.
	if ok, reason := l.tracker.CanTrade(); !ok {
		log.Printf("loop: trading not permitted: %s", reason)
		l.auditEvent(ctx, db.SeverityWarning, "iteration skipped", reason)
		if l.bus != nil {
			l.bus.Publish(events.EventIterationSkip, reason)
		}
		return nil
	}

	// 3. Connection health; a failed reconnect skips this iteration only.
	if err := l.gw.EnsureConnected(ctx); err != nil {
		l.auditEvent(ctx, db.SeverityWarning, "broker connection unavailable", err.Error())
		return fmt.Errorf("ensure connected: %w", err)
	}

	// 4. Reconcile local state against broker truth (full replace).
	positions, err := l.gw.GetPositions(ctx)
	if err != nil {
		l.auditEvent(ctx, db.SeverityWarning, "position fetch failed", err.Error())
		return fmt.Errorf("get positions: %w", err)
	}
	l.tracker.SyncWithBroker(positions)

	// 5. Symbols are independent; one failure never aborts the rest.
	for _, symbol := range l.cfg.Symbols {
		l.processSymbolSafe(ctx, symbol)
	}

	// 6. Periodic account snapshot.
	if l.nowFn().Sub(l.lastSnapshot) >= l.cfg.SnapshotInterval {
		l.takeSnapshot(ctx)
	}
	return nil
}

func (l *Loop) killSwitchTriggered() bool {
	if !l.cfg.KillSwitchEnabled || l.cfg.KillSwitchFile == "" {
		return false
	}
	_, err := os.Stat(l.cfg.KillSwitchFile)
	return err == nil
}

// processSymbolSafe isolates panics and errors to the one symbol.
func (l *Loop) processSymbolSafe(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic processing %s: %v", symbol, r)
			log.Printf("loop: %s", msg)
			l.auditEvent(ctx, db.SeverityError, "symbol processing panic", msg)
		}
	}()
	if err := l.processSymbol(ctx, symbol); err != nil {
		log.Printf("loop: %s: %v", symbol, err)
		l.auditEvent(ctx, db.SeverityError, "symbol processing failed", fmt.Sprintf("%s: %v", symbol, err))
	}
}

func (l *Loop) processSymbol(ctx context.Context, symbol string) error {
	spec, err := l.gw.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return fmt.Errorf("symbol info: %w", err)
	}

	now := l.nowFn()
	signals, err := l.source.GenerateSignals(ctx, symbol, now.Add(-l.cfg.SignalWindow), now, l.cfg.Timeframe)
	if err != nil {
		return fmt.Errorf("generate signals: %w", err)
	}
	if len(signals) == 0 {
		return nil
	}

	sig := latest(signals)
	sigID := sig.ID()
	if l.tracker.IsSignalProcessed(ctx, sigID) {
		return nil
	}

	// Record first, then mark: a crash in between means the signal is never
	// retried, which is the conservative failure mode.
	if l.store != nil {
		if err := l.store.InsertSignal(ctx, db.SignalRecord{
			SignalID:   sigID,
			Symbol:     symbol,
			Direction:  string(sig.Direction),
			Price:      sig.Price,
			Confidence: sig.Confidence,
			StrategyID: sig.StrategyID,
			SignalTime: sig.Time,
		}); err != nil {
			return fmt.Errorf("record signal: %w", err)
		}
	}
	l.tracker.MarkSignalProcessed(sigID)
	l.tracker.RecordLastSignal(symbol, sig.Time)
	if l.bus != nil {
		l.bus.Publish(events.EventSignalDetected, sig)
	}
	log.Printf("loop: %s signal %s @ %.5f (confidence %.2f)", symbol, sig.Direction, sig.Price, sig.Confidence)

	switch sig.Direction {
	case signal.Buy:
		if l.tracker.HasPosition(symbol) {
			return nil
		}
		return l.openPosition(ctx, spec, sig, sigID)
	case signal.Sell:
		pos, ok := l.tracker.GetPosition(symbol)
		if !ok {
			return nil
		}
		return l.closePosition(ctx, spec, sig, sigID, pos)
	case signal.Hold:
		return nil
	}
	return nil
}

func latest(signals []signal.Signal) signal.Signal {
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Time.After(best.Time) {
			best = s
		}
	}
	return best
}

func (l *Loop) openPosition(ctx context.Context, spec broker.SymbolSpec, sig signal.Signal, sigID string) error {
	account, err := l.gw.GetAccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("account info: %w", err)
	}

	volume, stopLoss := l.sizer.Size(spec, account, sig)
	if volume <= 0 {
		l.auditEvent(ctx, db.SeverityWarning, "entry skipped",
			fmt.Sprintf("%s: sized volume %.4f not tradable", sig.Symbol, volume))
		return nil
	}

	req := broker.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     broker.SideBuy,
		Type:     broker.OrderTypeMarket,
		Volume:   volume,
		Price:    sig.Price,
		StopLoss: stopLoss,
		Comment:  "entry " + sigID,
	}
	clientID := executor.GenerateClientOrderID(sig.Symbol, sigID)

	res, err := l.exec.Execute(ctx, req, clientID)
	if err != nil {
		return fmt.Errorf("entry execution: %w", err)
	}
	if !res.Success {
		return nil // terminal broker failure; already audited by the executor
	}

	l.tracker.UpdatePosition(sig.Symbol, broker.Position{
		Symbol:    sig.Symbol,
		Side:      broker.SideBuy,
		Volume:    res.ExecutedVolume,
		OpenPrice: res.ExecutedPrice,
		StopLoss:  stopLoss,
		OpenTime:  l.nowFn(),
		Ticket:    res.BrokerOrderID,
	})
	log.Printf("loop: %s opened %.4f @ %.5f (order %s)", sig.Symbol, res.ExecutedVolume, res.ExecutedPrice, res.BrokerOrderID)
	return nil
}

func (l *Loop) closePosition(ctx context.Context, spec broker.SymbolSpec, sig signal.Signal, sigID string, pos broker.Position) error {
	req := broker.OrderRequest{
		Symbol:  sig.Symbol,
		Side:    pos.Side.Opposite(),
		Type:    broker.OrderTypeMarket,
		Volume:  pos.Volume,
		Price:   sig.Price,
		Comment: "close " + sigID,
	}
	clientID := executor.GenerateClientOrderID(sig.Symbol, sigID)

	res, err := l.exec.Execute(ctx, req, clientID)
	if err != nil {
		return fmt.Errorf("close execution: %w", err)
	}
	if !res.Success {
		return nil
	}

	contract := spec.ContractSize
	if contract <= 0 {
		contract = 1
	}
	profit := (res.ExecutedPrice - pos.OpenPrice) * res.ExecutedVolume * contract
	if pos.Side == broker.SideSell {
		profit = -profit
	}

	if l.store != nil {
		if err := l.store.InsertTrade(ctx, db.TradeRecord{
			ClientOrderID: clientID,
			Symbol:        sig.Symbol,
			Side:          string(pos.Side),
			Volume:        res.ExecutedVolume,
			EntryPrice:    pos.OpenPrice,
			ExitPrice:     res.ExecutedPrice,
			Profit:        profit,
			OpenedAt:      pos.OpenTime,
			ClosedAt:      l.nowFn(),
		}); err != nil {
			log.Printf("loop: record trade error: %v", err)
		}
	}
	l.tracker.ClosePosition(sig.Symbol)
	l.tracker.RecordTrade(sig.Symbol, profit)
	if l.bus != nil {
		l.bus.Publish(events.EventTradeClosed, map[string]any{
			"symbol": sig.Symbol,
			"profit": profit,
		})
	}
	log.Printf("loop: %s closed %.4f @ %.5f profit=%.2f", sig.Symbol, res.ExecutedVolume, res.ExecutedPrice, profit)
	return nil
}

func (l *Loop) takeSnapshot(ctx context.Context) {
	account, err := l.gw.GetAccountInfo(ctx)
	if err != nil {
		log.Printf("loop: snapshot account info error: %v", err)
		return
	}
	l.lastSnapshot = l.nowFn()

	if l.store != nil {
		if err := l.store.InsertSnapshot(ctx, db.SnapshotRecord{
			TakenAt:       l.lastSnapshot,
			Balance:       account.Balance,
			Equity:        account.Equity,
			Margin:        account.Margin,
			FreeMargin:    account.FreeMargin,
			OpenPositions: len(l.tracker.Positions()),
		}); err != nil {
			log.Printf("loop: record snapshot error: %v", err)
		}
	}
	if l.bus != nil {
		l.bus.Publish(events.EventAccountSnapshot, account)
	}
}

func (l *Loop) auditEvent(ctx context.Context, severity, message, detail string) {
	if l.store == nil {
		return
	}
	if err := l.store.InsertEvent(ctx, db.EventRecord{
		Category: db.CategoryEvent,
		Severity: severity,
		Message:  message,
		Detail:   detail,
	}); err != nil {
		log.Printf("loop: audit event error: %v", err)
	}
}

func (l *Loop) flushSummary(ctx context.Context) {
	execSum := l.exec.GetExecutionSummary()
	stateSum := l.tracker.Summary()
	log.Printf("loop: shutdown summary: orders total=%d executed=%d failed=%d pending=%d success=%.0f%%; positions=%d trades_today=%d pl_today=%.2f",
		execSum.Total, execSum.Executed, execSum.Failed, execSum.Pending, execSum.SuccessRate*100,
		stateSum.OpenPositions, stateSum.TradesToday, stateSum.RealizedPLToday)
	l.auditEvent(ctx, db.SeverityInfo, "loop stopped",
		fmt.Sprintf("orders=%d executed=%d failed=%d positions=%d", execSum.Total, execSum.Executed, execSum.Failed, stateSum.OpenPositions))
}
