package main

import (
	"context"
	"fmt"
	"log"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/executor"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/loop"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/ops"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/signal"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/sizing"
	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/state"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker/paper"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/config"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

const version = "1.2.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: config load failed: %v", err)
	}
	log.Printf("main: livetrader %s starting (dry_run=%v symbols=%v)", version, cfg.DryRun, cfg.Symbols)

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("main: open audit store: %v", err)
	}
	defer store.Close()
	if err := db.ApplyMigrations(store); err != nil {
		log.Fatalf("main: apply migrations: %v", err)
	}

	bus := events.NewBus()

	gw, err := buildGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("main: broker gateway: %v", err)
	}

	tracker := state.NewTracker(state.Limits{
		MaxDailyTrades:   cfg.MaxDailyTrades,
		MaxDailyLossPct:  cfg.MaxDailyLossPct,
		BalanceReference: resolveBalanceReference(ctx, cfg, gw),
	}, store, bus)

	exec := executor.New(gw, store, bus, executor.Config{
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		BackoffBase:      cfg.RetryBackoffBase,
		OrderTimeout:     cfg.OrderTimeout,
	})
	sizer := sizing.RiskPercentSizer{
		RiskPercent:     cfg.RiskPercent,
		StopDistancePct: cfg.StopDistancePct,
		MaxVolume:       cfg.MaxPositionSize,
	}

	if cfg.OpsEnabled {
		server := ops.NewServer(bus, store, tracker, exec, ops.SystemMeta{
			PaperBroker: cfg.DryRun,
			Symbols:     cfg.Symbols,
			Timeframe:   cfg.Timeframe,
			Version:     version,
			StartedAt:   time.Now(),
		}, cfg.OpsJWTSecret, cfg.OpsPasswordHash)
		go func() {
			log.Printf("main: ops server listening on :%s", cfg.OpsPort)
			if err := server.Start(":" + cfg.OpsPort); err != nil {
				log.Printf("main: ops server stopped: %v", err)
			}
		}()
	}

	l := loop.New(loop.Config{
		Symbols:           cfg.Symbols,
		Timeframe:         cfg.Timeframe,
		Interval:          cfg.LoopInterval,
		SnapshotInterval:  cfg.SnapshotInterval,
		KillSwitchFile:    cfg.KillSwitchFile,
		KillSwitchEnabled: cfg.KillSwitchEnabled,
	}, gw, buildSource(cfg), tracker, exec, store, bus, sizer)

	if err := l.Run(ctx); err != nil {
		log.Fatalf("main: loop stopped: %v", err)
	}
	log.Println("main: shutdown complete")
}

// resolveBalanceReference picks the balance the daily loss cap is measured
// against. An explicit BALANCE_REFERENCE wins; otherwise the broker account
// balance is used, with the paper starting balance as the dry-run fallback.
func resolveBalanceReference(ctx context.Context, cfg *config.Config, gw broker.Gateway) float64 {
	if cfg.BalanceReference > 0 {
		return cfg.BalanceReference
	}
	acct, err := gw.GetAccountInfo(ctx)
	if err == nil && acct.Balance > 0 {
		log.Printf("main: balance reference %.2f from broker account", acct.Balance)
		return acct.Balance
	}
	if err != nil {
		log.Printf("main: account info unavailable for balance reference: %v", err)
	}
	if cfg.DryRun {
		return cfg.PaperBalance
	}
	log.Println("main: no balance reference resolved, daily loss cap disabled")
	return 0
}

func buildGateway(ctx context.Context, cfg *config.Config) (broker.Gateway, error) {
	specs, err := config.LoadSymbolSpecs(cfg.SymbolsFile)
	if err != nil {
		return nil, err
	}

	var gw broker.Gateway
	if cfg.DryRun {
		gw = paper.New(paper.Config{
			InitialBalance: cfg.PaperBalance,
			FeeRate:        cfg.PaperFeeRate,
			SlippageBps:    cfg.PaperSlippageBps,
			Specs:          specs,
		})
	} else {
		// Live connectivity plugs in here behind broker.Gateway; nothing in
		// this build implements it.
		return nil, fmt.Errorf("no live broker gateway available, run with DRY_RUN=true")
	}

	if cfg.GatewayRPS > 0 {
		gw = broker.Throttled(gw, cfg.GatewayRPS, cfg.GatewayBurst)
	}
	if err := gw.Connect(ctx); err != nil {
		return nil, err
	}
	return gw, nil
}

func buildSource(cfg *config.Config) signal.Source {
	if !cfg.UseMockFeed {
		log.Println("main: no external signal feed wired, falling back to mock source")
	}
	return signal.NewMockSource(time.Now().UnixNano())
}
